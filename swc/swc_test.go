// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package swc

import (
	"errors"
	"strings"
	"testing"

	"github.com/emer/cable/cable"
)

const ballAndStick = `
# soma + two-sample dendrite
1 1 0 0 0 6.3 -1
2 3 6.3 0 0 0.5 1
3 3 106.3 0 0 0.5 2
4 3 206.3 0 0 0.4 3
`

func TestParse(t *testing.T) {
	tr, err := Parse(strings.NewReader(ballAndStick))
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(tr.Samples))
	}
	if tr.Samples[0].Parent != -1 || tr.Samples[3].Parent != 2 {
		t.Errorf("parents wrong: %v, %v", tr.Samples[0].Parent, tr.Samples[3].Parent)
	}
	if tr.Samples[0].Tag != SomaTag {
		t.Errorf("root tag: got %d", tr.Samples[0].Tag)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"1 1 0 0 0 6.3 -1\n3 3 1 0 0 0.5 1\n",  // non-dense ids
		"1 1 0 0 0 6.3 -1\n2 3 1 0 0 0.5 5\n",  // undefined parent
		"1 1 0 0 0 6.3\n",                      // missing field
		"1 1 0 0 0 x -1\n",                     // bad number
		"1 1 0 0 0 6.3 1\n2 3 1 0 0 0.5 1\n",   // first sample not a root
	}
	for _, s := range bad {
		if _, err := Parse(strings.NewReader(s)); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
	if _, err := Parse(strings.NewReader("# only comments\n")); err == nil {
		t.Errorf("empty tree should fail")
	}
}

func TestToCell(t *testing.T) {
	tr, err := Parse(strings.NewReader(ballAndStick))
	if err != nil {
		t.Fatal(err)
	}
	c, err := tr.ToCell()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Segs) != 2 {
		t.Fatalf("got %d segments, want soma + dendrite", len(c.Segs))
	}
	if c.Segs[0].Kind != cable.SphericalSoma || c.Segs[1].Kind != cable.CableSeg {
		t.Errorf("segment kinds wrong: %v, %v", c.Segs[0].Kind, c.Segs[1].Kind)
	}
	if c.Parents[1] != 0 {
		t.Errorf("dendrite parent: got %d, want 0", c.Parents[1])
	}
	// the dendrite run covers samples 2..4 plus the soma attachment point
	if len(c.Segs[1].Points) != 4 {
		t.Errorf("dendrite points: got %d, want 4", len(c.Segs[1].Points))
	}
	// the lowered cell must discretize cleanly
	if _, err := cable.Discretize(c, nil); err != nil {
		t.Errorf("ball-and-stick cell does not discretize: %v", err)
	}
}

func TestSingleSample(t *testing.T) {
	tr, err := Parse(strings.NewReader("1 1 0 0 0 5 -1\n"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := tr.ToCell()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Segs) != 1 || c.Segs[0].Kind != cable.SphericalSoma {
		t.Errorf("single soma sample should lower to a spherical soma")
	}

	// a single non-soma sample is not a valid morphology
	tr, err = Parse(strings.NewReader("1 3 0 0 0 5 -1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.ToCell(); !errors.Is(err, cable.ErrInvalidMorphology) {
		t.Errorf("isolated non-soma sample: got %v, want invalid morphology", err)
	}
}

func TestTwoSampleCable(t *testing.T) {
	tr, err := Parse(strings.NewReader("1 3 0 0 0 1 -1\n2 3 100 0 0 1 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := tr.ToCell()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Segs) != 1 || c.Segs[0].Kind != cable.CableSeg {
		t.Fatalf("two-sample tree should lower to one cable")
	}
	if _, err := cable.Discretize(c, nil); err != nil {
		t.Errorf("two-sample cable does not discretize: %v", err)
	}
}
