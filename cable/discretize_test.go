// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"errors"
	"math"
	"testing"

	"github.com/emer/cable/cvpolicy"
	"github.com/goki/mat32"
)

func TestSomaDisc(t *testing.T) {
	c := NewCell()
	c.AddSoma(6.3)
	dc, err := Discretize(c, cvpolicy.FixedPerBranch{N: 1})
	if err != nil {
		t.Fatal(err)
	}
	if dc.NCV != 1 {
		t.Errorf("soma should lower to exactly one CV, got %d", dc.NCV)
	}
	if dc.Parent[0] != -1 {
		t.Errorf("soma CV parent should be -1, got %d", dc.Parent[0])
	}
	want := 4 * math.Pi * 6.3 * 6.3
	if relDif(dc.Area[0], want) > 1e-12 {
		t.Errorf("soma area: got %v, want %v", dc.Area[0], want)
	}
	CmprFloats(dc.Cm, []float64{0.01}, "soma per-area capacitance", t)
}

func TestParentOrder(t *testing.T) {
	c := NewCell()
	soma := c.AddSoma(6.3)
	d1 := c.AddCable(soma, 200, 1)
	c.AddCable(soma, 100, 0.8)
	c.AddCable(d1, 80, 0.5)

	dc, err := Discretize(c, cvpolicy.FixedPerBranch{N: 4})
	if err != nil {
		t.Fatal(err)
	}
	if dc.NCV != 1+3*4 {
		t.Errorf("CV count: got %d, want %d", dc.NCV, 13)
	}
	for i := 1; i < dc.NCV; i++ {
		if dc.Parent[i] >= int32(i) {
			t.Errorf("CV %d has parent %d, not topological", i, dc.Parent[i])
		}
	}
	for i := 0; i < dc.NCV; i++ {
		if dc.Parent[i] >= 0 && dc.FaceAlpha[i] <= 0 {
			t.Errorf("CV %d has parent but no face coupling", i)
		}
	}
}

func TestAreaConservation(t *testing.T) {
	c := NewCell()
	soma := c.AddSoma(6.3)
	di := c.AddCable(soma, 100, 2)
	// taper the dendrite: linear radius from 2 to 0.5
	c.Segs[di].Radii[1] = 0.5

	for _, ncomp := range []int{1, 3, 7, 16} {
		dc, err := Discretize(c, cvpolicy.FixedPerBranch{N: ncomp})
		if err != nil {
			t.Fatal(err)
		}
		for si := range c.Segs {
			geom := dc.GeomArea(c, si)
			if rd := relDif(dc.SegAreaSum[si], geom); rd > 1e-12 {
				t.Errorf("ncomp %d seg %d: area sum %v vs geometric %v, rel dif %v", ncomp, si, dc.SegAreaSum[si], geom, rd)
			}
		}
	}
}

func TestMaxExtentPolicy(t *testing.T) {
	c := NewCell()
	soma := c.AddSoma(6.3)
	c.AddCable(soma, 200, 1)
	dc, err := Discretize(c, cvpolicy.MaxExtent{L: 20})
	if err != nil {
		t.Fatal(err)
	}
	if dc.SegNComp[1] != 10 {
		t.Errorf("max-extent 20 on 200 µm: got %d compartments, want 10", dc.SegNComp[1])
	}
}

func TestInvalidMorphology(t *testing.T) {
	// single-point cable
	c := NewCell()
	c.Segs = append(c.Segs, Segment{
		Kind:   CableSeg,
		Points: []mat32.Vec3{{}},
		Radii:  []float32{1},
		Cm:     0.01,
		Rl:     100,
	})
	c.Parents = append(c.Parents, -1)
	if _, err := Discretize(c, nil); !errors.Is(err, ErrInvalidMorphology) {
		t.Errorf("single-point cable: got %v, want invalid morphology", err)
	}

	// soma not at the root
	c = NewCell()
	soma := c.AddSoma(6.3)
	c.AddCable(soma, 100, 1)
	c.Segs = append(c.Segs, Segment{
		Kind:   SphericalSoma,
		Points: []mat32.Vec3{{}},
		Radii:  []float32{3},
		Cm:     0.01,
		Rl:     100,
	})
	c.Parents = append(c.Parents, 1)
	if _, err := Discretize(c, nil); !errors.Is(err, ErrInvalidMorphology) {
		t.Errorf("non-root soma: got %v, want invalid morphology", err)
	}

	// non-positive radius
	c = NewCell()
	c.AddSoma(0)
	if _, err := Discretize(c, nil); !errors.Is(err, ErrInvalidMorphology) {
		t.Errorf("zero radius: got %v, want invalid morphology", err)
	}

	// empty cell
	if _, err := Discretize(NewCell(), nil); !errors.Is(err, ErrInvalidMorphology) {
		t.Errorf("empty cell: want invalid morphology")
	}
}

func TestLocCV(t *testing.T) {
	c := NewCell()
	soma := c.AddSoma(6.3)
	dend := c.AddCable(soma, 100, 1)
	dc, err := Discretize(c, cvpolicy.FixedPerBranch{N: 4})
	if err != nil {
		t.Fatal(err)
	}
	// CV 0 is the soma; dendrite CV centers sit at 0.25, 0.5, 0.75, 1.0
	cases := []struct {
		loc  Loc
		want int32
	}{
		{Loc{Seg: soma, Pos: 0.5}, 0},
		{Loc{Seg: dend, Pos: 0.1}, 1},
		{Loc{Seg: dend, Pos: 0.5}, 2},
		{Loc{Seg: dend, Pos: 0.7}, 3},
		{Loc{Seg: dend, Pos: 0.95}, 4},
		{Loc{Seg: dend, Pos: 1.0}, 4},
	}
	for _, cs := range cases {
		if got := dc.LocCV(cs.loc); got != cs.want {
			t.Errorf("LocCV(%v): got %d, want %d", cs.loc, got, cs.want)
		}
	}
}

func TestRootCable(t *testing.T) {
	c := NewCell()
	c.AddCable(-1, 100, 1)
	dc, err := Discretize(c, cvpolicy.FixedPerBranch{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	// a root cable gets its own proximal CV
	if dc.NCV != 3 {
		t.Errorf("root cable with 2 compartments: got %d CVs, want 3", dc.NCV)
	}
	if dc.Parent[0] != -1 || dc.Parent[1] != 0 || dc.Parent[2] != 1 {
		t.Errorf("root cable parents: got %v", dc.Parent)
	}
}
