// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cvpolicy

import "testing"

func TestParseFixed(t *testing.T) {
	p, err := Parse("(fixed-per-branch 4)")
	if err != nil {
		t.Fatal(err)
	}
	if n := p.Compartments(100, 3); n != 4 {
		t.Errorf("fixed-per-branch 4: got %d", n)
	}

	p, err = Parse("(fixed-per-branch 0)")
	if err != nil {
		t.Fatal(err)
	}
	if n := p.Compartments(100, 3); n != 3 {
		t.Errorf("fixed-per-branch 0 follows geometry: got %d, want 3", n)
	}
}

func TestParseMaxExtent(t *testing.T) {
	p, err := Parse("(max-extent 20)")
	if err != nil {
		t.Fatal(err)
	}
	if n := p.Compartments(200, 1); n != 10 {
		t.Errorf("max-extent 20 over 200: got %d, want 10", n)
	}
	if n := p.Compartments(201, 1); n != 11 {
		t.Errorf("max-extent rounds up: got %d, want 11", n)
	}
	if n := p.Compartments(5, 1); n != 1 {
		t.Errorf("short segment: got %d, want 1", n)
	}
}

func TestParseJoin(t *testing.T) {
	p, err := Parse("(join (fixed-per-branch 4) (max-extent 20))")
	if err != nil {
		t.Fatal(err)
	}
	if n := p.Compartments(200, 1); n != 10 {
		t.Errorf("join takes the finer policy: got %d, want 10", n)
	}
	if n := p.Compartments(10, 1); n != 4 {
		t.Errorf("join takes the finer policy: got %d, want 4", n)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"fixed-per-branch 4",
		"(fixed-per-branch)",
		"(fixed-per-branch -1)",
		"(max-extent 0)",
		"(unknown 3)",
		"(join (fixed-per-branch 1))",
		"(fixed-per-branch 1) trailing",
	}
	for _, expr := range bad {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) should fail", expr)
		}
	}
}
