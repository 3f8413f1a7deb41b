// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package cvpolicy provides discretization policies that decide how many
compartments each cable segment of a cell is divided into.  Policies are
written as s-expressions:

	(fixed-per-branch 4)
	(max-extent 20)
	(join (fixed-per-branch 4) (max-extent 20))

A join takes the finer of its two operands per segment.
*/
package cvpolicy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Policy yields the compartment count for a segment, given its arc length
// [µm] and the number of piecewise-linear pieces of its path.
type Policy interface {
	// Compartments returns the number of compartments for the segment.
	// Always >= 1 for a cable segment.
	Compartments(length float64, npieces int) int
}

// FixedPerBranch divides every segment into exactly N compartments.
// N = 0 produces one compartment per geometric piece of the segment.
type FixedPerBranch struct {
	N int
}

func (fp FixedPerBranch) Compartments(length float64, npieces int) int {
	if fp.N <= 0 {
		if npieces < 1 {
			return 1
		}
		return npieces
	}
	return fp.N
}

// MaxExtent bounds the length of any compartment by L [µm].
type MaxExtent struct {
	L float64
}

func (me MaxExtent) Compartments(length float64, npieces int) int {
	if me.L <= 0 || length <= 0 {
		return 1
	}
	n := int(math.Ceil(length / me.L))
	if n < 1 {
		n = 1
	}
	return n
}

// Join takes the finer (larger compartment count) of two policies.
type Join struct {
	A, B Policy
}

func (jn Join) Compartments(length float64, npieces int) int {
	na := jn.A.Compartments(length, npieces)
	nb := jn.B.Compartments(length, npieces)
	if na > nb {
		return na
	}
	return nb
}

// Default is the policy used when none is specified: one compartment
// per segment.
func Default() Policy {
	return FixedPerBranch{N: 1}
}

// Parse parses a policy expression.
func Parse(expr string) (Policy, error) {
	toks := tokenize(expr)
	p := parser{toks: toks}
	pol, err := p.policy()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("cvpolicy: trailing input after policy in %q", expr)
	}
	return pol, nil
}

func tokenize(s string) []string {
	s = strings.ReplaceAll(s, "(", " ( ")
	s = strings.ReplaceAll(s, ")", " ) ")
	return strings.Fields(s)
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) next() (string, error) {
	if p.pos >= len(p.toks) {
		return "", fmt.Errorf("cvpolicy: unexpected end of expression")
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *parser) expect(tok string) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	if t != tok {
		return fmt.Errorf("cvpolicy: expected %q, got %q", tok, t)
	}
	return nil
}

func (p *parser) policy() (Policy, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	head, err := p.next()
	if err != nil {
		return nil, err
	}
	switch head {
	case "fixed-per-branch":
		t, err := p.next()
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("cvpolicy: fixed-per-branch wants a non-negative integer, got %q", t)
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return FixedPerBranch{N: n}, nil
	case "max-extent":
		t, err := p.next()
		if err != nil {
			return nil, err
		}
		l, err := strconv.ParseFloat(t, 64)
		if err != nil || l <= 0 {
			return nil, fmt.Errorf("cvpolicy: max-extent wants a positive length, got %q", t)
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return MaxExtent{L: l}, nil
	case "join":
		a, err := p.policy()
		if err != nil {
			return nil, err
		}
		b, err := p.policy()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Join{A: a, B: b}, nil
	}
	return nil, fmt.Errorf("cvpolicy: unknown policy %q", head)
}
