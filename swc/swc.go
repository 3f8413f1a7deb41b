// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package swc reads SWC morphology files into a sample tree and converts
sample trees into cable cell descriptions.  Each SWC record is
(id, tag, x, y, z, radius, parent); ids must be dense and each parent must
precede its children.  Tag 1 marks soma samples.
*/
package swc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emer/cable/cable"
	"github.com/goki/mat32"
)

// SomaTag is the SWC structure identifier for soma samples.
const SomaTag = 1

// Sample is one point of a sample tree.
type Sample struct {

	// structure identifier (1 = soma, 2 = axon, 3 = dendrite, ...)
	Tag int

	// position [µm]
	Pos mat32.Vec3

	// radius [µm]
	Radius float32

	// index of the parent sample, -1 for the root
	Parent int
}

// Tree is a morphology as a tree of samples in topological order:
// Samples[i].Parent < i for all non-root samples.
type Tree struct {
	Samples []Sample
}

// Append adds a sample, validating topological order, and returns its
// index.
func (tr *Tree) Append(s Sample) (int, error) {
	i := len(tr.Samples)
	if i == 0 {
		if s.Parent != -1 {
			return 0, fmt.Errorf("swc: first sample must be a root")
		}
	} else if s.Parent < 0 || s.Parent >= i {
		return 0, fmt.Errorf("swc: sample %d has undefined parent %d", i, s.Parent)
	}
	tr.Samples = append(tr.Samples, s)
	return i, nil
}

// NumChildren returns the child count per sample.
func (tr *Tree) NumChildren() []int {
	nc := make([]int, len(tr.Samples))
	for _, s := range tr.Samples {
		if s.Parent >= 0 {
			nc[s.Parent]++
		}
	}
	return nc
}

// Parse reads SWC records.  Lines starting with # and blank lines are
// skipped.  Record ids must be dense starting at 1, each record's parent
// must already have been read, and exactly one record (the first) must be
// a root.
func Parse(r io.Reader) (*Tree, error) {
	tr := &Tree{}
	sc := bufio.NewScanner(r)
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fs := strings.Fields(line)
		if len(fs) != 7 {
			return nil, fmt.Errorf("swc: line %d: want 7 fields, got %d", ln, len(fs))
		}
		id, err := strconv.Atoi(fs[0])
		if err != nil || id != len(tr.Samples)+1 {
			return nil, fmt.Errorf("swc: line %d: ids must be dense starting at 1", ln)
		}
		tag, err := strconv.Atoi(fs[1])
		if err != nil {
			return nil, fmt.Errorf("swc: line %d: bad tag %q", ln, fs[1])
		}
		var xyz [4]float64
		for k := 0; k < 4; k++ {
			xyz[k], err = strconv.ParseFloat(fs[2+k], 64)
			if err != nil {
				return nil, fmt.Errorf("swc: line %d: bad number %q", ln, fs[2+k])
			}
		}
		parent, err := strconv.Atoi(fs[6])
		if err != nil {
			return nil, fmt.Errorf("swc: line %d: bad parent %q", ln, fs[6])
		}
		if parent > 0 {
			parent-- // 1-based ids to 0-based indexes
		} else if parent != -1 {
			return nil, fmt.Errorf("swc: line %d: bad parent id %d", ln, parent)
		}
		_, err = tr.Append(Sample{
			Tag:    tag,
			Pos:    mat32.Vec3{X: float32(xyz[0]), Y: float32(xyz[1]), Z: float32(xyz[2])},
			Radius: float32(xyz[3]),
			Parent: parent,
		})
		if err != nil {
			return nil, fmt.Errorf("swc: line %d: %v", ln, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(tr.Samples) == 0 {
		return nil, fmt.Errorf("swc: no samples")
	}
	return tr, nil
}

// ToCell converts the sample tree into a cable cell description.  A root
// sample with the soma tag becomes a spherical soma; unbranched runs of
// samples become cable segments.  An isolated single-sample tree is valid
// only as a spherical soma, and a two-sample tree only as a cable.
func (tr *Tree) ToCell() (*cable.Cell, error) {
	ns := len(tr.Samples)
	root := tr.Samples[0]

	c := cable.NewCell()
	if ns == 1 {
		if root.Tag != SomaTag {
			return nil, fmt.Errorf("%w: an isolated sample is only valid as a spherical soma", cable.ErrInvalidMorphology)
		}
		c.Segs = append(c.Segs, cable.Segment{
			Kind:   cable.SphericalSoma,
			Points: []mat32.Vec3{root.Pos},
			Radii:  []float32{root.Radius},
			Cm:     0.01,
			Rl:     100,
		})
		c.Parents = append(c.Parents, -1)
		return c, nil
	}
	if ns == 2 && root.Tag == SomaTag {
		return nil, fmt.Errorf("%w: a two-sample tree is only valid as a cable", cable.ErrInvalidMorphology)
	}

	nc := tr.NumChildren()

	// segment index owning each sample's distal attachment
	segOf := make([]int, ns)
	for i := range segOf {
		segOf[i] = -1
	}

	if root.Tag == SomaTag {
		c.Segs = append(c.Segs, cable.Segment{
			Kind:   cable.SphericalSoma,
			Points: []mat32.Vec3{root.Pos},
			Radii:  []float32{root.Radius},
			Cm:     0.01,
			Rl:     100,
		})
		c.Parents = append(c.Parents, -1)
		segOf[0] = 0
	}

	// walk unbranched runs of samples; each run becomes one cable segment.
	// A run starts where the parent sample is a branch point, a soma, or
	// the root; it extends through samples with exactly one child.
	for i := 1; i < ns; i++ {
		s := tr.Samples[i]
		pa := s.Parent
		pseg := segOf[pa]
		if pseg >= 0 && c.Segs[pseg].Kind == cable.CableSeg && nc[pa] == 1 {
			// continue the parent's run
			c.Segs[pseg].Points = append(c.Segs[pseg].Points, s.Pos)
			c.Segs[pseg].Radii = append(c.Segs[pseg].Radii, s.Radius)
			segOf[i] = pseg
			continue
		}
		// start a new cable at the parent sample; the proximal radius
		// follows the run, not the soma
		r0 := s.Radius
		if pseg >= 0 && c.Segs[pseg].Kind == cable.CableSeg {
			r0 = tr.Samples[pa].Radius
		}
		sg := cable.Segment{
			Kind:   cable.CableSeg,
			Points: []mat32.Vec3{tr.Samples[pa].Pos, s.Pos},
			Radii:  []float32{r0, s.Radius},
			Cm:     0.01,
			Rl:     100,
		}
		c.Segs = append(c.Segs, sg)
		c.Parents = append(c.Parents, pseg)
		segOf[i] = len(c.Segs) - 1
	}
	return c, nil
}
