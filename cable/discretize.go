// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"fmt"
	"math"

	"github.com/emer/cable/cvpolicy"
)

// Disc is the finite-volume lowering of one cell: the control volumes
// (CVs), their tree structure, and the geometric coefficients the matrix
// and mechanisms need.  CV indexes are cell-local here; the group offsets
// them when cells are concatenated.
type Disc struct {

	// number of control volumes
	NCV int

	// parent CV index per CV; -1 for the root
	Parent []int32

	// surface area per CV [µm²]
	Area []float64

	// membrane capacitance per area for each CV [F/m²], normalized by area
	Cm []float64

	// face coupling coefficient to the parent CV:
	// faceAlpha[i] = π·r_face² / (c_m · r_L · Δx), Δx = center-to-center
	// distance across the face.  The matrix axial term is 1e5·dt·faceAlpha.
	FaceAlpha []float64

	// CV indexes per segment, proximal to distal, covering that segment's centers
	SegCV [][]int32

	// compartment count per segment
	SegNComp []int

	// total membrane area contributed by each segment [µm²], regardless of
	// which CV the half-frusta were assigned to
	SegAreaSum []float64

	// whether segment 0 is a cable with its own proximal root CV
	rootCable bool
}

// sphereArea returns the surface area of a sphere of radius r.
func sphereArea(r float64) float64 {
	return 4 * math.Pi * r * r
}

// circleArea returns the area of a circle of radius r.
func circleArea(r float64) float64 {
	return math.Pi * r * r
}

// frustumArea returns the lateral surface area of a truncated cone with
// end radii r1, r2 and axial length h.
func frustumArea(h, r1, r2 float64) float64 {
	dr := r1 - r2
	return math.Pi * (r1 + r2) * math.Sqrt(h*h+dr*dr)
}

// segGeom is the arc-length parameterization of one cable segment.
type segGeom struct {
	cum   []float64 // cumulative arc length at each point
	radii []float64
	total float64
}

func newSegGeom(sg *Segment) *segGeom {
	np := len(sg.Points)
	ge := &segGeom{cum: make([]float64, np), radii: make([]float64, np)}
	for i := 0; i < np; i++ {
		ge.radii[i] = float64(sg.Radii[i])
		if i > 0 {
			ge.cum[i] = ge.cum[i-1] + float64(sg.Points[i].DistTo(sg.Points[i-1]))
		}
	}
	ge.total = ge.cum[np-1]
	return ge
}

// radiusAt returns the radius at arc length x, linearly interpolated.
func (ge *segGeom) radiusAt(x float64) float64 {
	n := len(ge.cum)
	if x <= 0 {
		return ge.radii[0]
	}
	if x >= ge.total {
		return ge.radii[n-1]
	}
	for i := 1; i < n; i++ {
		if x <= ge.cum[i] {
			span := ge.cum[i] - ge.cum[i-1]
			if span == 0 {
				return ge.radii[i]
			}
			f := (x - ge.cum[i-1]) / span
			return ge.radii[i-1] + f*(ge.radii[i]-ge.radii[i-1])
		}
	}
	return ge.radii[n-1]
}

// geomArea returns the geometric membrane area of the whole segment:
// the sphere for a soma, the sum of the frusta of its pieces for a cable.
func geomArea(sg *Segment) float64 {
	if sg.Kind == SphericalSoma {
		return sphereArea(float64(sg.Radii[0]))
	}
	area := 0.0
	for i := 1; i < len(sg.Points); i++ {
		h := float64(sg.Points[i].DistTo(sg.Points[i-1]))
		area += frustumArea(h, float64(sg.Radii[i-1]), float64(sg.Radii[i]))
	}
	return area
}

func validateCell(c *Cell) error {
	if len(c.Segs) == 0 {
		return fmt.Errorf("%w: cell has no segments", ErrInvalidMorphology)
	}
	if len(c.Parents) != len(c.Segs) {
		return fmt.Errorf("%w: parent list does not match segment list", ErrInvalidMorphology)
	}
	for si := range c.Segs {
		sg := &c.Segs[si]
		pa := c.Parents[si]
		if si == 0 && pa != -1 {
			return fmt.Errorf("%w: segment 0 must be the root", ErrInvalidMorphology)
		}
		if si > 0 && (pa < 0 || pa >= si) {
			return fmt.Errorf("%w: segment %d parent %d is not topological", ErrInvalidMorphology, si, pa)
		}
		if len(sg.Points) != len(sg.Radii) {
			return fmt.Errorf("%w: segment %d has %d points but %d radii", ErrInvalidMorphology, si, len(sg.Points), len(sg.Radii))
		}
		for _, r := range sg.Radii {
			if r <= 0 {
				return fmt.Errorf("%w: segment %d has non-positive radius", ErrInvalidMorphology, si)
			}
		}
		switch sg.Kind {
		case SphericalSoma:
			if si != 0 {
				return fmt.Errorf("%w: spherical soma only valid as the root segment", ErrInvalidMorphology)
			}
			if len(sg.Points) != 1 {
				return fmt.Errorf("%w: spherical soma must have exactly one sample", ErrInvalidMorphology)
			}
		case CableSeg:
			if len(sg.Points) < 2 {
				return fmt.Errorf("%w: cable segment %d needs at least two samples", ErrInvalidMorphology, si)
			}
			if sg.Length() <= 0 {
				return fmt.Errorf("%w: cable segment %d has zero length", ErrInvalidMorphology, si)
			}
		default:
			return fmt.Errorf("%w: segment %d has unknown kind", ErrInvalidMorphology, si)
		}
		if sg.Cm <= 0 || sg.Rl <= 0 {
			return fmt.Errorf("%w: segment %d has non-positive membrane parameters", ErrInvalidMorphology, si)
		}
	}
	return nil
}

// Discretize lowers one cell into control volumes under the given policy.
// CV centers are placed at the compartment endpoints; the face between two
// adjacent CVs sits at the center of the compartment joining them.  A CV's
// area is the sum of the half-frusta on either side of its center; its
// capacitance accumulates area·c_m from the contributing half-frusta and is
// divided through by area at the end, so downstream formulas see per-area
// capacitance.
func Discretize(c *Cell, pol cvpolicy.Policy) (*Disc, error) {
	if err := validateCell(c); err != nil {
		return nil, err
	}
	if pol == nil {
		pol = cvpolicy.Default()
	}

	dc := &Disc{
		SegCV:      make([][]int32, len(c.Segs)),
		SegNComp:   make([]int, len(c.Segs)),
		SegAreaSum: make([]float64, len(c.Segs)),
	}

	// distal (attachment) CV per segment
	distal := make([]int32, len(c.Segs))

	addCV := func(parent int32) int32 {
		i := int32(dc.NCV)
		dc.NCV++
		dc.Parent = append(dc.Parent, parent)
		dc.Area = append(dc.Area, 0)
		dc.Cm = append(dc.Cm, 0)
		dc.FaceAlpha = append(dc.FaceAlpha, 0)
		return i
	}

	for si := range c.Segs {
		sg := &c.Segs[si]
		if sg.Kind == SphericalSoma {
			cv := addCV(-1)
			area := sphereArea(float64(sg.Radii[0]))
			dc.Area[cv] += area
			dc.Cm[cv] += area * sg.Cm
			dc.SegAreaSum[si] = area
			dc.SegCV[si] = []int32{cv}
			dc.SegNComp[si] = 1
			distal[si] = cv
			continue
		}

		ge := newSegGeom(sg)
		ncomp := pol.Compartments(ge.total, sg.NPieces())
		if ncomp < 1 {
			ncomp = 1
		}
		dc.SegNComp[si] = ncomp
		clen := ge.total / float64(ncomp)

		// parent-side CV for the first compartment's left half
		var pcv int32
		if si == 0 {
			// a root cable gets its own proximal CV at the first sample
			pcv = addCV(-1)
			dc.rootCable = true
			dc.SegCV[si] = append(dc.SegCV[si], pcv)
		} else {
			pcv = distal[c.Parents[si]]
		}

		for k := 0; k < ncomp; k++ {
			x0 := float64(k) * clen
			x1 := float64(k+1) * clen
			r0 := ge.radiusAt(x0)
			r1 := ge.radiusAt(x1)
			rc := 0.5 * (r0 + r1)

			cv := addCV(pcv)
			dc.SegCV[si] = append(dc.SegCV[si], cv)

			// face between pcv and cv sits at the compartment center
			dc.FaceAlpha[cv] = circleArea(rc) / (sg.Cm * sg.Rl * clen)

			half := 0.5 * clen
			al := frustumArea(half, r0, rc)
			ar := frustumArea(half, rc, r1)

			dc.Area[pcv] += al
			dc.Cm[pcv] += al * sg.Cm
			dc.Area[cv] += ar
			dc.Cm[cv] += ar * sg.Cm
			dc.SegAreaSum[si] += al + ar

			pcv = cv
		}
		distal[si] = pcv
	}

	// normalize capacitance to per-area
	for i := 0; i < dc.NCV; i++ {
		if dc.Area[i] <= 0 {
			return nil, fmt.Errorf("%w: control volume %d has zero area", ErrInvalidMorphology, i)
		}
		dc.Cm[i] /= dc.Area[i]
	}
	return dc, nil
}

// LocCV returns the cell-local CV containing the given fractional location:
// the CV whose surface the point at that arc length belongs to.  On a
// non-root segment the proximal half of the first compartment, whose
// surface belongs to the parent segment's distal CV, maps to the
// segment's own first CV instead.
func (dc *Disc) LocCV(loc Loc) int32 {
	cvs := dc.SegCV[loc.Seg]
	n := dc.SegNComp[loc.Seg]
	if len(cvs) == 1 { // soma
		return cvs[0]
	}
	first := 0
	if loc.Seg == 0 && dc.rootCable {
		first = 1 // cvs[0] is the proximal root CV
	}
	u := loc.Pos * float64(n)
	k := int(u)
	if k >= n {
		k = n - 1
	}
	rightCV := cvs[first+k]
	if u-float64(k) >= 0.5 || (k == 0 && first == 0) {
		return rightCV
	}
	if k == 0 {
		return cvs[0] // proximal root CV
	}
	return cvs[first+k-1]
}

// GeomArea returns the geometric membrane area of segment si [µm²].
func (dc *Disc) GeomArea(c *Cell, si int) float64 {
	return geomArea(&c.Segs[si])
}
