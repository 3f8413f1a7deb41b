// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"fmt"

	"github.com/goki/ki/kit"
	"github.com/goki/mat32"
)

// Loc identifies a point on a cell as a segment index and a fractional
// position along that segment's arc length, in [0, 1].
type Loc struct {

	// index of the segment within the cell
	Seg int

	// fractional position along the segment: 0 = proximal end, 1 = distal end
	Pos float64
}

// SegKinds are the kinds of morphological segment.
type SegKinds int32

const (
	// SphericalSoma is a soma represented as a sphere, lowered to one CV.
	SphericalSoma SegKinds = iota

	// CableSeg is an unbranched cable of truncated cones.
	CableSeg

	SegKindsN
)

var KiT_SegKinds = kit.Enums.AddEnum(SegKindsN, kit.NotBitFlag, nil)

func (sk SegKinds) String() string {
	switch sk {
	case SphericalSoma:
		return "SphericalSoma"
	case CableSeg:
		return "CableSeg"
	}
	return "SegKindsInvalid"
}

// MechDesc names a mechanism from the catalogue together with parameter
// assignments that override the compiled defaults.  An empty Params map
// means all defaults.  IonRename maps a mechanism-declared ion dependency
// onto a differently-named global ion.
type MechDesc struct {

	// catalogue name of the mechanism
	Name string

	// parameter overrides by parameter name
	Params map[string]float64

	// optional renames of ion dependencies: mechanism ion name -> global ion name
	IonRename map[string]string

	// expected compiled parameter fingerprint; empty skips the check
	Fingerprint string
}

// Segment is one unbranched piece of a cell.  A spherical soma has exactly
// one point and one radius.  A cable has at least two points defining a
// piecewise-linear path, with a radius at each point.
type Segment struct {

	// segment kind
	Kind SegKinds

	// sample points along the segment path [µm]
	Points []mat32.Vec3

	// radius at each point [µm]
	Radii []float32

	// membrane capacitance per area [F/m²]
	Cm float64 `def:"0.01"`

	// axial resistivity [Ω·cm]
	Rl float64 `def:"100"`

	// density mechanisms attached to this segment
	Mechs []MechDesc
}

// Length returns the total arc length of the segment path [µm].
// A spherical soma has zero length.
func (sg *Segment) Length() float64 {
	ln := 0.0
	for i := 1; i < len(sg.Points); i++ {
		ln += float64(sg.Points[i].DistTo(sg.Points[i-1]))
	}
	return ln
}

// NPieces returns the number of piecewise-linear pieces of the path.
func (sg *Segment) NPieces() int {
	if len(sg.Points) < 2 {
		return 0
	}
	return len(sg.Points) - 1
}

// Synapse places a point mechanism at a location on the cell.  The order of
// synapses in the cell defines the cell-local target index used for event
// delivery.  The optional label lets connection endpoints be resolved by
// name at binding time.
type Synapse struct {
	Loc  Loc
	Mech MechDesc

	// optional connection label; need not be unique unless resolved
	// through TargetByLabel
	Label string
}

// Detector is a voltage threshold spike detector.  The order of detectors
// defines the cell-local spike source index.
type Detector struct {
	Loc Loc

	// threshold [mV] for an upward crossing
	Threshold float64
}

// ProbeKinds are the kinds of measurable quantity a probe can address.
type ProbeKinds int32

const (
	// ProbeVoltage probes the membrane voltage [mV] at the CV containing the location.
	ProbeVoltage ProbeKinds = iota

	// ProbeCurrent probes the membrane current density [mA/cm²].
	ProbeCurrent

	ProbeKindsN
)

var KiT_ProbeKinds = kit.Enums.AddEnum(ProbeKindsN, kit.NotBitFlag, nil)

func (pk ProbeKinds) String() string {
	switch pk {
	case ProbeVoltage:
		return "ProbeVoltage"
	case ProbeCurrent:
		return "ProbeCurrent"
	}
	return "ProbeKindsInvalid"
}

// ProbeDesc declares a probeable location on a cell.  Probes are addressed
// by (cell gid, index in this list).
type ProbeDesc struct {
	Loc  Loc
	Kind ProbeKinds

	// opaque tag passed through to sampler callbacks
	Tag int
}

// IClamp is a rectangular current injection.
type IClamp struct {

	// onset time [ms]
	Delay float64

	// duration [ms]
	Duration float64

	// injected current [nA]
	Amplitude float64
}

// Amp returns the injected current at time t [nA].
func (ic *IClamp) Amp(t float64) float64 {
	if t >= ic.Delay && t < ic.Delay+ic.Duration {
		return ic.Amplitude
	}
	return 0
}

// Stim is a current injection attached at a location.
type Stim struct {
	Loc   Loc
	Clamp IClamp
}

// Cell is the description of one morphologically detailed neuron: a tree of
// segments plus attached point processes.  It is input only -- the engine
// lowers it to control volumes at initialization and never mutates it.
type Cell struct {

	// segments in topological order: Parents[i] < i for all non-root segments
	Segs []Segment

	// parent segment index per segment, -1 for the root
	Parents []int

	// point mechanisms; order defines target indexes
	Syns []Synapse

	// spike detectors; order defines source indexes
	Detectors []Detector

	// probeable locations; order defines probe indexes
	Probes []ProbeDesc

	// current injections
	Stims []Stim
}

// NewCell returns an empty cell.
func NewCell() *Cell {
	return &Cell{}
}

// AddSoma appends a spherical soma segment with the given radius [µm]
// as the root segment, returning its index.
func (c *Cell) AddSoma(radius float32) int {
	c.Segs = append(c.Segs, Segment{
		Kind:   SphericalSoma,
		Points: []mat32.Vec3{{}},
		Radii:  []float32{radius},
		Cm:     0.01,
		Rl:     100,
	})
	c.Parents = append(c.Parents, -1)
	return len(c.Segs) - 1
}

// AddCable appends a straight cable segment of given length and constant
// radius [µm], attached to parent segment, returning its index.
func (c *Cell) AddCable(parent int, length, radius float32) int {
	var orig mat32.Vec3
	if parent >= 0 {
		pts := c.Segs[parent].Points
		orig = pts[len(pts)-1]
	}
	c.Segs = append(c.Segs, Segment{
		Kind:   CableSeg,
		Points: []mat32.Vec3{orig, orig.Add(mat32.Vec3{X: length})},
		Radii:  []float32{radius, radius},
		Cm:     0.01,
		Rl:     100,
	})
	c.Parents = append(c.Parents, parent)
	return len(c.Segs) - 1
}

// AddSynapse attaches a point mechanism, returning the target index.
func (c *Cell) AddSynapse(loc Loc, md MechDesc) int {
	c.Syns = append(c.Syns, Synapse{Loc: loc, Mech: md})
	return len(c.Syns) - 1
}

// AddSynapseLabeled attaches a point mechanism under a connection label,
// returning the target index.
func (c *Cell) AddSynapseLabeled(loc Loc, md MechDesc, label string) int {
	c.Syns = append(c.Syns, Synapse{Loc: loc, Mech: md, Label: label})
	return len(c.Syns) - 1
}

// TargetByLabel resolves a connection label to the cell-local target
// index.  The label must resolve to exactly one synapse: an unknown label
// is a bad connection label, an ambiguous one a bad univalent label.
// Resolution happens at binding time, never during a step.
func (c *Cell) TargetByLabel(label string) (int, error) {
	found := -1
	for ti := range c.Syns {
		if c.Syns[ti].Label != label {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("%w: %q matches targets %d and %d", ErrBadUnivalentLabel, label, found, ti)
		}
		found = ti
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: no target labelled %q", ErrBadConnectionLabel, label)
	}
	return found, nil
}

// AddDetector attaches a spike detector, returning the source index.
func (c *Cell) AddDetector(loc Loc, thresh float64) int {
	c.Detectors = append(c.Detectors, Detector{Loc: loc, Threshold: thresh})
	return len(c.Detectors) - 1
}

// AddProbe declares a probe, returning the probe index.
func (c *Cell) AddProbe(loc Loc, kind ProbeKinds, tag int) int {
	c.Probes = append(c.Probes, ProbeDesc{Loc: loc, Kind: kind, Tag: tag})
	return len(c.Probes) - 1
}

// AddStim attaches a current clamp.
func (c *Cell) AddStim(loc Loc, clamp IClamp) {
	c.Stims = append(c.Stims, Stim{Loc: loc, Clamp: clamp})
}

// SetSegMech attaches a density mechanism to segment si.
func (c *Cell) SetSegMech(si int, md MechDesc) {
	c.Segs[si].Mechs = append(c.Segs[si].Mechs, md)
}

// SetAllSegMech attaches a density mechanism to every segment.
func (c *Cell) SetAllSegMech(md MechDesc) {
	for si := range c.Segs {
		c.SetSegMech(si, md)
	}
}
