// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

// GapJunction is one electrical coupling declared on a cell: the local
// attachment point, the peer cell and its attachment point, and the
// conductance.  Couplings are symmetric: each side declares its own
// half so both cells see the current.
type GapJunction struct {

	// attachment on the declaring cell
	Local Loc

	// peer cell gid
	Peer int

	// attachment on the peer cell
	PeerLoc Loc

	// coupling conductance [µS]
	G float64
}

// Recipe describes a model to the engine, one cell at a time.  The engine
// depends only on the operations below; connectivity between cells is the
// business of the external spike exchange.
type Recipe interface {

	// NumCells returns the total number of cells in the model.
	NumCells() int

	// Cell returns the description of the cell with the given gid.
	Cell(gid int) (*Cell, error)

	// NumSources returns the number of spike sources (detectors) on gid.
	NumSources(gid int) int

	// NumTargets returns the number of event targets (synapses) on gid.
	NumTargets(gid int) int

	// NumProbes returns the number of probes on gid.
	NumProbes(gid int) int

	// GapJunctionsOn returns the gap junctions attached to gid.
	GapJunctionsOn(gid int) []GapJunction
}

// Epoch is one macro-step interval: the engine integrates from the cells'
// current times up to TFinal, then synchronizes with the caller.
type Epoch struct {

	// epoch start [ms]; informational, cells carry their own time
	T0 float64

	// epoch end [ms]
	TFinal float64
}

// SourceID is the global identifier of one spike source: the cell gid and
// the detector index on that cell.
type SourceID struct {
	GID   int
	Index int
}

// Spike is one threshold crossing, identified by its global source and
// time [ms].
type Spike struct {
	Source SourceID
	Time   float64
}

// ProbeID is the global identifier of one probe.
type ProbeID struct {
	GID   int
	Index int
}

// SimpleRecipe is a Recipe over a fixed list of cell descriptions, for
// tests and examples.
type SimpleRecipe struct {
	Cells []*Cell

	// gap junctions by gid
	GJs map[int][]GapJunction
}

// NewSimpleRecipe wraps the given cells.
func NewSimpleRecipe(cells ...*Cell) *SimpleRecipe {
	return &SimpleRecipe{Cells: cells, GJs: make(map[int][]GapJunction)}
}

// AddGapJunction declares a symmetric coupling between (gidA, locA) and
// (gidB, locB) with conductance g [µS].
func (sr *SimpleRecipe) AddGapJunction(gidA int, locA Loc, gidB int, locB Loc, g float64) {
	sr.GJs[gidA] = append(sr.GJs[gidA], GapJunction{Local: locA, Peer: gidB, PeerLoc: locB, G: g})
	sr.GJs[gidB] = append(sr.GJs[gidB], GapJunction{Local: locB, Peer: gidA, PeerLoc: locA, G: g})
}

func (sr *SimpleRecipe) NumCells() int { return len(sr.Cells) }

func (sr *SimpleRecipe) Cell(gid int) (*Cell, error) {
	return sr.Cells[gid], nil
}

func (sr *SimpleRecipe) NumSources(gid int) int { return len(sr.Cells[gid].Detectors) }
func (sr *SimpleRecipe) NumTargets(gid int) int { return len(sr.Cells[gid].Syns) }
func (sr *SimpleRecipe) NumProbes(gid int) int  { return len(sr.Cells[gid].Probes) }

func (sr *SimpleRecipe) GapJunctionsOn(gid int) []GapJunction {
	return sr.GJs[gid]
}
