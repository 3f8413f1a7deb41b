// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import "errors"

// Error kinds surfaced by the engine.  Initialization errors terminate
// construction of a CellGroup; Advance-time errors terminate the run and
// leave the engine state undefined.  Wrap sites use fmt.Errorf with %w so
// callers can classify with errors.Is.
var (
	// ErrInvalidMorphology is returned by the CV discretizer for cell
	// geometries that cannot be lowered (e.g. a single-sample tree that is
	// not a spherical soma).
	ErrInvalidMorphology = errors.New("invalid morphology")

	// ErrBadEventTime is returned when a staged event strictly precedes the
	// current time of its target cell.
	ErrBadEventTime = errors.New("bad event time")

	// ErrNumericalInstability is returned when a solver step produces a
	// non-finite voltage or one outside [-1000, 1000] mV.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrGapJunction is returned when two cells joined by a gap junction
	// are placed in different cell groups.
	ErrGapJunction = errors.New("gap-junction configuration error")

	// ErrInvalidIonRemap is returned when mechanisms declare conflicting
	// renames for the same ion dependency.
	ErrInvalidIonRemap = errors.New("invalid ion remap")

	// ErrBadProbeID is returned at sampler binding for probe ids that do
	// not exist in the group.
	ErrBadProbeID = errors.New("bad probe id")

	// ErrBadConnectionLabel is returned at binding for event targets that
	// do not resolve to a point mechanism instance.
	ErrBadConnectionLabel = errors.New("bad connection label")

	// ErrBadUnivalentLabel is returned at binding when a label that must
	// resolve to exactly one item resolves to several.
	ErrBadUnivalentLabel = errors.New("bad univalent connection label")
)
