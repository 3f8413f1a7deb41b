// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/emer/etable/v2/minmax"
)

// SharedState owns the mutable per-CV and per-cell arrays that all
// mechanisms and the matrix operate on during integration.  The arrays are
// exclusively owned by their cell group while Advance runs.  All vectors
// are padded to the Align lane width.
type SharedState struct {

	// lane width that vectors are aligned and padded to
	Align int

	// number of distinct cells (integration domains)
	NCell int

	// total number of CVs
	NCV int

	// owning cell index per CV
	CVToCell []int32

	// integration start time per cell [ms]
	Time []float64

	// integration stop time per cell [ms]
	TimeTo []float64

	// TimeTo - Time per cell [ms]
	DtCell []float64

	// per-CV dt, propagated from the owning cell [ms]
	DtCV []float64

	// membrane voltage per CV [mV]
	Voltage []float64

	// membrane current density per CV [mA/cm²]
	Current []float64

	// ion states by ion name; an entry exists iff some mechanism
	// references that ion
	Ions map[string]*IonState
}

// NewSharedState allocates shared state for ncell cells whose CVs are
// mapped by cvToCell.
func NewSharedState(ncell int, cvToCell []int32, align int) *SharedState {
	if align <= 0 {
		align = DefaultAlign
	}
	ncv := len(cvToCell)
	st := &SharedState{
		Align:    align,
		NCell:    ncell,
		NCV:      ncv,
		CVToCell: append([]int32(nil), cvToCell...),
		Time:     NewVec(ncell, align),
		TimeTo:   NewVec(ncell, align),
		DtCell:   NewVec(ncell, align),
		DtCV:     NewVec(ncv, align),
		Voltage:  NewVec(ncv, align),
		Current:  NewVec(ncv, align),
		Ions:     make(map[string]*IonState),
	}
	return st
}

// AddIon creates the state for one ion species over the given CV subset.
func (st *SharedState) AddIon(name string, def IonDefault, cv []int32) *IonState {
	is := NewIonState(name, def, cv, st.Align)
	st.Ions[name] = is
	return is
}

// IonNames returns the ion names in sorted order, for deterministic
// iteration.
func (st *SharedState) IonNames() []string {
	nms := make([]string, 0, len(st.Ions))
	for nm := range st.Ions {
		nms = append(nms, nm)
	}
	sort.Strings(nms)
	return nms
}

// ZeroCurrents sets the membrane current density and every ion current
// to zero.
func (st *SharedState) ZeroCurrents() {
	Fill(st.Current, 0)
	for _, nm := range st.IonNames() {
		st.Ions[nm].ZeroCurrent()
	}
}

// UpdateTimeTo sets each cell's stop time to min(time + dtStep, tmax).
func (st *SharedState) UpdateTimeTo(dtStep, tmax float64) {
	for ci := 0; ci < st.NCell; ci++ {
		t := st.Time[ci] + dtStep
		if t > tmax {
			t = tmax
		}
		st.TimeTo[ci] = t
	}
}

// SetDt computes the per-cell dt from TimeTo - Time and propagates it to
// each cell's CVs.
func (st *SharedState) SetDt() {
	for ci := 0; ci < st.NCell; ci++ {
		st.DtCell[ci] = st.TimeTo[ci] - st.Time[ci]
	}
	for i := 0; i < st.NCV; i++ {
		st.DtCV[i] = st.DtCell[st.CVToCell[i]]
	}
}

// AdvanceTime sets each cell's time to its stop time.
func (st *SharedState) AdvanceTime() {
	copy(st.Time, st.TimeTo)
}

// MinTime returns the earliest cell time [ms].
func (st *SharedState) MinTime() float64 {
	return st.TimeBounds().Min
}

// TimeBounds returns the (min, max) cell time [ms].
func (st *SharedState) TimeBounds() minmax.F64 {
	bd := minmax.F64{Min: math.Inf(1), Max: math.Inf(-1)}
	for ci := 0; ci < st.NCell; ci++ {
		t := st.Time[ci]
		if t < bd.Min {
			bd.Min = t
		}
		if t > bd.Max {
			bd.Max = t
		}
	}
	return bd
}

// VoltageBounds returns the (min, max) membrane voltage [mV] across all
// CVs, used to test liveness of the integration.
func (st *SharedState) VoltageBounds() minmax.F64 {
	bd := minmax.F64{Min: math.Inf(1), Max: math.Inf(-1)}
	for i := 0; i < st.NCV; i++ {
		v := st.Voltage[i]
		if v < bd.Min {
			bd.Min = v
		}
		if v > bd.Max {
			bd.Max = v
		}
	}
	return bd
}

// Reset fills the voltage with v0, zeroes currents and times, and
// reinitializes every ion: default-weighted concentrations and Nernst
// reversal potentials at temperature tempK [K].
func (st *SharedState) Reset(v0, tempK float64) {
	Fill(st.Voltage, v0)
	Fill(st.Current, 0)
	Fill(st.Time, 0)
	Fill(st.TimeTo, 0)
	Fill(st.DtCell, 0)
	Fill(st.DtCV, 0)
	for _, nm := range st.IonNames() {
		st.Ions[nm].Reset(tempK)
	}
}

// SizeReport returns a summary of the memory allocated to the state
// arrays.
func (st *SharedState) SizeReport() string {
	var b strings.Builder
	fsz := int(unsafe.Sizeof(float64(0)))
	cvMem := 4 * PadLen(st.NCV, st.Align) * fsz
	cellMem := 3 * PadLen(st.NCell, st.Align) * fsz
	ionMem := 0
	for _, nm := range st.IonNames() {
		is := st.Ions[nm]
		ionMem += 6 * PadLen(len(is.CV), st.Align) * fsz
	}
	fmt.Fprintf(&b, "Cells: %d\t CVs: %d\t CVMem: %v\t CellMem: %v\t IonMem: %v\n",
		st.NCell, st.NCV,
		(datasize.ByteSize)(cvMem).HumanReadable(),
		(datasize.ByteSize)(cellMem).HumanReadable(),
		(datasize.ByteSize)(ionMem).HumanReadable())
	return b.String()
}
