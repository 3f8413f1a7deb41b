// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package mech provides the kinetic mechanism runtime for the finite-volume
cable-cell engine: the polymorphic mechanism contract, the instance base
that binds a mechanism to a list of control volumes, the catalogue of
compiled mechanisms, and the built-in set (hh, pas, expsyn, exp2syn, gj).

A mechanism instance evaluates as a loop over its CV index list; state
arrays are aligned and padded to the shared lane width so implementations
are free to vectorize across the list.  Accumulation into the shared
current array is a serial reduction, so repeated CV indexes in a point
mechanism's list cannot race.
*/
package mech

import (
	"fmt"
	"math"

	"github.com/goki/ki/kit"
)

// Kinds are the kinds of mechanism.
type Kinds int32

const (
	// Density mechanisms are distributed over the membrane of their CVs
	// and contribute current density directly.
	Density Kinds = iota

	// Point mechanisms attach at discrete positions and contribute a
	// current that is converted to a density by the instance weight.
	Point

	KindsN
)

var KiT_Kinds = kit.Enums.AddEnum(KindsN, kit.NotBitFlag, nil)

func (mk Kinds) String() string {
	switch mk {
	case Density:
		return "Density"
	case Point:
		return "Point"
	}
	return "KindsInvalid"
}

// IonDep declares how a mechanism uses one ion species.
type IonDep struct {

	// canonical ion name as the mechanism was compiled, e.g. "na"
	Name string

	// reads the reversal potential eX
	ReadRev bool

	// accumulates into the ion current iX
	WriteCurrent bool

	// reads internal/external concentrations Xi, Xo
	ReadConc bool

	// writes internal/external concentrations
	WriteConc bool
}

// ParamSpec declares one settable parameter with its compiled default and
// legal range.
type ParamSpec struct {
	Name     string
	Default  float64
	Min, Max float64
}

// Info is the immutable description of a compiled mechanism: its name,
// kind, parameter and state fields, and ion dependencies.  The fingerprint
// identifies the compiled parameter layout.
type Info struct {
	Name   string
	Kind   Kinds
	Params []ParamSpec
	States []string
	Ions   []IonDep
}

// Fingerprint returns the compiled parameter fingerprint: the mechanism
// name followed by its parameter names in declaration order.
func (in *Info) Fingerprint() string {
	fp := in.Name
	for _, p := range in.Params {
		fp += ":" + p.Name
	}
	return fp
}

// ParamSpecByName returns the spec for a parameter, or nil.
func (in *Info) ParamSpecByName(nm string) *ParamSpec {
	for i := range in.Params {
		if in.Params[i].Name == nm {
			return &in.Params[i]
		}
	}
	return nil
}

// Shared is the view a mechanism holds into its group's shared state.
// Slices are indexed by global CV index; Celsius is the temperature the
// group integrates at.
type Shared struct {

	// membrane voltage [mV]
	V []float64

	// membrane current density [mA/cm²], accumulated by Current
	J []float64

	// per-CV sub-step length [ms]
	DtCV []float64

	// temperature [°C]
	Celsius float64

	// lane width state arrays are padded to
	Align int
}

// IonView is a mechanism's binding to one ion's state: parallel arrays
// indexed by ion-local position, plus the map from the mechanism's
// instance position to that ion-local position.
type IonView struct {

	// ion current [mA/cm²]
	Ix []float64

	// reversal potential [mV]
	Ex []float64

	// internal, external concentrations [mM]
	Xi, Xo []float64

	// instance position -> ion-local position
	Index []int32
}

// Mechanism is the polymorphic contract over one kinetic scheme bound to a
// subset of CVs.  All evaluation methods loop over the instance's CV list.
type Mechanism interface {

	// Name returns the catalogue name.
	Name() string

	// Kind returns Density or Point.
	Kind() Kinds

	// Info returns the immutable mechanism description.
	Info() *Info

	// Bind attaches the instance to the shared state over the given CV
	// list (ascending) with matching per-instance weights, allocating
	// aligned state arrays.  For density mechanisms the weight scales
	// current density contributions (1 for full coverage); for point
	// mechanisms it converts instance current [nA] to density [mA/cm²],
	// i.e. 100/area.
	Bind(sh *Shared, cv []int32, weight []float64)

	// BindIon attaches one declared ion dependency.
	BindIon(name string, iv *IonView) error

	// SetParam sets a parameter on every instance position.
	SetParam(name string, val float64) error

	// Init sets state variables to steady state at the present voltage.
	// Voltage and ion states must already be initialized.
	Init()

	// Current reads voltage and ion state and accumulates into the shared
	// current density, weighted per instance; ion-writing mechanisms also
	// accumulate their ion currents.
	Current()

	// State integrates the mechanism-internal state by one sub-step dt.
	// Must not write voltage.
	State()

	// NetReceive delivers one event on instance-local index i with weight
	// w.  Only valid on point mechanisms.
	NetReceive(i int32, w float64)

	// Reset reinitializes like Init and zeroes any event accumulators.
	Reset()
}

// Instance is the common base embedded by every concrete mechanism: the
// bound CV list, weights, and shared views.
type Instance struct {

	// shared state views, set by Bind
	Sh *Shared

	// global CV index per instance position, ascending
	CV []int32

	// per-instance weight applied to current contributions
	Weight []float64

	// number of instance positions
	N int
}

// Bind stores the CV list and weights.
func (in *Instance) Bind(sh *Shared, cv []int32, weight []float64) {
	in.Sh = sh
	in.CV = cv
	in.Weight = weight
	in.N = len(cv)
}

// PadLen returns n rounded up to the bound lane width.
func (in *Instance) PadLen(n int) int {
	al := 1
	if in.Sh != nil && in.Sh.Align > 1 {
		al = in.Sh.Align
	}
	return al * ((n + al - 1) / al)
}

// StateVec allocates one aligned, padded state array over the instance
// positions.
func (in *Instance) StateVec() []float64 {
	return make([]float64, in.N, in.PadLen(in.N))
}

// NetReceive on a non-point mechanism is an invalid operation; bindings
// are checked at initialization, so reaching this is a programming error.
func (in *Instance) NetReceive(i int32, w float64) {
	panic("mech: invalid operation: net_receive on a non-point mechanism")
}

// ExpEuler advances gating variable x by one step of the exponential Euler
// scheme: x + (1 − exp(−dt/tau))·(xinf − x).
func ExpEuler(x, xinf, tau, dt float64) float64 {
	return x + (1-math.Exp(-dt/tau))*(xinf-x)
}

// vtrap computes x/(exp(x/y)−1) with the removable singularity handled.
func vtrap(x, y float64) float64 {
	if math.Abs(x/y) < 1e-6 {
		return y * (1 - x/y/2)
	}
	return x / (math.Exp(x/y) - 1)
}

// checkRange validates a parameter value against its spec.
func checkRange(info *Info, nm string, val float64) error {
	ps := info.ParamSpecByName(nm)
	if ps == nil {
		return fmt.Errorf("%w: %s has no parameter %s", ErrNoSuchParameter, info.Name, nm)
	}
	if ps.Min < ps.Max && (val < ps.Min || val > ps.Max) {
		return fmt.Errorf("%w: %s.%s = %g outside [%g, %g]", ErrInvalidParameterValue, info.Name, nm, val, ps.Min, ps.Max)
	}
	return nil
}
