// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import "math"

// gas constant [J/(K·mol)] and Faraday constant [C/mol] for Nernst
const (
	gasConstant = 8.3144598
	faraday     = 96485.33289
)

// IonDefault gives the default state of one ion species.
type IonDefault struct {
	Charge int

	// default internal concentration [mM]
	IntConc float64

	// default external concentration [mM]
	ExtConc float64
}

// DefaultIons returns the standard ion table.  Reversal potentials are not
// tabulated: they are computed from the Nernst equation at reset.
func DefaultIons() map[string]IonDefault {
	return map[string]IonDefault{
		"na": {Charge: 1, IntConc: 10, ExtConc: 140},
		"k":  {Charge: 1, IntConc: 54.4, ExtConc: 2.5},
		"ca": {Charge: 2, IntConc: 5e-5, ExtConc: 2},
	}
}

// IonState holds the per-ion arrays over the subset of CVs touched by any
// mechanism that reads or writes this ion.  Field names follow the usual
// ion-variable convention, with X standing for the ion name: iX current,
// eX reversal potential, Xi/Xo internal/external concentrations.
type IonState struct {

	// ion name, e.g. "na", "k", "ca"
	Name string

	// charge of the ionic species
	Charge int

	// default internal, external concentrations [mM]
	DefaultXi, DefaultXo float64

	// global CV index per ion-local position, ascending
	CV []int32

	// ion current [mA/cm²], accumulated by mechanisms each sub-step
	Ix []float64

	// reversal potential [mV]
	Ex []float64

	// internal concentration [mM]
	Xi []float64

	// external concentration [mM]
	Xo []float64

	// weights applied to the default concentrations at initialization:
	// the fraction of the CV area whose mechanisms contribute concentration
	WeightXi, WeightXo []float64
}

// NewIonState allocates the ion arrays over the given CV subset.
func NewIonState(name string, def IonDefault, cv []int32, align int) *IonState {
	n := len(cv)
	is := &IonState{
		Name:      name,
		Charge:    def.Charge,
		DefaultXi: def.IntConc,
		DefaultXo: def.ExtConc,
		CV:        append([]int32(nil), cv...),
		Ix:        NewVec(n, align),
		Ex:        NewVec(n, align),
		Xi:        NewVec(n, align),
		Xo:        NewVec(n, align),
		WeightXi:  NewVecFill(n, align, 1),
		WeightXo:  NewVecFill(n, align, 1),
	}
	return is
}

// ZeroCurrent sets the ion current to zero.
func (is *IonState) ZeroCurrent() {
	Fill(is.Ix, 0)
}

// InitConcentration sets concentrations to the weighted proportion of the
// defaults.
func (is *IonState) InitConcentration() {
	for i := range is.Xi {
		is.Xi[i] = is.DefaultXi * is.WeightXi[i]
		is.Xo[i] = is.DefaultXo * is.WeightXo[i]
	}
}

// Nernst computes the reversal potential eX [mV] from the concentrations
// at the given temperature [K]:  eX = 1e3·R·T/(z·F) · ln(Xo/Xi)
func (is *IonState) Nernst(tempK float64) {
	fac := 1e3 * gasConstant * tempK / (float64(is.Charge) * faraday)
	for i := range is.Ex {
		is.Ex[i] = fac * math.Log(is.Xo[i]/is.Xi[i])
	}
}

// Reset reinitializes the ion: zero current, default concentrations,
// Nernst reversal at the given temperature [K].
func (is *IonState) Reset(tempK float64) {
	is.ZeroCurrent()
	is.InitConcentration()
	is.Nernst(tempK)
}
