// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mech

import (
	"fmt"
	"math"
)

// HHParams are the maximal conductances and leak reversal for the
// Hodgkin-Huxley squid axon channels.
type HHParams struct {

	// maximal sodium conductance [S/cm²]
	Gnabar float64 `def:"0.12"`

	// maximal potassium conductance [S/cm²]
	Gkbar float64 `def:"0.036"`

	// leak conductance [S/cm²]
	Gl float64 `def:"0.0003"`

	// leak reversal potential [mV]
	El float64 `def:"-54.3"`
}

func (hp *HHParams) Defaults() {
	hp.Gnabar = 0.12
	hp.Gkbar = 0.036
	hp.Gl = 0.0003
	hp.El = -54.3
}

// HH is the classic Hodgkin-Huxley sodium, potassium and leak density
// mechanism, with m³h sodium and n⁴ potassium gating and a q10 of 3
// relative to 6.3 °C.  Gates advance by the exponential Euler scheme.
type HH struct {
	Instance
	Params HHParams

	// gating variables per instance position
	M, H, N4 []float64

	// ion bindings
	Na, K *IonView
}

var hhInfo = Info{
	Name: "hh",
	Kind: Density,
	Params: []ParamSpec{
		{Name: "gnabar", Default: 0.12, Min: 0, Max: 1e9},
		{Name: "gkbar", Default: 0.036, Min: 0, Max: 1e9},
		{Name: "gl", Default: 0.0003, Min: 0, Max: 1e9},
		{Name: "el", Default: -54.3},
	},
	States: []string{"m", "h", "n"},
	Ions: []IonDep{
		{Name: "na", ReadRev: true, WriteCurrent: true},
		{Name: "k", ReadRev: true, WriteCurrent: true},
	},
}

func NewHH() *HH {
	hh := &HH{}
	hh.Params.Defaults()
	return hh
}

func (hh *HH) Name() string { return "hh" }
func (hh *HH) Kind() Kinds  { return Density }
func (hh *HH) Info() *Info  { return &hhInfo }

func (hh *HH) Bind(sh *Shared, cv []int32, weight []float64) {
	hh.Instance.Bind(sh, cv, weight)
	hh.M = hh.StateVec()
	hh.H = hh.StateVec()
	hh.N4 = hh.StateVec()
}

func (hh *HH) BindIon(name string, iv *IonView) error {
	switch name {
	case "na":
		hh.Na = iv
	case "k":
		hh.K = iv
	default:
		return fmt.Errorf("hh: no ion dependency %s", name)
	}
	return nil
}

func (hh *HH) SetParam(name string, val float64) error {
	if err := checkRange(&hhInfo, name, val); err != nil {
		return err
	}
	switch name {
	case "gnabar":
		hh.Params.Gnabar = val
	case "gkbar":
		hh.Params.Gkbar = val
	case "gl":
		hh.Params.Gl = val
	case "el":
		hh.Params.El = val
	}
	return nil
}

// hhRates holds the voltage-dependent steady states and time constants.
type hhRates struct {
	minf, mtau float64
	hinf, htau float64
	ninf, ntau float64
}

// rates computes the gate kinetics at voltage v [mV] with the temperature
// correction for the bound Celsius.
func (hh *HH) rates(v float64) hhRates {
	q10 := math.Pow(3, (hh.Sh.Celsius-6.3)/10)

	am := 0.1 * vtrap(-(v+40), 10)
	bm := 4 * math.Exp(-(v+65)/18)
	ah := 0.07 * math.Exp(-(v+65)/20)
	bh := 1 / (math.Exp(-(v+35)/10) + 1)
	an := 0.01 * vtrap(-(v+55), 10)
	bn := 0.125 * math.Exp(-(v+65)/80)

	var r hhRates
	sm := q10 * (am + bm)
	r.minf = am / (am + bm)
	r.mtau = 1 / sm
	sh := q10 * (ah + bh)
	r.hinf = ah / (ah + bh)
	r.htau = 1 / sh
	sn := q10 * (an + bn)
	r.ninf = an / (an + bn)
	r.ntau = 1 / sn
	return r
}

func (hh *HH) Init() {
	for i, cv := range hh.CV {
		r := hh.rates(hh.Sh.V[cv])
		hh.M[i] = r.minf
		hh.H[i] = r.hinf
		hh.N4[i] = r.ninf
	}
}

func (hh *HH) Current() {
	for i, cv := range hh.CV {
		v := hh.Sh.V[cv]
		m, h, n := hh.M[i], hh.H[i], hh.N4[i]

		ena := hh.Na.Ex[hh.Na.Index[i]]
		ek := hh.K.Ex[hh.K.Index[i]]

		gna := hh.Params.Gnabar * m * m * m * h
		ina := gna * (v - ena)
		gk := hh.Params.Gkbar * n * n * n * n
		ik := gk * (v - ek)
		il := hh.Params.Gl * (v - hh.Params.El)

		w := hh.Weight[i]
		hh.Sh.J[cv] += w * (ina + ik + il)
		hh.Na.Ix[hh.Na.Index[i]] += w * ina
		hh.K.Ix[hh.K.Index[i]] += w * ik
	}
}

func (hh *HH) State() {
	for i, cv := range hh.CV {
		r := hh.rates(hh.Sh.V[cv])
		dt := hh.Sh.DtCV[cv]
		hh.M[i] = ExpEuler(hh.M[i], r.minf, r.mtau, dt)
		hh.H[i] = ExpEuler(hh.H[i], r.hinf, r.htau, dt)
		hh.N4[i] = ExpEuler(hh.N4[i], r.ninf, r.ntau, dt)
	}
}

func (hh *HH) Reset() {
	hh.Init()
}
