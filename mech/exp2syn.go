// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mech

import "math"

// Exp2SynParams are the bi-exponential synapse parameters; Tau1 < Tau2.
type Exp2SynParams struct {

	// rise time constant [ms]
	Tau1 float64 `def:"0.5"`

	// decay time constant [ms]
	Tau2 float64 `def:"2"`

	// reversal potential [mV]
	E float64 `def:"0"`
}

func (ep *Exp2SynParams) Defaults() {
	ep.Tau1 = 0.5
	ep.Tau2 = 2
	ep.E = 0
}

// Exp2Syn is a point synapse with a difference-of-exponentials conductance
// g = B − A, normalized so a unit-weight event peaks at 1 µS.
type Exp2Syn struct {
	Instance
	Params Exp2SynParams

	// rise and decay states per instance position [µS]
	A, B []float64

	// weight normalization so the conductance peak equals the weight
	factor float64
}

var exp2SynInfo = Info{
	Name: "exp2syn",
	Kind: Point,
	Params: []ParamSpec{
		{Name: "tau1", Default: 0.5, Min: 1e-3, Max: 1e9},
		{Name: "tau2", Default: 2, Min: 1e-3, Max: 1e9},
		{Name: "e", Default: 0},
	},
	States: []string{"A", "B"},
}

func NewExp2Syn() *Exp2Syn {
	sy := &Exp2Syn{}
	sy.Params.Defaults()
	return sy
}

func (sy *Exp2Syn) Name() string { return "exp2syn" }
func (sy *Exp2Syn) Kind() Kinds  { return Point }
func (sy *Exp2Syn) Info() *Info  { return &exp2SynInfo }

func (sy *Exp2Syn) Bind(sh *Shared, cv []int32, weight []float64) {
	sy.Instance.Bind(sh, cv, weight)
	sy.A = sy.StateVec()
	sy.B = sy.StateVec()
}

func (sy *Exp2Syn) BindIon(name string, iv *IonView) error {
	return nil
}

func (sy *Exp2Syn) SetParam(name string, val float64) error {
	if err := checkRange(&exp2SynInfo, name, val); err != nil {
		return err
	}
	switch name {
	case "tau1":
		sy.Params.Tau1 = val
	case "tau2":
		sy.Params.Tau2 = val
	case "e":
		sy.Params.E = val
	}
	return nil
}

func (sy *Exp2Syn) Init() {
	for i := range sy.A {
		sy.A[i] = 0
		sy.B[i] = 0
	}
	tau1, tau2 := sy.Params.Tau1, sy.Params.Tau2
	if tau2/tau1 < 1+1e-9 {
		tau1 = tau2 / (1 + 1e-9)
	}
	tp := tau1 * tau2 / (tau2 - tau1) * math.Log(tau2/tau1)
	sy.factor = 1 / (-math.Exp(-tp/tau1) + math.Exp(-tp/tau2))
}

func (sy *Exp2Syn) Current() {
	for i, cv := range sy.CV {
		v := sy.Sh.V[cv]
		g := sy.B[i] - sy.A[i]
		sy.Sh.J[cv] += sy.Weight[i] * g * (v - sy.Params.E)
	}
}

func (sy *Exp2Syn) State() {
	for i, cv := range sy.CV {
		dt := sy.Sh.DtCV[cv]
		sy.A[i] *= math.Exp(-dt / sy.Params.Tau1)
		sy.B[i] *= math.Exp(-dt / sy.Params.Tau2)
	}
}

// NetReceive adds the normalized event weight to both exponentials.
func (sy *Exp2Syn) NetReceive(i int32, w float64) {
	sy.A[i] += w * sy.factor
	sy.B[i] += w * sy.factor
}

func (sy *Exp2Syn) Reset() {
	sy.Init()
}
