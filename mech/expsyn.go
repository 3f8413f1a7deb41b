// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mech

import "math"

// ExpSynParams are the single-exponential synapse parameters.
type ExpSynParams struct {

	// decay time constant [ms]
	Tau float64 `def:"2" min:"0.001"`

	// reversal potential [mV]
	E float64 `def:"0"`
}

func (ep *ExpSynParams) Defaults() {
	ep.Tau = 2
	ep.E = 0
}

// ExpSyn is a point synapse whose conductance jumps by the event weight on
// delivery and decays exponentially with one time constant.
type ExpSyn struct {
	Instance
	Params ExpSynParams

	// conductance per instance position [µS]
	G []float64
}

var expSynInfo = Info{
	Name: "expsyn",
	Kind: Point,
	Params: []ParamSpec{
		{Name: "tau", Default: 2, Min: 1e-3, Max: 1e9},
		{Name: "e", Default: 0},
	},
	States: []string{"g"},
}

func NewExpSyn() *ExpSyn {
	sy := &ExpSyn{}
	sy.Params.Defaults()
	return sy
}

func (sy *ExpSyn) Name() string { return "expsyn" }
func (sy *ExpSyn) Kind() Kinds  { return Point }
func (sy *ExpSyn) Info() *Info  { return &expSynInfo }

func (sy *ExpSyn) Bind(sh *Shared, cv []int32, weight []float64) {
	sy.Instance.Bind(sh, cv, weight)
	sy.G = sy.StateVec()
}

func (sy *ExpSyn) BindIon(name string, iv *IonView) error {
	return nil
}

func (sy *ExpSyn) SetParam(name string, val float64) error {
	if err := checkRange(&expSynInfo, name, val); err != nil {
		return err
	}
	switch name {
	case "tau":
		sy.Params.Tau = val
	case "e":
		sy.Params.E = val
	}
	return nil
}

func (sy *ExpSyn) Init() {
	for i := range sy.G {
		sy.G[i] = 0
	}
}

func (sy *ExpSyn) Current() {
	// instance current is in nA; the weight (100/area) converts to
	// current density.  Instances sharing a CV accumulate serially.
	for i, cv := range sy.CV {
		v := sy.Sh.V[cv]
		sy.Sh.J[cv] += sy.Weight[i] * sy.G[i] * (v - sy.Params.E)
	}
}

func (sy *ExpSyn) State() {
	for i, cv := range sy.CV {
		dt := sy.Sh.DtCV[cv]
		sy.G[i] *= math.Exp(-dt / sy.Params.Tau)
	}
}

// NetReceive adds the event weight [µS] to the conductance.
func (sy *ExpSyn) NetReceive(i int32, w float64) {
	sy.G[i] += w
}

func (sy *ExpSyn) Reset() {
	sy.Init()
}
