// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mech

// PasParams are the passive leak parameters.
type PasParams struct {

	// leak conductance [S/cm²]
	G float64 `def:"0.001"`

	// leak reversal potential [mV]
	E float64 `def:"-70"`
}

func (pp *PasParams) Defaults() {
	pp.G = 0.001
	pp.E = -70
}

// Pas is the passive leak density mechanism: a constant conductance to a
// fixed reversal potential, no state.
type Pas struct {
	Instance
	Params PasParams
}

var pasInfo = Info{
	Name: "pas",
	Kind: Density,
	Params: []ParamSpec{
		{Name: "g", Default: 0.001, Min: 0, Max: 1e9},
		{Name: "e", Default: -70},
	},
}

func NewPas() *Pas {
	ps := &Pas{}
	ps.Params.Defaults()
	return ps
}

func (ps *Pas) Name() string { return "pas" }
func (ps *Pas) Kind() Kinds  { return Density }
func (ps *Pas) Info() *Info  { return &pasInfo }

func (ps *Pas) BindIon(name string, iv *IonView) error {
	return nil
}

func (ps *Pas) SetParam(name string, val float64) error {
	if err := checkRange(&pasInfo, name, val); err != nil {
		return err
	}
	switch name {
	case "g":
		ps.Params.G = val
	case "e":
		ps.Params.E = val
	}
	return nil
}

func (ps *Pas) Init() {}

func (ps *Pas) Current() {
	for i, cv := range ps.CV {
		v := ps.Sh.V[cv]
		ps.Sh.J[cv] += ps.Weight[i] * ps.Params.G * (v - ps.Params.E)
	}
}

func (ps *Pas) State() {}

func (ps *Pas) Reset() {}
