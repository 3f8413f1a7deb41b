// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

// Config holds the engine construction options.  Call Defaults before
// overriding fields.
type Config struct {

	// upper bound on sub-step length [ms]
	DtMax float64 `def:"0.025"`

	// initial membrane voltage [mV]
	VInit float64 `def:"-65"`

	// temperature [K], used for Nernst reversal potentials and kinetics
	Temp float64 `def:"279.45"`

	// event-time rounding policy
	Binning BinningKinds

	// binning interval [ms], for the regular and following policies
	BinInterval float64

	// record the per-step voltage bounds during integration
	RecordVoltageBounds bool

	// CV discretization policy expression, e.g. "(fixed-per-branch 4)"
	CVPolicy string `def:"(fixed-per-branch 1)"`

	// lane width for aligned state allocation
	Align int `def:"4"`
}

// Defaults sets default values.
func (cf *Config) Defaults() {
	cf.DtMax = 0.025
	cf.VInit = -65
	cf.Temp = 279.45 // 6.3 °C, the Hodgkin-Huxley reference
	cf.Binning = NoBinning
	cf.BinInterval = 0
	cf.RecordVoltageBounds = false
	cf.CVPolicy = "(fixed-per-branch 1)"
	cf.Align = DefaultAlign
}

// Update must be called after any changes to parameters.
func (cf *Config) Update() {
	if cf.DtMax <= 0 {
		cf.DtMax = 0.025
	}
	if cf.Align <= 0 {
		cf.Align = DefaultAlign
	}
	if cf.CVPolicy == "" {
		cf.CVPolicy = "(fixed-per-branch 1)"
	}
}

// Celsius returns the temperature in °C.
func (cf *Config) Celsius() float64 {
	return cf.Temp - 273.15
}
