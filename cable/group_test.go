// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/emer/cable/mech"
)

// hhSomaCell is a single Hodgkin-Huxley soma with a current step, a zero
// threshold detector and a soma voltage probe.
func hhSomaCell() *Cell {
	c := NewCell()
	soma := c.AddSoma(6.3)
	c.SetSegMech(soma, MechDesc{Name: "hh"})
	c.AddStim(Loc{Seg: soma, Pos: 0.5}, IClamp{Delay: 10, Duration: 30, Amplitude: 0.1})
	c.AddDetector(Loc{Seg: soma, Pos: 0.5}, 0)
	c.AddProbe(Loc{Seg: soma, Pos: 0.5}, ProbeVoltage, 0)
	return c
}

// dendriteCell is a soma with a 200 µm passive dendrite and an expsyn at
// the dendrite midpoint, probed at the soma and the midpoint.
func dendriteCell() *Cell {
	c := NewCell()
	soma := c.AddSoma(6.3)
	dend := c.AddCable(soma, 200, 0.5)
	c.SetSegMech(soma, MechDesc{Name: "pas", Params: map[string]float64{"e": -65}})
	c.SetSegMech(dend, MechDesc{Name: "pas", Params: map[string]float64{"e": -65}})
	c.AddSynapse(Loc{Seg: dend, Pos: 0.5}, MechDesc{Name: "expsyn"})
	c.AddProbe(Loc{Seg: soma, Pos: 0.5}, ProbeVoltage, 0)
	c.AddProbe(Loc{Seg: dend, Pos: 0.5}, ProbeVoltage, 1)
	return c
}

// pasSomaCell is a passive soma resting exactly at -65 mV.
func pasSomaCell() *Cell {
	c := NewCell()
	soma := c.AddSoma(6.3)
	c.SetSegMech(soma, MechDesc{Name: "pas", Params: map[string]float64{"e": -65}})
	c.AddProbe(Loc{Seg: soma, Pos: 0.5}, ProbeVoltage, 0)
	return c
}

func newGroup(t *testing.T, rec Recipe, gids []int, cfg *Config) *CellGroup {
	t.Helper()
	grp, err := NewCellGroup(gids, rec, mech.Std(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return grp
}

// traceSampler collects one probe's samples into a pair of slices.
func traceSampler(times, vals *[]float64) SamplerFunc {
	return func(probe ProbeID, tag int, n int, recs []SampleRecord) {
		for _, r := range recs {
			*times = append(*times, r.Time)
			*vals = append(*vals, *r.Value)
		}
	}
}

// TestHHSomaSpikes is the single-soma scenario: a 0.1 nA step from 10 to
// 40 ms must elicit spiking shortly after onset and nowhere else.
func TestHHSomaSpikes(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()

	grp := newGroup(t, NewSimpleRecipe(hhSomaCell()), []int{0}, cfg)
	if err := grp.Advance(Epoch{TFinal: 50}, cfg.DtMax, nil); err != nil {
		t.Fatal(err)
	}
	spikes := grp.TakeSpikes()
	if len(spikes) == 0 {
		t.Fatal("suprathreshold step produced no spikes")
	}
	first := spikes[0].Time
	if first <= 10 || first >= 15 {
		t.Errorf("first spike at %v ms, want shortly after the 10 ms onset", first)
	}
	for _, sp := range spikes {
		if sp.Time <= 10 || sp.Time >= 42 {
			t.Errorf("spike at %v ms outside the stimulus window", sp.Time)
		}
		if sp.Source != (SourceID{GID: 0, Index: 0}) {
			t.Errorf("spike source: got %+v", sp.Source)
		}
	}
}

// runDendrite runs the dendrite scenario at the given resolution and
// returns the soma trace sampled every 0.5 ms.
func runDendrite(t *testing.T, ncomp int) []float64 {
	t.Helper()
	cfg := &Config{}
	cfg.Defaults()
	cfg.CVPolicy = fmt.Sprintf("(fixed-per-branch %d)", ncomp)

	grp := newGroup(t, NewSimpleRecipe(dendriteCell()), []int{0}, cfg)

	var times, vals []float64
	if _, err := grp.AddSamplerOn(ProbeID{GID: 0, Index: 0}, &RegularSchedule{Dt: 0.5}, traceSampler(&times, &vals)); err != nil {
		t.Fatal(err)
	}

	lanes := [][]LaneEvent{{
		{Target: 0, Time: 10, Weight: 0.04},
		{Target: 0, Time: 20, Weight: 0.04},
		{Target: 0, Time: 40, Weight: 0.04},
	}}
	if err := grp.Advance(Epoch{TFinal: 60}, cfg.DtMax, lanes); err != nil {
		t.Fatal(err)
	}
	if len(vals) != 120 {
		t.Fatalf("ncomp %d: got %d samples, want 120", ncomp, len(vals))
	}
	return vals
}

// TestRefinementConvergence checks that the soma trace converges as the
// dendrite is refined 1 -> 4 -> 16 compartments against a 64-compartment
// reference.
func TestRefinementConvergence(t *testing.T) {
	ref := runDendrite(t, 64)
	errAt := func(ncomp int) float64 {
		vals := runDendrite(t, ncomp)
		mx := 0.0
		for i := range vals {
			if d := relDif(vals[i], ref[i]); d > mx {
				mx = d
			}
		}
		return mx
	}
	e1 := errAt(1)
	e4 := errAt(4)
	e16 := errAt(16)
	if !(e1 > e4 && e4 > e16) {
		t.Errorf("refinement must converge: errors %v, %v, %v", e1, e4, e16)
	}
	if e16 > 0.005 {
		t.Errorf("16-compartment error vs reference too large: %v", e16)
	}
	// the synaptic input must actually deflect the soma
	vals := runDendrite(t, 4)
	mx := -1e9
	for _, v := range vals {
		if v > mx {
			mx = v
		}
	}
	if mx < -64.9 {
		t.Errorf("synaptic events produced no soma deflection, peak %v", mx)
	}
}

// TestGapJunction couples two passive cells in one group: driving cell 0
// must deflect cell 1 with the sign of the coupling.
func TestGapJunction(t *testing.T) {
	cellA := pasSomaCell()
	cellA.AddStim(Loc{Seg: 0, Pos: 0.5}, IClamp{Delay: 5, Duration: 40, Amplitude: 0.1})
	cellB := pasSomaCell()

	rec := NewSimpleRecipe(cellA, cellB)
	rec.AddGapJunction(0, Loc{Seg: 0, Pos: 0.5}, 1, Loc{Seg: 0, Pos: 0.5}, 0.002)

	cfg := &Config{}
	cfg.Defaults()
	grp := newGroup(t, rec, []int{0, 1}, cfg)

	if err := grp.Advance(Epoch{TFinal: 40}, cfg.DtMax, nil); err != nil {
		t.Fatal(err)
	}
	st := grp.Lowered.St
	v0, v1 := st.Voltage[0], st.Voltage[1]
	if v0 < -60 {
		t.Errorf("driven cell not depolarized: %v mV", v0)
	}
	if v1 <= -64.9 {
		t.Errorf("coupled cell deflection missing: %v mV", v1)
	}
	if v1 >= v0 {
		t.Errorf("subthreshold deflection should be smaller than the drive: %v vs %v", v1, v0)
	}

	// the same coupling across two groups is a configuration error
	if _, err := NewCellGroup([]int{0}, rec, mech.Std(), cfg); !errors.Is(err, ErrGapJunction) {
		t.Errorf("split supercell: got %v, want gap-junction configuration error", err)
	}
}

// TestBadEventTime submits an event strictly in the cell's past; Advance
// must fail and produce no spikes.
func TestBadEventTime(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	c := dendriteCell()
	c.AddDetector(Loc{Seg: 0, Pos: 0.5}, 0)
	grp := newGroup(t, NewSimpleRecipe(c), []int{0}, cfg)

	if err := grp.Advance(Epoch{TFinal: 10}, cfg.DtMax, nil); err != nil {
		t.Fatal(err)
	}
	err := grp.Advance(Epoch{TFinal: 20}, cfg.DtMax, [][]LaneEvent{{
		{Target: 0, Time: 5, Weight: 0.04},
	}})
	if !errors.Is(err, ErrBadEventTime) {
		t.Fatalf("past event: got %v, want bad event time", err)
	}
	if sp := grp.TakeSpikes(); len(sp) != 0 {
		t.Errorf("failed advance produced %d spikes", len(sp))
	}
}

// TestEmptyLanes: with no events the integrator still evolves under the
// stimulus and delivers samples at the requested times.
func TestEmptyLanes(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	c := pasSomaCell()
	c.AddStim(Loc{Seg: 0, Pos: 0.5}, IClamp{Delay: 2, Duration: 6, Amplitude: 0.1})
	grp := newGroup(t, NewSimpleRecipe(c), []int{0}, cfg)

	var times, vals []float64
	grp.AddSampler(AllProbes, &RegularSchedule{Dt: 1}, traceSampler(&times, &vals))

	if err := grp.Advance(Epoch{TFinal: 10}, cfg.DtMax, nil); err != nil {
		t.Fatal(err)
	}
	if len(vals) != 10 {
		t.Fatalf("got %d samples, want 10", len(vals))
	}
	// at 5 ms the stimulus has depolarized the cell
	if vals[4] <= -64.5 {
		t.Errorf("stimulus produced no depolarization: %v mV at 5 ms", vals[4])
	}
	// after stimulus end the cell relaxes back toward rest
	if vals[9] >= vals[6] {
		t.Errorf("cell not relaxing after stimulus: %v then %v", vals[6], vals[9])
	}
}

// TestQuiescentSampler: a cell with no mechanisms stays at V_init; fifty
// 0.1 ms samples over 5 ms must all read V_init.
func TestQuiescentSampler(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	c := NewCell()
	c.AddSoma(6.3)
	c.AddProbe(Loc{Seg: 0, Pos: 0.5}, ProbeVoltage, 0)
	grp := newGroup(t, NewSimpleRecipe(c), []int{0}, cfg)

	var times, vals []float64
	grp.AddSampler(AllProbes, &RegularSchedule{Dt: 0.1}, traceSampler(&times, &vals))

	if err := grp.Advance(Epoch{TFinal: 5}, cfg.DtMax, nil); err != nil {
		t.Fatal(err)
	}
	if len(vals) != 50 {
		t.Fatalf("got %d samples, want 50", len(vals))
	}
	for i, v := range vals {
		if math.Abs(v-cfg.VInit) > 1e-6 {
			t.Errorf("sample %d at %v ms: %v mV, want %v", i, times[i], v, cfg.VInit)
		}
	}
}

// TestEventHonouredExactly delivers a synaptic event at a time that is not
// a multiple of dt; the synapse conductance afterwards must match an exact
// delivery at that time, with no drift across sub-steps.
func TestEventHonouredExactly(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	grp := newGroup(t, NewSimpleRecipe(dendriteCell()), []int{0}, cfg)

	evT := 10.33
	tfinal := 10.5
	w := 0.04
	if err := grp.Advance(Epoch{TFinal: tfinal}, cfg.DtMax, [][]LaneEvent{{
		{Target: 0, Time: evT, Weight: w},
	}}); err != nil {
		t.Fatal(err)
	}

	var sy *mech.ExpSyn
	for _, m := range grp.Lowered.Mechs {
		if es, ok := m.(*mech.ExpSyn); ok {
			sy = es
		}
	}
	if sy == nil {
		t.Fatal("expsyn instance not found")
	}
	want := w * math.Exp(-(tfinal-evT)/sy.Params.Tau)
	if math.Abs(sy.G[0]-want) > 1e-9 {
		t.Errorf("conductance after exact delivery: got %v, want %v", sy.G[0], want)
	}
}

// TestGroupResetIdempotence: two consecutive resets leave bitwise
// identical state, including mechanism gates.
func TestGroupResetIdempotence(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	grp := newGroup(t, NewSimpleRecipe(hhSomaCell()), []int{0}, cfg)

	if err := grp.Advance(Epoch{TFinal: 20}, cfg.DtMax, nil); err != nil {
		t.Fatal(err)
	}

	snapshot := func() []uint64 {
		var bits []uint64
		app := func(vs []float64) {
			for _, v := range vs {
				bits = append(bits, math.Float64bits(v))
			}
		}
		st := grp.Lowered.St
		app(st.Voltage)
		app(st.Current)
		app(st.Time)
		for _, nm := range st.IonNames() {
			app(st.Ions[nm].Ex)
			app(st.Ions[nm].Xi)
		}
		for _, m := range grp.Lowered.Mechs {
			if hh, ok := m.(*mech.HH); ok {
				app(hh.M)
				app(hh.H)
				app(hh.N4)
			}
		}
		return bits
	}

	grp.Reset()
	a := snapshot()
	grp.Reset()
	b := snapshot()
	if len(a) != len(b) {
		t.Fatal("snapshot size changed across resets")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reset not idempotent at word %d", i)
		}
	}
}

// TestNumericalInstability: an absurd stimulus drives the voltage out of
// bounds and must abort the advance.
func TestNumericalInstability(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	c := pasSomaCell()
	c.AddStim(Loc{Seg: 0, Pos: 0.5}, IClamp{Delay: 0, Duration: 50, Amplitude: 1e6})
	grp := newGroup(t, NewSimpleRecipe(c), []int{0}, cfg)

	err := grp.Advance(Epoch{TFinal: 50}, cfg.DtMax, nil)
	if !errors.Is(err, ErrNumericalInstability) {
		t.Errorf("runaway voltage: got %v, want numerical instability", err)
	}
}

// TestNaNVoltage: a NaN in the state must abort the advance rather than
// integrate on silently; min/max bounds alone would miss it.
func TestNaNVoltage(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	grp := newGroup(t, NewSimpleRecipe(pasSomaCell()), []int{0}, cfg)

	grp.Lowered.St.Voltage[0] = math.NaN()
	err := grp.Advance(Epoch{TFinal: 1}, cfg.DtMax, nil)
	if !errors.Is(err, ErrNumericalInstability) {
		t.Errorf("NaN voltage: got %v, want numerical instability", err)
	}
}

// TestNoSuchMechanism: unknown mechanism names abort initialization.
func TestNoSuchMechanism(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	c := NewCell()
	soma := c.AddSoma(6.3)
	c.SetSegMech(soma, MechDesc{Name: "notachannel"})
	if _, err := NewCellGroup([]int{0}, NewSimpleRecipe(c), mech.Std(), cfg); !errors.Is(err, mech.ErrNoSuchMechanism) {
		t.Errorf("unknown mechanism: got %v", err)
	}
}

// TestTargetByLabel: a connection label must resolve to exactly one
// target at binding time.
func TestTargetByLabel(t *testing.T) {
	c := NewCell()
	soma := c.AddSoma(6.3)
	dend := c.AddCable(soma, 200, 0.5)
	c.AddSynapseLabeled(Loc{Seg: dend, Pos: 0.25}, MechDesc{Name: "expsyn"}, "prox")
	c.AddSynapseLabeled(Loc{Seg: dend, Pos: 0.75}, MechDesc{Name: "expsyn"}, "dist")
	c.AddSynapseLabeled(Loc{Seg: dend, Pos: 0.9}, MechDesc{Name: "expsyn"}, "dist")

	ti, err := c.TargetByLabel("prox")
	if err != nil || ti != 0 {
		t.Errorf("unique label: got %d, %v", ti, err)
	}
	if _, err := c.TargetByLabel("nope"); !errors.Is(err, ErrBadConnectionLabel) {
		t.Errorf("unknown label: got %v, want bad connection label", err)
	}
	if _, err := c.TargetByLabel("dist"); !errors.Is(err, ErrBadUnivalentLabel) {
		t.Errorf("ambiguous label: got %v, want bad univalent connection label", err)
	}
}

// TestBadSamplerProbe: sampling a probe that does not exist fails at
// binding.
func TestBadSamplerProbe(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	grp := newGroup(t, NewSimpleRecipe(pasSomaCell()), []int{0}, cfg)
	if _, err := grp.AddSamplerOn(ProbeID{GID: 0, Index: 7}, &RegularSchedule{Dt: 1}, func(ProbeID, int, int, []SampleRecord) {}); !errors.Is(err, ErrBadProbeID) {
		t.Errorf("missing probe: got %v, want bad probe id", err)
	}
}
