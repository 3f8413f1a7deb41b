// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"math"
	"sort"
)

// Schedule yields sample times for the sampler map.
type Schedule interface {

	// Events returns the scheduled times in (t0, t1], ascending.
	Events(t0, t1 float64) []float64

	// Reset rewinds any internal position.
	Reset()
}

// RegularSchedule fires every Dt ms, at multiples of Dt.
type RegularSchedule struct {

	// sampling interval [ms]
	Dt float64
}

func (rs *RegularSchedule) Events(t0, t1 float64) []float64 {
	if rs.Dt <= 0 || t1 <= t0 {
		return nil
	}
	// times are computed as k·Dt, not accumulated, so long schedules do
	// not drift; the epsilon absorbs grid-point roundoff at the interval
	// ends
	eps := 1e-9 * rs.Dt
	var ts []float64
	for k := int(math.Floor(t0 / rs.Dt)); ; k++ {
		t := float64(k) * rs.Dt
		if t-t0 <= eps {
			continue
		}
		if t-t1 > eps {
			break
		}
		if t > t1 {
			t = t1 // grid-point roundoff past the interval end
		}
		ts = append(ts, t)
	}
	return ts
}

func (rs *RegularSchedule) Reset() {}

// ExplicitSchedule fires at a fixed, sorted list of times.
type ExplicitSchedule struct {
	Times []float64
}

func (es *ExplicitSchedule) Events(t0, t1 float64) []float64 {
	var ts []float64
	for _, t := range es.Times {
		if t > t0 && t <= t1 {
			ts = append(ts, t)
		}
	}
	return ts
}

func (es *ExplicitSchedule) Reset() {}

// SampleRecord is one recorded sample handed to a sampler callback: the
// sample time and a pointer to the value.  The pointer is valid only until
// the next Advance.
type SampleRecord struct {
	Time  float64
	Value *float64
}

// SamplerFunc is a sampler callback: it receives the probe id, the
// probe's tag, and the contiguous span of samples taken for that probe
// over the last macro-step.
type SamplerFunc func(probe ProbeID, tag int, n int, recs []SampleRecord)

// ProbePredicate selects probes for a sampler association.
type ProbePredicate func(ProbeID) bool

// AllProbes matches every probe.
func AllProbes(ProbeID) bool { return true }

// OneProbe matches exactly the given probe.
func OneProbe(id ProbeID) ProbePredicate {
	return func(p ProbeID) bool { return p == id }
}

// SamplerHandle identifies one sampler association.
type SamplerHandle int

// samplerAssoc is one registered (schedule, callback, probe set).
type samplerAssoc struct {
	sched  Schedule
	fn     SamplerFunc
	probes []ProbeID
}

// SamplerMap holds the sampler associations of one cell group.
type SamplerMap struct {
	assocs map[SamplerHandle]*samplerAssoc
	next   SamplerHandle
}

// NewSamplerMap returns an empty sampler map.
func NewSamplerMap() *SamplerMap {
	return &SamplerMap{assocs: make(map[SamplerHandle]*samplerAssoc)}
}

// Add registers a sampler over the probes matching the predicate, from
// the given probe index.  Returns the handle for removal.
func (sm *SamplerMap) Add(probes []ProbeID, pred ProbePredicate, sched Schedule, fn SamplerFunc) SamplerHandle {
	as := &samplerAssoc{sched: sched, fn: fn}
	for _, pid := range probes {
		if pred(pid) {
			as.probes = append(as.probes, pid)
		}
	}
	h := sm.next
	sm.next++
	sm.assocs[h] = as
	return h
}

// Remove deletes one sampler association.
func (sm *SamplerMap) Remove(h SamplerHandle) {
	delete(sm.assocs, h)
}

// RemoveAll deletes every association.
func (sm *SamplerMap) RemoveAll() {
	sm.assocs = make(map[SamplerHandle]*samplerAssoc)
}

// Reset rewinds every schedule.
func (sm *SamplerMap) Reset() {
	for _, as := range sm.assocs {
		as.sched.Reset()
	}
}

// handles returns the registered handles in ascending order, for
// deterministic iteration.
func (sm *SamplerMap) handles() []SamplerHandle {
	hs := make([]SamplerHandle, 0, len(sm.assocs))
	for h := range sm.assocs {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// SampleEvent schedules one probe reading inside a macro-step, with its
// offset into the group's sample buffers.
type SampleEvent struct {
	Cell   int32
	Time   float64
	Probe  int32
	Offset int32
}
