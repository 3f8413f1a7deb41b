// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

// Crossing is one local spike record: the detector index within the group
// and the interpolated crossing time [ms].
type Crossing struct {
	Index int32
	Time  float64
}

// ThresholdWatcher detects upward crossings of per-CV voltage past
// per-detector thresholds.  A detector that fires is disarmed until the
// voltage first falls back below its threshold.
type ThresholdWatcher struct {

	// shared state the watcher reads voltage and time from
	St *SharedState

	// CV index per detector
	CV []int32

	// owning cell per detector
	Cell []int32

	// threshold [mV] per detector
	Thresh []float64

	// voltage at the previous test per detector
	VPrev []float64

	// time of the previous test per detector [ms]
	TPrev []float64

	// whether the detector can fire
	Armed []bool

	// crossings recorded since the last Take
	Crossings []Crossing
}

// NewThresholdWatcher creates a watcher over the given detectors.
func NewThresholdWatcher(st *SharedState, cv, cell []int32, thresh []float64) *ThresholdWatcher {
	tw := &ThresholdWatcher{
		St:     st,
		CV:     cv,
		Cell:   cell,
		Thresh: thresh,
		VPrev:  make([]float64, len(cv)),
		TPrev:  make([]float64, len(cv)),
		Armed:  make([]bool, len(cv)),
	}
	tw.Reset()
	return tw
}

// Reset re-baselines every detector on the current voltage: snapshots are
// taken afresh and a detector starts armed iff the voltage is below its
// threshold.
func (tw *ThresholdWatcher) Reset() {
	for i, cv := range tw.CV {
		v := tw.St.Voltage[cv]
		tw.VPrev[i] = v
		tw.TPrev[i] = tw.St.Time[tw.Cell[i]]
		tw.Armed[i] = v < tw.Thresh[i]
	}
	tw.Crossings = tw.Crossings[:0]
}

// Test compares each detector's snapshot with the current voltage after a
// sub-step.  An upward crossing emits a spike at the linearly interpolated
// time and disarms the detector; a downward crossing below the threshold
// re-arms it.
func (tw *ThresholdWatcher) Test() {
	for i, cv := range tw.CV {
		v := tw.St.Voltage[cv]
		th := tw.Thresh[i]
		tNow := tw.St.Time[tw.Cell[i]]
		if tw.Armed[i] {
			if v >= th && tw.VPrev[i] < th {
				frac := (th - tw.VPrev[i]) / (v - tw.VPrev[i])
				t := tw.TPrev[i] + frac*(tNow-tw.TPrev[i])
				tw.Crossings = append(tw.Crossings, Crossing{Index: int32(i), Time: t})
				tw.Armed[i] = false
			}
		} else if v < th {
			tw.Armed[i] = true
		}
		tw.VPrev[i] = v
		tw.TPrev[i] = tNow
	}
}

// Take returns the crossings recorded since the last Take and clears the
// internal list.
func (tw *ThresholdWatcher) Take() []Crossing {
	cr := tw.Crossings
	tw.Crossings = nil
	return cr
}
