// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"math"
	"testing"
)

func TestThresholdCrossing(t *testing.T) {
	st := NewSharedState(1, []int32{0}, 1)
	st.Voltage[0] = -10
	tw := NewThresholdWatcher(st, []int32{0}, []int32{0}, []float64{0})

	// rise through threshold over one sub-step
	st.Voltage[0] = 10
	st.Time[0] = 1
	tw.Test()
	if len(tw.Crossings) != 1 {
		t.Fatalf("upward crossing: got %d spikes, want 1", len(tw.Crossings))
	}
	// linear interpolation: -10 -> 10 crosses 0 at the midpoint
	if math.Abs(tw.Crossings[0].Time-0.5) > 1e-12 {
		t.Errorf("interpolated crossing time: got %v, want 0.5", tw.Crossings[0].Time)
	}

	// staying above the threshold must not fire again
	st.Voltage[0] = 20
	st.Time[0] = 2
	tw.Test()
	if len(tw.Crossings) != 1 {
		t.Errorf("disarmed detector fired: %d spikes", len(tw.Crossings))
	}

	// falling below re-arms; the next rise fires exactly once
	st.Voltage[0] = -5
	st.Time[0] = 3
	tw.Test()
	st.Voltage[0] = 15
	st.Time[0] = 4
	tw.Test()
	if len(tw.Crossings) != 2 {
		t.Fatalf("re-armed detector: got %d spikes, want 2", len(tw.Crossings))
	}
	// crossing between t=3 (v=-5) and t=4 (v=15) at v=0: 1/4 of the step
	if math.Abs(tw.Crossings[1].Time-3.25) > 1e-12 {
		t.Errorf("second crossing time: got %v, want 3.25", tw.Crossings[1].Time)
	}

	sp := tw.Take()
	if len(sp) != 2 || len(tw.Crossings) != 0 {
		t.Errorf("Take must drain the crossing list")
	}
}

func TestThresholdStartsAbove(t *testing.T) {
	st := NewSharedState(1, []int32{0}, 1)
	st.Voltage[0] = 5
	tw := NewThresholdWatcher(st, []int32{0}, []int32{0}, []float64{0})

	// starting above threshold: disarmed, no spike on continued rise
	st.Voltage[0] = 8
	st.Time[0] = 1
	tw.Test()
	if len(tw.Crossings) != 0 {
		t.Errorf("detector starting above threshold must not fire")
	}
}
