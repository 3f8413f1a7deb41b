// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"fmt"
	"math"

	"github.com/goki/ki/kit"
)

// LaneEvent is one incoming event on a cell's event lane, before target
// resolution: the cell-local target index of a point mechanism instance,
// the delivery time [ms] and the synaptic weight.
type LaneEvent struct {
	Target int
	Time   float64
	Weight float64
}

// DeliverableEvent is a staged event after target resolution: the cell
// index within the group, the mechanism index, the instance-local index
// within that mechanism, delivery time [ms] and weight.  Invariant:
// Time >= the target cell's current time.
type DeliverableEvent struct {
	Cell   int32
	Mech   int32
	Index  int32
	Time   float64
	Weight float64
}

// EventStream is an indexed collection of pop-only event queues, one per
// cell.  Events live in flat arrays partitioned by cell; each stream keeps
// a head (SpanBegin), a marked watermark (Mark) and an end (SpanEnd).
// Marking designates the prefix of events due for delivery in the current
// sub-step; dropping advances the head past the marked prefix.
type EventStream struct {

	// number of per-cell streams
	NStream int

	// event payloads, all streams concatenated, sorted by (cell, time)
	Time   []float64
	Mech   []int32
	Index  []int32
	Weight []float64

	// per-stream head, marked watermark, end
	SpanBegin []int32
	Mark      []int32
	SpanEnd   []int32

	// number of streams with undelivered events remaining
	NNonempty int
}

// NewEventStream makes an event stream collection over n cells.
func NewEventStream(n int) *EventStream {
	return &EventStream{
		NStream:   n,
		SpanBegin: make([]int32, n),
		Mark:      make([]int32, n),
		SpanEnd:   make([]int32, n),
	}
}

// Clear discards all events.
func (es *EventStream) Clear() {
	es.Time = es.Time[:0]
	es.Mech = es.Mech[:0]
	es.Index = es.Index[:0]
	es.Weight = es.Weight[:0]
	for i := 0; i < es.NStream; i++ {
		es.SpanBegin[i] = 0
		es.Mark[i] = 0
		es.SpanEnd[i] = 0
	}
	es.NNonempty = 0
}

// Empty reports whether every stream has been drained.
func (es *EventStream) Empty() bool {
	return es.NNonempty == 0
}

// Init populates the streams from a batch of staged events already sorted
// by (cell, time).  An out-of-order batch is a programming error and is
// reported, not repaired.
func (es *EventStream) Init(staged []DeliverableEvent) error {
	es.Clear()
	nev := len(staged)
	for i := 1; i < nev; i++ {
		a, b := &staged[i-1], &staged[i]
		if b.Cell < a.Cell || (b.Cell == a.Cell && b.Time < a.Time) {
			return fmt.Errorf("event stream: staged events not sorted by (cell, time) at %d", i)
		}
	}
	for _, ev := range staged {
		if int(ev.Cell) < 0 || int(ev.Cell) >= es.NStream {
			return fmt.Errorf("event stream: event cell %d out of range", ev.Cell)
		}
		es.Time = append(es.Time, ev.Time)
		es.Mech = append(es.Mech, ev.Mech)
		es.Index = append(es.Index, ev.Index)
		es.Weight = append(es.Weight, ev.Weight)
	}
	// divisions by cell
	evi := int32(0)
	for s := 0; s < es.NStream; s++ {
		es.SpanBegin[s] = evi
		for int(evi) < nev && staged[evi].Cell == int32(s) {
			evi++
		}
		es.SpanEnd[s] = evi
		es.Mark[s] = es.SpanBegin[s]
		if es.SpanEnd[s] != es.SpanBegin[s] {
			es.NNonempty++
		}
	}
	return nil
}

// MarkUntilAfter extends each stream's marked prefix to cover every event
// with time <= tUntil[cell].
func (es *EventStream) MarkUntilAfter(tUntil []float64) {
	for s := 0; s < es.NStream; s++ {
		m := es.Mark[s]
		for m < es.SpanEnd[s] && es.Time[m] <= tUntil[s] {
			m++
		}
		es.Mark[s] = m
	}
}

// MarkedRange returns the [begin, end) event index range currently marked
// on the given stream.
func (es *EventStream) MarkedRange(cell int) (int32, int32) {
	return es.SpanBegin[cell], es.Mark[cell]
}

// DropMarked advances each stream's head past its marked prefix.
func (es *EventStream) DropMarked() {
	for s := 0; s < es.NStream; s++ {
		if es.SpanBegin[s] != es.Mark[s] {
			es.SpanBegin[s] = es.Mark[s]
			if es.SpanBegin[s] == es.SpanEnd[s] {
				es.NNonempty--
			}
		}
	}
}

// EventTimeIfBefore lowers tUntil[cell] to the time of the cell's next
// unmarked event where that is earlier, shortening the sub-step so the
// event is honoured at exactly its scheduled time.
func (es *EventStream) EventTimeIfBefore(tUntil []float64) {
	for s := 0; s < es.NStream; s++ {
		m := es.Mark[s]
		if m < es.SpanEnd[s] && es.Time[m] < tUntil[s] {
			tUntil[s] = es.Time[m]
		}
	}
}

//////////////////////////////////////////////////////////////////////////////
//  Event binning

// BinningKinds are the event-time rounding policies applied as events are
// staged, reducing the number of distinct sub-step boundaries.
type BinningKinds int32

const (
	// NoBinning delivers events at their exact times.
	NoBinning BinningKinds = iota

	// RegularBinning rounds event times down to multiples of the interval.
	RegularBinning

	// FollowingBinning lets events within the interval of the previous
	// bin share its time.
	FollowingBinning

	BinningKindsN
)

var KiT_BinningKinds = kit.Enums.AddEnum(BinningKindsN, kit.NotBitFlag, nil)

func (bk BinningKinds) String() string {
	switch bk {
	case NoBinning:
		return "NoBinning"
	case RegularBinning:
		return "RegularBinning"
	case FollowingBinning:
		return "FollowingBinning"
	}
	return "BinningKindsInvalid"
}

// EventBinner rounds event times per the binning policy.  Binning never
// moves an event before tmin (the cell's current time).
type EventBinner struct {
	Kind     BinningKinds
	Interval float64

	lastBin  float64
	haveLast bool
}

// NewEventBinner returns a binner with the given policy and interval [ms].
func NewEventBinner(kind BinningKinds, interval float64) EventBinner {
	return EventBinner{Kind: kind, Interval: interval}
}

// Reset forgets the binning history.
func (eb *EventBinner) Reset() {
	eb.lastBin = 0
	eb.haveLast = false
}

// Bin returns the binned time for an event at t.  Rounding is clamped so
// it never moves an event before tmin; an event already before tmin is
// returned unchanged, for the caller to reject.
func (eb *EventBinner) Bin(t, tmin float64) float64 {
	tb := t
	switch eb.Kind {
	case RegularBinning:
		if eb.Interval > 0 {
			tb = math.Floor(t/eb.Interval) * eb.Interval
		}
	case FollowingBinning:
		if eb.haveLast && t-eb.lastBin < eb.Interval {
			tb = eb.lastBin
		}
	}
	if tb < tmin && t >= tmin {
		tb = tmin
	}
	eb.lastBin = tb
	eb.haveLast = true
	return tb
}
