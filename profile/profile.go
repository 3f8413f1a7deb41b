// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package profile keeps a process-wide registry of named timing regions
behind a narrow interface, so the engine can be profiled without depending
on any particular profiler.  The default profiler is a no-op; install the
timer-backed one with Set(NewTimed()) and drain it with Report at program
end.
*/
package profile

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/emer/emergent/v2/timer"
)

// Profiler is the narrow interface the engine drives: paired Start/Stop
// calls on named regions.
type Profiler interface {
	Start(name string)
	Stop(name string)
}

var (
	mu   sync.RWMutex
	prof Profiler = Nop{}
)

// Set installs the process-wide profiler.
func Set(p Profiler) {
	mu.Lock()
	defer mu.Unlock()
	if p == nil {
		p = Nop{}
	}
	prof = p
}

// Start opens the named region on the installed profiler.
func Start(name string) {
	mu.RLock()
	p := prof
	mu.RUnlock()
	p.Start(name)
}

// Stop closes the named region.
func Stop(name string) {
	mu.RLock()
	p := prof
	mu.RUnlock()
	p.Stop(name)
}

// Nop is the no-op profiler.
type Nop struct{}

func (Nop) Start(name string) {}
func (Nop) Stop(name string)  {}

// Timed accumulates wall-clock time per region, init-on-first-use.
type Timed struct {
	mu    sync.Mutex
	times map[string]*timer.Time
}

// NewTimed returns an empty timing registry.
func NewTimed() *Timed {
	return &Timed{times: make(map[string]*timer.Time)}
}

func (tp *Timed) region(name string) *timer.Time {
	tm := tp.times[name]
	if tm == nil {
		tm = &timer.Time{}
		tp.times[name] = tm
	}
	return tm
}

func (tp *Timed) Start(name string) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.region(name).Start()
}

func (tp *Timed) Stop(name string) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.region(name).Stop()
}

// Report writes the accumulated region times, sorted by name.
func (tp *Timed) Report(w io.Writer) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	nms := make([]string, 0, len(tp.times))
	for nm := range tp.times {
		nms = append(nms, nm)
	}
	sort.Strings(nms)
	for _, nm := range nms {
		fmt.Fprintf(w, "%20s:\t%8.4f s\n", nm, tp.times[nm].TotalSecs())
	}
}
