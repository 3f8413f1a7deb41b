// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"fmt"
	"sort"

	"github.com/emer/cable/mech"
	"github.com/emer/cable/profile"
)

// CellGroup owns a set of cells integrated together: the lowered cell,
// per-cell event binners, the sampler map, and the spikes collected since
// the last drain.  Different groups are independent and may run as
// parallel tasks; within a group the sub-step loop is one logical task.
type CellGroup struct {

	// cell gids in group order; members of a supercell are consecutive
	GIDs []int

	// supercell size at its first member, 0 elsewhere
	Deps []int

	// the finite-volume lowering
	Lowered *LoweredCell

	// per-cell event-time binners
	Binners []EventBinner

	// sampler associations
	Samplers *SamplerMap

	// spikes collected since the last TakeSpikes
	Spikes []Spike

	// global spike source ids in detector order
	spikeSources []SourceID

	// gid -> group cell index
	gidIndex map[int]int

	// probe id -> probe handle index
	probeIndex map[ProbeID]int32

	cfg *Config
}

// samplerCall records one pending sampler callback over a contiguous span
// of the sample buffers.
type samplerCall struct {
	fn         SamplerFunc
	probe      ProbeID
	tag        int
	begin, end int32
}

// NewCellGroup builds a group over the given gids.  Cells joined
// transitively by gap junctions form supercells; every member of a
// supercell must be in this group or initialization fails.
func NewCellGroup(gids []int, rec Recipe, cat *mech.Catalogue, cfg *Config) (*CellGroup, error) {
	if cfg == nil {
		cfg = &Config{}
		cfg.Defaults()
	}
	cfg.Update()

	ordered, deps, err := superCellOrder(gids, rec)
	if err != nil {
		return nil, err
	}

	cg := &CellGroup{
		GIDs:     ordered,
		Deps:     deps,
		Samplers: NewSamplerMap(),
		gidIndex: make(map[int]int, len(ordered)),
		cfg:      cfg,
	}
	for ci, gid := range ordered {
		cg.gidIndex[gid] = ci
	}

	cg.Lowered = NewLoweredCell(cfg)
	if err := cg.Lowered.Initialize(ordered, deps, rec, cat); err != nil {
		return nil, err
	}

	cg.probeIndex = make(map[ProbeID]int32, len(cg.Lowered.ProbeIDs))
	for pi, pid := range cg.Lowered.ProbeIDs {
		cg.probeIndex[pid] = int32(pi)
	}

	for _, gid := range ordered {
		for lid := 0; lid < rec.NumSources(gid); lid++ {
			cg.spikeSources = append(cg.spikeSources, SourceID{GID: gid, Index: lid})
		}
	}

	cg.SetBinning(cfg.Binning, cfg.BinInterval)
	return cg, nil
}

// superCellOrder sorts the gids so that members of one supercell are
// consecutive, returning the order and per-first-member sizes.  Supercell
// detection is an undirected breadth-first search over the gap-junction
// adjacency; the graph may contain cycles.
func superCellOrder(gids []int, rec Recipe) ([]int, []int, error) {
	sorted := append([]int(nil), gids...)
	sort.Ints(sorted)
	inGroup := make(map[int]bool, len(sorted))
	for _, gid := range sorted {
		inGroup[gid] = true
	}

	visited := make(map[int]bool, len(sorted))
	var ordered []int
	var deps []int

	for _, gid := range sorted {
		if visited[gid] {
			continue
		}
		if len(rec.GapJunctionsOn(gid)) == 0 {
			visited[gid] = true
			ordered = append(ordered, gid)
			deps = append(deps, 0)
			continue
		}
		// connected component by BFS
		var sc []int
		queue := []int{gid}
		visited[gid] = true
		for len(queue) > 0 {
			el := queue[0]
			queue = queue[1:]
			sc = append(sc, el)
			for _, conn := range rec.GapJunctionsOn(el) {
				if !visited[conn.Peer] {
					if !inGroup[conn.Peer] {
						return nil, nil, fmt.Errorf("%w: cells %d and %d connected via gap junction are not in the same cell group", ErrGapJunction, el, conn.Peer)
					}
					visited[conn.Peer] = true
					queue = append(queue, conn.Peer)
				}
			}
		}
		ordered = append(ordered, sc...)
		deps = append(deps, len(sc))
		for i := 1; i < len(sc); i++ {
			deps = append(deps, 0)
		}
	}
	return ordered, deps, nil
}

// SetBinning replaces every cell's event binner.
func (cg *CellGroup) SetBinning(kind BinningKinds, interval float64) {
	cg.Binners = make([]EventBinner, len(cg.GIDs))
	for i := range cg.Binners {
		cg.Binners[i] = NewEventBinner(kind, interval)
	}
}

// CellIndex returns the group-local index of a gid.
func (cg *CellGroup) CellIndex(gid int) (int, bool) {
	ci, ok := cg.gidIndex[gid]
	return ci, ok
}

// AddSampler registers a sampler callback over the probes matching the
// predicate, sampling at the schedule's times.
func (cg *CellGroup) AddSampler(pred ProbePredicate, sched Schedule, fn SamplerFunc) SamplerHandle {
	return cg.Samplers.Add(cg.Lowered.ProbeIDs, pred, sched, fn)
}

// AddSamplerOn registers a sampler on one probe id, failing if the probe
// does not exist in this group.
func (cg *CellGroup) AddSamplerOn(pid ProbeID, sched Schedule, fn SamplerFunc) (SamplerHandle, error) {
	if _, ok := cg.probeIndex[pid]; !ok {
		return 0, fmt.Errorf("%w: cell %d probe %d", ErrBadProbeID, pid.GID, pid.Index)
	}
	return cg.AddSampler(OneProbe(pid), sched, fn), nil
}

// RemoveSampler removes one sampler association.
func (cg *CellGroup) RemoveSampler(h SamplerHandle) {
	cg.Samplers.Remove(h)
}

// Advance integrates the group through the epoch, delivering the per-cell
// event lanes (parallel to GIDs; nil means no events) at their scheduled
// times and running samplers.  Lane events at or after ep.TFinal are not
// staged and are not kept for a later call.  Spikes accumulate until
// TakeSpikes.
func (cg *CellGroup) Advance(ep Epoch, dtMax float64, lanes [][]LaneEvent) error {
	profile.Start("advance")
	defer profile.Stop("advance")

	lc := cg.Lowered
	st := lc.St
	tstart := st.MinTime()

	// stage events: bin times, resolve targets
	var staged []DeliverableEvent
	for ci := range cg.GIDs {
		if ci >= len(lanes) {
			break
		}
		for _, e := range lanes[ci] {
			if e.Time >= ep.TFinal {
				continue
			}
			if e.Target < 0 || lc.TargetDivs[ci]+e.Target >= lc.TargetDivs[ci+1] {
				return fmt.Errorf("%w: cell %d target %d", ErrBadConnectionLabel, cg.GIDs[ci], e.Target)
			}
			t := cg.Binners[ci].Bin(e.Time, st.Time[ci])
			h := lc.TargetHandles[lc.TargetDivs[ci]+e.Target]
			staged = append(staged, DeliverableEvent{
				Cell:   int32(ci),
				Mech:   h.Mech,
				Index:  h.Index,
				Time:   t,
				Weight: e.Weight,
			})
		}
	}
	sort.SliceStable(staged, func(i, j int) bool {
		a, b := &staged[i], &staged[j]
		if a.Cell != b.Cell {
			return a.Cell < b.Cell
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Mech != b.Mech {
			return a.Mech < b.Mech
		}
		return a.Index < b.Index
	})

	// stage sample events: one per (schedule time, probe), contiguous per
	// sampler call
	var calls []samplerCall
	var samples []SampleEvent
	n := int32(0)
	for _, h := range cg.Samplers.handles() {
		as := cg.Samplers.assocs[h]
		times := as.sched.Events(tstart, ep.TFinal)
		if len(times) == 0 {
			continue
		}
		for _, pid := range as.probes {
			pidx := cg.probeIndex[pid]
			ph := lc.Probes[pidx]
			calls = append(calls, samplerCall{
				fn:    as.fn,
				probe: pid,
				tag:   ph.Tag,
				begin: n,
				end:   n + int32(len(times)),
			})
			for _, t := range times {
				samples = append(samples, SampleEvent{Cell: ph.Cell, Time: t, Probe: pidx, Offset: n})
				n++
			}
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })

	if err := lc.Integrate(ep.TFinal, dtMax, staged, samples); err != nil {
		return err
	}

	// deliver sampler callbacks with contiguous spans
	for _, sc := range calls {
		recs := make([]SampleRecord, 0, sc.end-sc.begin)
		for i := sc.begin; i < sc.end; i++ {
			recs = append(recs, SampleRecord{Time: lc.SampleTime[i], Value: &lc.SampleValue[i]})
		}
		sc.fn(sc.probe, sc.tag, len(recs), recs)
	}

	// map local crossings to global spike sources
	for _, cr := range lc.Watcher.Take() {
		cg.Spikes = append(cg.Spikes, Spike{Source: cg.spikeSources[cr.Index], Time: cr.Time})
	}
	return nil
}

// TakeSpikes drains the spikes collected so far, sorted by (time, source).
func (cg *CellGroup) TakeSpikes() []Spike {
	sp := cg.Spikes
	cg.Spikes = nil
	sort.SliceStable(sp, func(i, j int) bool {
		if sp[i].Time != sp[j].Time {
			return sp[i].Time < sp[j].Time
		}
		if sp[i].Source.GID != sp[j].Source.GID {
			return sp[i].Source.GID < sp[j].Source.GID
		}
		return sp[i].Source.Index < sp[j].Source.Index
	})
	return sp
}

// Reset rewinds the group: spikes cleared, schedules and binners rewound,
// and the lowered cell returned to its initial state.
func (cg *CellGroup) Reset() {
	cg.Spikes = nil
	cg.Samplers.Reset()
	for i := range cg.Binners {
		cg.Binners[i].Reset()
	}
	cg.Lowered.Reset()
}
