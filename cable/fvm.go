// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"fmt"
	"math"
	"sort"

	"github.com/emer/cable/cvpolicy"
	"github.com/emer/cable/mech"
	"github.com/emer/cable/profile"
	"github.com/emer/etable/v2/minmax"
)

// TargetHandle resolves a cell-local event target to a mechanism instance
// position: the mechanism index in the lowered cell and the instance-local
// index within it.
type TargetHandle struct {
	Mech  int32
	Index int32
}

// ProbeHandle addresses one probeable quantity: the array kind, the global
// CV index, the owning cell, and the pass-through tag.
type ProbeHandle struct {
	Kind ProbeKinds
	CV   int32
	Cell int32
	Tag  int
}

// stimEntry is one lowered current injection.
type stimEntry struct {
	CV    int32
	Cell  int32
	Clamp IClamp
}

// LoweredCell is the finite-volume lowering of all cells of one group:
// the shared state, the mechanism instances, the Hines matrix, stimuli,
// detectors and probes, and the sub-step integration loop.
type LoweredCell struct {

	// engine configuration
	Cfg *Config

	// shared per-CV and per-cell state
	St *SharedState

	// the linear system
	Mx *HinesMatrix

	// group-wide geometry [µm², F/m²]
	Area, FaceAlpha, CmVec []float64

	// mechanism instances: density first, then point, each sorted by name,
	// then the gap-junction instance if any
	Mechs []mech.Mechanism

	// shared views handed to mechanisms
	shared mech.Shared

	// lowered current injections
	Stims []stimEntry

	// deliverable event streams, one per cell
	Events *EventStream

	// spike detectors
	Watcher *ThresholdWatcher

	// event target resolution: handles flattened over cells, with
	// per-cell divisions (TargetDivs[i] is the first handle of cell i)
	TargetHandles []TargetHandle
	TargetDivs    []int

	// probe handles and their global ids, parallel
	Probes   []ProbeHandle
	ProbeIDs []ProbeID

	// supercells with more than one member, as member cell-index lists
	superCells [][]int32

	// per-probe value at the owning cell's previous sub-step
	probePrev []float64

	// per-cell time at the previous sub-step
	tPrev []float64

	// sample output buffers, filled by Integrate
	SampleTime  []float64
	SampleValue []float64

	// per-step voltage bounds, recorded when Cfg.RecordVoltageBounds
	VoltBounds []minmax.F64
}

// NewLoweredCell returns an empty lowered cell with the given
// configuration.
func NewLoweredCell(cfg *Config) *LoweredCell {
	return &LoweredCell{Cfg: cfg}
}

// densityGroup collects the CV coverage and parameter descs of one
// density mechanism name during initialization.
type densityGroup struct {
	cvs   []int32
	descs []MechDesc
}

// pointTarget is one point-mechanism placement prior to CV sorting.
type pointTarget struct {
	cv     int32
	cell   int32
	target int // flat target-handle slot
	desc   MechDesc
}

// mechCVs returns the CVs a density mechanism on segment si covers.
func mechCVs(dc *Disc, si int, offset int32) []int32 {
	cvs := make([]int32, 0, len(dc.SegCV[si]))
	for _, cv := range dc.SegCV[si] {
		cvs = append(cvs, cv+offset)
	}
	return cvs
}

// Initialize lowers the given cells (already ordered so supercell members
// are consecutive; deps[i] is the supercell size at its first member, 0
// elsewhere) and builds mechanisms, ions, stimuli, detectors and probes.
func (lc *LoweredCell) Initialize(gids []int, deps []int, rec Recipe, cat *mech.Catalogue) error {
	pol, err := cvpolicy.Parse(lc.Cfg.CVPolicy)
	if err != nil {
		return err
	}

	ncell := len(gids)
	cells := make([]*Cell, ncell)
	discs := make([]*Disc, ncell)
	offsets := make([]int32, ncell)

	ncv := 0
	for ci, gid := range gids {
		c, err := rec.Cell(gid)
		if err != nil {
			return err
		}
		dc, err := Discretize(c, pol)
		if err != nil {
			return fmt.Errorf("cell %d: %w", gid, err)
		}
		cells[ci] = c
		discs[ci] = dc
		offsets[ci] = int32(ncv)
		ncv += dc.NCV
	}

	cvToCell := make([]int32, ncv)
	parent := make([]int32, ncv)
	lc.Area = make([]float64, ncv)
	lc.FaceAlpha = make([]float64, ncv)
	lc.CmVec = make([]float64, ncv)
	for ci, dc := range discs {
		off := offsets[ci]
		for i := 0; i < dc.NCV; i++ {
			gi := off + int32(i)
			cvToCell[gi] = int32(ci)
			if dc.Parent[i] < 0 {
				parent[gi] = -1
			} else {
				parent[gi] = dc.Parent[i] + off
			}
			lc.Area[gi] = dc.Area[i]
			lc.FaceAlpha[gi] = dc.FaceAlpha[i]
			lc.CmVec[gi] = dc.Cm[i]
		}
	}

	lc.St = NewSharedState(ncell, cvToCell, lc.Cfg.Align)
	lc.Mx = NewHinesMatrix(parent, lc.Area, lc.FaceAlpha, lc.CmVec)
	lc.Events = NewEventStream(ncell)
	lc.shared = mech.Shared{
		V:       lc.St.Voltage,
		J:       lc.St.Current,
		DtCV:    lc.St.DtCV,
		Celsius: lc.Cfg.Celsius(),
		Align:   lc.St.Align,
	}

	// supercell blocks with more than one member
	lc.superCells = nil
	for ci := 0; ci < ncell; {
		n := deps[ci]
		if n > 1 {
			blk := make([]int32, n)
			for k := 0; k < n; k++ {
				blk[k] = int32(ci + k)
			}
			lc.superCells = append(lc.superCells, blk)
			ci += n
		} else {
			ci++
		}
	}

	// collect density mechanisms by name across all cells
	denMap := map[string]*densityGroup{}
	for ci, c := range cells {
		dc := discs[ci]
		for si := range c.Segs {
			for _, md := range c.Segs[si].Mechs {
				dg := denMap[md.Name]
				if dg == nil {
					dg = &densityGroup{}
					denMap[md.Name] = dg
				}
				dg.cvs = append(dg.cvs, mechCVs(dc, si, offsets[ci])...)
				dg.descs = append(dg.descs, md)
			}
		}
	}

	// collect point mechanisms by name, with target-handle slots
	lc.TargetDivs = make([]int, ncell+1)
	for ci, c := range cells {
		nt := len(c.Syns)
		if rn := rec.NumTargets(gids[ci]); rn != nt {
			return fmt.Errorf("%w: cell %d declares %d targets but has %d synapses", ErrBadConnectionLabel, gids[ci], rn, nt)
		}
		lc.TargetDivs[ci+1] = lc.TargetDivs[ci] + nt
	}
	nTargets := lc.TargetDivs[ncell]
	lc.TargetHandles = make([]TargetHandle, nTargets)

	pointMap := map[string][]pointTarget{}
	for ci, c := range cells {
		dc := discs[ci]
		for ti, syn := range c.Syns {
			if syn.Loc.Seg < 0 || syn.Loc.Seg >= len(c.Segs) {
				return fmt.Errorf("%w: cell %d synapse %d segment %d", ErrBadConnectionLabel, gids[ci], ti, syn.Loc.Seg)
			}
			cv := dc.LocCV(syn.Loc) + offsets[ci]
			pointMap[syn.Mech.Name] = append(pointMap[syn.Mech.Name], pointTarget{
				cv:     cv,
				cell:   int32(ci),
				target: lc.TargetDivs[ci] + ti,
				desc:   syn.Mech,
			})
		}
	}

	// gap junctions: validated against group membership, lowered to one
	// gj instance with explicit peers
	gjTargets, err := lowerGapJunctions(gids, rec, discs, offsets)
	if err != nil {
		return err
	}

	// build instances: density then point, names sorted
	lc.Mechs = nil
	var bound []mechBinding

	denNames := make([]string, 0, len(denMap))
	for nm := range denMap {
		denNames = append(denNames, nm)
	}
	sort.Strings(denNames)
	for _, nm := range denNames {
		dg := denMap[nm]
		m, err := cat.Make(nm)
		if err != nil {
			return err
		}
		if m.Kind() != mech.Density {
			return fmt.Errorf("%w: %s is not a density mechanism", mech.ErrInvalidOperation, nm)
		}
		sort.Slice(dg.cvs, func(i, j int) bool { return dg.cvs[i] < dg.cvs[j] })
		wts := make([]float64, len(dg.cvs))
		for i := range wts {
			wts[i] = 1
		}
		bound = append(bound, mechBinding{m: m, cvs: dg.cvs, wts: wts, descs: dg.descs})
	}

	ptNames := make([]string, 0, len(pointMap))
	for nm := range pointMap {
		ptNames = append(ptNames, nm)
	}
	sort.Strings(ptNames)
	for _, nm := range ptNames {
		pts := pointMap[nm]
		m, err := cat.Make(nm)
		if err != nil {
			return err
		}
		if m.Kind() != mech.Point {
			return fmt.Errorf("%w: net_receive target %s is not a point mechanism", mech.ErrInvalidOperation, nm)
		}
		// sort instance positions by CV, keeping the original order to
		// assign target handles
		perm := make([]int, len(pts))
		for i := range perm {
			perm[i] = i
		}
		sort.SliceStable(perm, func(i, j int) bool { return pts[perm[i]].cv < pts[perm[j]].cv })

		mi := int32(len(bound))
		cvs := make([]int32, len(pts))
		wts := make([]float64, len(pts))
		descs := make([]MechDesc, len(pts))
		for pos, pi := range perm {
			pt := pts[pi]
			cvs[pos] = pt.cv
			wts[pos] = 100 / lc.Area[pt.cv]
			descs[pos] = pt.desc
			lc.TargetHandles[pt.target] = TargetHandle{Mech: mi, Index: int32(pos)}
		}
		bound = append(bound, mechBinding{m: m, cvs: cvs, wts: wts, descs: descs})
	}

	if len(gjTargets) > 0 {
		m, err := cat.Make("gj")
		if err != nil {
			return err
		}
		gj, ok := m.(*mech.GJ)
		if !ok {
			return fmt.Errorf("%w: catalogue entry gj is not a gap junction", mech.ErrInvalidOperation)
		}
		sort.SliceStable(gjTargets, func(i, j int) bool { return gjTargets[i].cv < gjTargets[j].cv })
		cvs := make([]int32, len(gjTargets))
		wts := make([]float64, len(gjTargets))
		for i, gt := range gjTargets {
			cvs[i] = gt.cv
			wts[i] = 100 / lc.Area[gt.cv]
		}
		gj.Bind(&lc.shared, cvs, wts)
		for i, gt := range gjTargets {
			gj.SetConn(i, gt.peer, gt.g)
		}
		bound = append(bound, mechBinding{m: gj, cvs: cvs, wts: wts})
	}

	// bind and parameterize
	for _, bm := range bound {
		if _, ok := bm.m.(*mech.GJ); !ok {
			bm.m.Bind(&lc.shared, bm.cvs, bm.wts)
		}
		for _, md := range bm.descs {
			info := bm.m.Info()
			if md.Fingerprint != "" && md.Fingerprint != info.Fingerprint() {
				return fmt.Errorf("%w: %s: want %q, have %q", mech.ErrFingerprint, info.Name, md.Fingerprint, info.Fingerprint())
			}
			for pn, pv := range md.Params {
				if err := bm.m.SetParam(pn, pv); err != nil {
					return err
				}
			}
		}
		lc.Mechs = append(lc.Mechs, bm.m)
	}

	if err := lc.buildIons(bound); err != nil {
		return err
	}

	// stimuli
	for ci, c := range cells {
		dc := discs[ci]
		for _, st := range c.Stims {
			cv := dc.LocCV(st.Loc) + offsets[ci]
			lc.Stims = append(lc.Stims, stimEntry{CV: cv, Cell: int32(ci), Clamp: st.Clamp})
		}
	}

	// detectors
	var detCV, detCell []int32
	var detThresh []float64
	for ci, c := range cells {
		dc := discs[ci]
		if rn := rec.NumSources(gids[ci]); rn != len(c.Detectors) {
			return fmt.Errorf("%w: cell %d declares %d sources but has %d detectors", ErrBadConnectionLabel, gids[ci], rn, len(c.Detectors))
		}
		for _, det := range c.Detectors {
			detCV = append(detCV, dc.LocCV(det.Loc)+offsets[ci])
			detCell = append(detCell, int32(ci))
			detThresh = append(detThresh, det.Threshold)
		}
	}

	// probes
	for ci, c := range cells {
		dc := discs[ci]
		if rn := rec.NumProbes(gids[ci]); rn != len(c.Probes) {
			return fmt.Errorf("%w: cell %d declares %d probes but has %d", ErrBadProbeID, gids[ci], rn, len(c.Probes))
		}
		for pi, pr := range c.Probes {
			lc.Probes = append(lc.Probes, ProbeHandle{
				Kind: pr.Kind,
				CV:   dc.LocCV(pr.Loc) + offsets[ci],
				Cell: int32(ci),
				Tag:  pr.Tag,
			})
			lc.ProbeIDs = append(lc.ProbeIDs, ProbeID{GID: gids[ci], Index: pi})
		}
	}
	lc.probePrev = make([]float64, len(lc.Probes))
	lc.tPrev = make([]float64, ncell)

	lc.Reset()
	lc.Watcher = NewThresholdWatcher(lc.St, detCV, detCell, detThresh)
	return nil
}

// gjTarget is one lowered gap-junction half.
type gjTarget struct {
	cv   int32
	peer int32
	g    float64
}

// lowerGapJunctions checks that every peer is a member of this group and
// lowers each coupling half to CV indexes.
func lowerGapJunctions(gids []int, rec Recipe, discs []*Disc, offsets []int32) ([]gjTarget, error) {
	gidIndex := map[int]int{}
	for ci, gid := range gids {
		gidIndex[gid] = ci
	}
	var out []gjTarget
	for ci, gid := range gids {
		for _, gj := range rec.GapJunctionsOn(gid) {
			pi, ok := gidIndex[gj.Peer]
			if !ok {
				return nil, fmt.Errorf("%w: cells %d and %d joined by a gap junction are in different cell groups", ErrGapJunction, gid, gj.Peer)
			}
			cv := discs[ci].LocCV(gj.Local) + offsets[ci]
			peer := discs[pi].LocCV(gj.PeerLoc) + offsets[pi]
			out = append(out, gjTarget{cv: cv, peer: peer, g: gj.G})
		}
	}
	return out, nil
}

// mechBinding pairs an instance with its CV coverage during
// initialization.
type mechBinding struct {
	m     mech.Mechanism
	cvs   []int32
	wts   []float64
	descs []MechDesc
}

// buildIons creates the ion states for every ion referenced by some
// mechanism, applying declared renames, and binds ion views into the
// mechanisms.  An ion array exists iff at least one mechanism references
// that ion.
func (lc *LoweredCell) buildIons(bound []mechBinding) error {
	defaults := DefaultIons()

	// resolve the rename for one (mechanism, dependency); renames must be
	// consistent across all descs of the instance
	resolve := func(bm *mechBinding, dep string) (string, error) {
		nm := dep
		seen := false
		for _, md := range bm.descs {
			rn, ok := md.IonRename[dep]
			if !ok {
				continue
			}
			if seen && rn != nm {
				return "", fmt.Errorf("%w: %s remaps %s to both %s and %s", ErrInvalidIonRemap, bm.m.Name(), dep, nm, rn)
			}
			nm = rn
			seen = true
		}
		return nm, nil
	}

	// union of CVs per global ion name, plus the canonical source of its
	// defaults
	ionCVs := map[string]map[int32]bool{}
	ionSrc := map[string]string{}
	for bi := range bound {
		bm := &bound[bi]
		for _, dep := range bm.m.Info().Ions {
			nm, err := resolve(bm, dep.Name)
			if err != nil {
				return err
			}
			if src, ok := ionSrc[nm]; ok && src != dep.Name {
				return fmt.Errorf("%w: ion %s serves both %s and %s", ErrInvalidIonRemap, nm, src, dep.Name)
			}
			ionSrc[nm] = dep.Name
			set := ionCVs[nm]
			if set == nil {
				set = map[int32]bool{}
				ionCVs[nm] = set
			}
			for _, cv := range bm.cvs {
				set[cv] = true
			}
		}
	}

	for nm, set := range ionCVs {
		cvs := make([]int32, 0, len(set))
		for cv := range set {
			cvs = append(cvs, cv)
		}
		sort.Slice(cvs, func(i, j int) bool { return cvs[i] < cvs[j] })
		def, ok := defaults[ionSrc[nm]]
		if !ok {
			return fmt.Errorf("%w: no default ion table entry for %s", ErrInvalidIonRemap, ionSrc[nm])
		}
		lc.St.AddIon(nm, def, cvs)
	}

	// bind views
	for bi := range bound {
		bm := &bound[bi]
		for _, dep := range bm.m.Info().Ions {
			nm, _ := resolve(bm, dep.Name)
			is := lc.St.Ions[nm]
			idx := make([]int32, len(bm.cvs))
			for i, cv := range bm.cvs {
				p := sort.Search(len(is.CV), func(k int) bool { return is.CV[k] >= cv })
				idx[i] = int32(p)
			}
			iv := &mech.IonView{Ix: is.Ix, Ex: is.Ex, Xi: is.Xi, Xo: is.Xo, Index: idx}
			if err := bm.m.BindIon(dep.Name, iv); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset returns the lowered cell to its initial condition: voltage at
// VInit, zero currents, zero times, default-weighted ion concentrations
// with Nernst reversal potentials, and every mechanism reinitialized.
func (lc *LoweredCell) Reset() {
	lc.St.Reset(lc.Cfg.VInit, lc.Cfg.Temp)
	for _, m := range lc.Mechs {
		m.Reset()
	}
	if lc.Watcher != nil {
		lc.Watcher.Reset()
	}
	for i := range lc.tPrev {
		lc.tPrev[i] = 0
	}
	for pi := range lc.Probes {
		lc.probePrev[pi] = lc.probeVal(lc.Probes[pi])
	}
	lc.VoltBounds = nil
}

// probeVal reads the current value of a probe handle.
func (lc *LoweredCell) probeVal(ph ProbeHandle) float64 {
	switch ph.Kind {
	case ProbeCurrent:
		return lc.St.Current[ph.CV]
	}
	return lc.St.Voltage[ph.CV]
}

func resizeF64(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}

// Integrate advances every cell to tfinal with sub-steps bounded by dtMax
// and shortened so each staged event is honoured at exactly its scheduled
// time.  Staged events must be sorted by (cell, time, mech, index);
// samples must be sorted by time within each cell.  Spikes accumulate in
// the Watcher; sample times and values are written at each event's
// offset.
func (lc *LoweredCell) Integrate(tfinal, dtMax float64, staged []DeliverableEvent, samples []SampleEvent) error {
	profile.Start("integrate")
	defer profile.Stop("integrate")

	st := lc.St
	if dtMax <= 0 {
		dtMax = lc.Cfg.DtMax
	}

	for i := range staged {
		ev := &staged[i]
		if ev.Time < st.Time[ev.Cell] {
			return fmt.Errorf("%w: event at %g ms but cell %d is at %g ms", ErrBadEventTime, ev.Time, ev.Cell, st.Time[ev.Cell])
		}
	}
	if err := lc.Events.Init(staged); err != nil {
		return err
	}

	// partition sample events per cell; they stay time-sorted
	sampIdx := make([][]int32, st.NCell)
	for i := range samples {
		sampIdx[samples[i].Cell] = append(sampIdx[samples[i].Cell], int32(i))
	}
	sampHead := make([]int, st.NCell)
	lc.SampleTime = resizeF64(lc.SampleTime, len(samples))
	lc.SampleValue = resizeF64(lc.SampleValue, len(samples))

	// interpolation baselines
	copy(lc.tPrev, st.Time)
	for pi := range lc.Probes {
		lc.probePrev[pi] = lc.probeVal(lc.Probes[pi])
	}

	for st.MinTime() < tfinal {
		st.UpdateTimeTo(dtMax, tfinal)

		// events whose time equals the cell's current time are due now;
		// the next unmarked event shortens the sub-step so its own time
		// becomes a boundary
		lc.Events.MarkUntilAfter(st.Time)
		lc.Events.EventTimeIfBefore(st.TimeTo)

		// supercell members step together so gap-junction peers are read
		// at a common time
		for _, blk := range lc.superCells {
			mn := st.TimeTo[blk[0]]
			for _, ci := range blk[1:] {
				if st.TimeTo[ci] < mn {
					mn = st.TimeTo[ci]
				}
			}
			for _, ci := range blk {
				st.TimeTo[ci] = mn
			}
		}

		st.SetDt()
		st.ZeroCurrents()

		// deliver marked events, ascending (time, mech, index) within
		// each cell, before any state integration
		for ci := 0; ci < st.NCell; ci++ {
			b, e := lc.Events.MarkedRange(ci)
			for k := b; k < e; k++ {
				lc.Mechs[lc.Events.Mech[k]].NetReceive(lc.Events.Index[k], lc.Events.Weight[k])
			}
		}

		for _, m := range lc.Mechs {
			m.Current()
		}

		// stimulus currents: nA over µm² to mA/cm²
		for i := range lc.Stims {
			se := &lc.Stims[i]
			if ie := se.Clamp.Amp(st.Time[se.Cell]); ie != 0 {
				st.Current[se.CV] -= 100 * ie / lc.Area[se.CV]
			}
		}

		lc.Mx.Assemble(st.DtCV, st.Voltage, st.Current)
		lc.Mx.Solve()
		copy(st.Voltage, lc.Mx.RHS)

		// the min/max reduction skips NaNs, so non-finite values are
		// tested per CV
		for i := 0; i < st.NCV; i++ {
			if v := st.Voltage[i]; math.IsNaN(v) || v < -1000 || v > 1000 {
				return fmt.Errorf("%w: voltage %g mV at CV %d, t=%g ms", ErrNumericalInstability, v, i, st.MinTime())
			}
		}
		if lc.Cfg.RecordVoltageBounds {
			lc.VoltBounds = append(lc.VoltBounds, st.VoltageBounds())
		}

		for _, m := range lc.Mechs {
			m.State()
		}

		st.AdvanceTime()
		lc.Watcher.Test()
		lc.Events.DropMarked()

		// record samples that fell inside each cell's sub-step, linearly
		// interpolating the probe between the step endpoints
		for ci := 0; ci < st.NCell; ci++ {
			tN, tP := st.Time[ci], lc.tPrev[ci]
			for sampHead[ci] < len(sampIdx[ci]) {
				sev := &samples[sampIdx[ci][sampHead[ci]]]
				if sev.Time > tN {
					break
				}
				vNow := lc.probeVal(lc.Probes[sev.Probe])
				val := vNow
				if sev.Time < tN && tN > tP {
					f := (sev.Time - tP) / (tN - tP)
					val = lc.probePrev[sev.Probe] + f*(vNow-lc.probePrev[sev.Probe])
				}
				lc.SampleTime[sev.Offset] = sev.Time
				lc.SampleValue[sev.Offset] = val
				sampHead[ci]++
			}
		}

		copy(lc.tPrev, st.Time)
		for pi := range lc.Probes {
			lc.probePrev[pi] = lc.probeVal(lc.Probes[pi])
		}
	}
	return nil
}
