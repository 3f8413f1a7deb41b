// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

// HinesMatrix is the per-step linear system for the semi-implicit voltage
// update, specialized for matrices whose off-diagonal graph is a tree with
// parent(i) < i.  Roots carry parent -1, so one matrix holds every cell of
// a group; elimination never crosses cell boundaries because roots have no
// parent term.
//
// Memory layout, with j = P[i] the parent of i:
//
//	D[i] is the diagonal entry a_ii
//	U[i] is the symmetric off-diagonal entry a_ij = a_ji
//
// Solve runs a single bottom-up elimination followed by a top-down
// substitution, O(n) total.
type HinesMatrix struct {

	// parent CV index, -1 for each cell root; P[i] < i otherwise
	P []int32

	// diagonal
	D []float64

	// symmetric off-diagonal to the parent
	U []float64

	// right-hand side; Solve leaves the solution here
	RHS []float64

	// geometric coefficients, referenced from the lowering
	Area      []float64
	FaceAlpha []float64
	Cm        []float64
}

// NewHinesMatrix creates the matrix over the group parent index with the
// given CV areas [µm²], face coupling coefficients and per-area
// capacitances [F/m²].
func NewHinesMatrix(p []int32, area, faceAlpha, cm []float64) *HinesMatrix {
	n := len(p)
	return &HinesMatrix{
		P:         p,
		D:         make([]float64, n),
		U:         make([]float64, n),
		RHS:       make([]float64, n),
		Area:      area,
		FaceAlpha: faceAlpha,
		Cm:        cm,
	}
}

// N returns the dimension of the system.
func (hm *HinesMatrix) N() int {
	return len(hm.P)
}

// Assemble builds the system for one sub-step.  dt is the per-CV step
// length [ms], v the voltage [mV] and j the membrane current density
// [mA/cm²].  The axial term is a = 1e5·dt·faceAlpha; the RHS is
// area·(v − 10·dt/c_m·j), with 10·dt converting current density to mV.
func (hm *HinesMatrix) Assemble(dt, v, j []float64) {
	n := hm.N()
	for i := 0; i < n; i++ {
		hm.D[i] = hm.Area[i]
		hm.U[i] = 0
	}
	for i := 0; i < n; i++ {
		p := hm.P[i]
		if p < 0 {
			continue
		}
		a := 1e5 * dt[i] * hm.FaceAlpha[i]
		hm.D[i] += a
		hm.U[i] = -a
		hm.D[p] += a
	}
	for i := 0; i < n; i++ {
		hm.RHS[i] = hm.Area[i] * (v[i] - 10*dt[i]/hm.Cm[i]*j[i])
	}
}

// Solve performs the Hines elimination and substitution in place.
// The solution is left in RHS.
func (hm *HinesMatrix) Solve() {
	n := hm.N()

	// bottom-up elimination: children are processed before parents
	// because i > P[i]
	for i := n - 1; i > 0; i-- {
		p := hm.P[i]
		if p < 0 {
			continue
		}
		factor := hm.U[i] / hm.D[i]
		hm.D[p] -= factor * hm.U[i]
		hm.RHS[p] -= factor * hm.RHS[i]
	}

	// top-down substitution
	for i := 0; i < n; i++ {
		p := hm.P[i]
		if p < 0 {
			hm.RHS[i] = hm.RHS[i] / hm.D[i]
		} else {
			hm.RHS[i] = (hm.RHS[i] - hm.U[i]*hm.RHS[p]) / hm.D[i]
		}
	}
}
