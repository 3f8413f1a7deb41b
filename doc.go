// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package cable is the overall repository for the finite-volume cable-cell
simulation engine implemented in the Go language (golang).

This top-level of the repository has no functional code -- everything is
organized into the following sub-repositories:

* cable: the core engine: cable cell descriptions, the control-volume
discretizer, shared per-CV state and ion state, the Hines tree solver,
per-cell event streams, threshold spike detection, the sub-step
integrator, and the cell group with its sampler map.

* mech: the kinetic mechanism runtime: the mechanism contract, the
catalogue, and the built-in density and point mechanisms (hh, pas,
expsyn, exp2syn, gj).

* cvpolicy: s-expression discretization policies such as
(fixed-per-branch 4) and (max-extent 20).

* swc: the SWC morphology reader producing sample trees and cable cells.

* profile: the narrow process-wide timing-region registry; a no-op by
default, with a timer-backed implementation.

There are no example programs; the end-to-end scenarios (a single
Hodgkin-Huxley soma driven by a current step, a passive dendrite with a
synapse, two gap-junction-coupled cells) run as tests in cable/group_test.go.
*/
package cable
