// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

import (
	"math"
	"testing"
)

// difTol is the default tolerance for CmprFloats, allowing for small
// numerical diffs.
const difTol = 1e-6

func CmprFloats(got, trg []float64, msg string, t *testing.T) {
	t.Helper()
	if len(got) != len(trg) {
		t.Errorf("%v err: got len %d, trg len %d\n", msg, len(got), len(trg))
		return
	}
	for i := range got {
		dif := math.Abs(got[i] - trg[i])
		if dif > difTol {
			t.Errorf("%v err: got: %v, trg: %v, dif: %v\n", msg, got[i], trg[i], dif)
		}
	}
}

// relDif returns |a-b| / max(|a|,|b|), 0 when both are 0.
func relDif(a, b float64) float64 {
	mx := math.Max(math.Abs(a), math.Abs(b))
	if mx == 0 {
		return 0
	}
	return math.Abs(a-b) / mx
}
