// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cable

// DefaultAlign is the lane width that state vectors are aligned and padded
// to.  Kernels that loop over a mechanism's CV list may assume that any
// state array's capacity is a multiple of this width, with zero fill in the
// padding tail beyond its length.
const DefaultAlign = 4

// PadLen returns n rounded up to a multiple of align.
func PadLen(n, align int) int {
	if align <= 1 {
		return n
	}
	return align * ((n + align - 1) / align)
}

// NewVec returns a float64 vector of length n, padded to a multiple of
// align.  The padding tail is part of the slice capacity only, so range
// loops see exactly n elements while vector kernels can read full lanes.
func NewVec(n, align int) []float64 {
	return make([]float64, n, PadLen(n, align))
}

// NewVecFill returns a padded vector with all n elements set to val.
func NewVecFill(n, align int, val float64) []float64 {
	v := NewVec(n, align)
	for i := range v {
		v[i] = val
	}
	return v
}

// Fill sets every element of v to val.
func Fill(v []float64, val float64) {
	for i := range v {
		v[i] = val
	}
}
