// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mech

// GJ is the gap-junction point mechanism: an ohmic coupling between a
// local CV and a peer CV, possibly on another cell of the same group.
// Each instance position carries its own conductance and peer; the
// instance current is g·(v − v_peer) [nA].  GJ instances are created from
// the gap-junction configuration, never from event connections, so they
// have no net_receive.
type GJ struct {
	Instance

	// conductance per instance position [µS]
	G []float64

	// peer CV (global index) per instance position
	Peer []int32
}

var gjInfo = Info{
	Name: "gj",
	Kind: Point,
	Params: []ParamSpec{
		{Name: "g", Default: 0.005, Min: 0, Max: 1e9},
	},
}

func NewGJ() *GJ {
	return &GJ{}
}

func (gj *GJ) Name() string { return "gj" }
func (gj *GJ) Kind() Kinds  { return Point }
func (gj *GJ) Info() *Info  { return &gjInfo }

func (gj *GJ) Bind(sh *Shared, cv []int32, weight []float64) {
	gj.Instance.Bind(sh, cv, weight)
	gj.G = gj.StateVec()
	gj.Peer = make([]int32, gj.N, gj.PadLen(gj.N))
	for i := range gj.G {
		gj.G[i] = gjInfo.Params[0].Default
	}
}

// SetConn sets the peer CV and conductance [µS] of instance position i.
func (gj *GJ) SetConn(i int, peer int32, g float64) {
	gj.Peer[i] = peer
	gj.G[i] = g
}

func (gj *GJ) BindIon(name string, iv *IonView) error {
	return nil
}

func (gj *GJ) SetParam(name string, val float64) error {
	if err := checkRange(&gjInfo, name, val); err != nil {
		return err
	}
	if name == "g" {
		for i := range gj.G {
			gj.G[i] = val
		}
	}
	return nil
}

func (gj *GJ) Init() {}

func (gj *GJ) Current() {
	for i, cv := range gj.CV {
		dv := gj.Sh.V[cv] - gj.Sh.V[gj.Peer[i]]
		gj.Sh.J[cv] += gj.Weight[i] * gj.G[i] * dv
	}
}

func (gj *GJ) State() {}

func (gj *GJ) Reset() {
	// conductances and peers are configuration, not state
}
