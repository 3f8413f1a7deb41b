// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mech

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at mechanism binding.  All abort initialization of
// the owning cell group.
var (
	// ErrNoSuchMechanism is returned for names absent from the catalogue.
	ErrNoSuchMechanism = errors.New("no such mechanism")

	// ErrFingerprint is returned when a requested parameter set does not
	// match the compiled fingerprint of the catalogue entry.
	ErrFingerprint = errors.New("fingerprint mismatch")

	// ErrNoSuchParameter is returned for parameter names the mechanism
	// does not declare.
	ErrNoSuchParameter = errors.New("no such parameter")

	// ErrInvalidParameterValue is returned for parameter values outside
	// the declared range.
	ErrInvalidParameterValue = errors.New("invalid parameter value")

	// ErrInvalidOperation is returned when an event target resolves to a
	// non-point mechanism.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Factory produces a fresh unbound instance of one compiled mechanism.
type Factory func() Mechanism

// Catalogue maps mechanism names to factories.
type Catalogue struct {
	makers map[string]Factory
}

// NewCatalogue returns an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{makers: make(map[string]Factory)}
}

// Std returns a catalogue holding the built-in mechanisms: hh, pas,
// expsyn, exp2syn, gj.
func Std() *Catalogue {
	ca := NewCatalogue()
	ca.Register("hh", func() Mechanism { return NewHH() })
	ca.Register("pas", func() Mechanism { return NewPas() })
	ca.Register("expsyn", func() Mechanism { return NewExpSyn() })
	ca.Register("exp2syn", func() Mechanism { return NewExp2Syn() })
	ca.Register("gj", func() Mechanism { return NewGJ() })
	return ca
}

// Register adds or replaces a factory.
func (ca *Catalogue) Register(name string, mk Factory) {
	ca.makers[name] = mk
}

// Has reports whether name is in the catalogue.
func (ca *Catalogue) Has(name string) bool {
	_, ok := ca.makers[name]
	return ok
}

// Make produces an unbound instance of the named mechanism.
func (ca *Catalogue) Make(name string) (Mechanism, error) {
	mk, ok := ca.makers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchMechanism, name)
	}
	return mk(), nil
}

// MakeBound produces an instance, checks the parameter assignments against
// the compiled fingerprint and ranges, and applies them.  An explicit
// expected fingerprint (from a serialized model description) must match
// the compiled one exactly; pass "" to skip that check.
func (ca *Catalogue) MakeBound(name string, params map[string]float64, fingerprint string) (Mechanism, error) {
	m, err := ca.Make(name)
	if err != nil {
		return nil, err
	}
	info := m.Info()
	if fingerprint != "" && fingerprint != info.Fingerprint() {
		return nil, fmt.Errorf("%w: %s: want %q, have %q", ErrFingerprint, name, fingerprint, info.Fingerprint())
	}
	for nm, val := range params {
		if err := m.SetParam(nm, val); err != nil {
			return nil, err
		}
	}
	return m, nil
}
