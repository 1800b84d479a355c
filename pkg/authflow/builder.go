// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"context"
	"fmt"
)

// Strategy tries one technique for obtaining a token. Expected failures are
// recorded in the returned Attempt; a non-nil error is an unexpected fault
// that aborts the whole run.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context) (*Attempt, error)
}

// StrategyKind names a strategy family in a planned sequence.
type StrategyKind string

const (
	StrategyCached     StrategyKind = "cached"
	StrategyIWA        StrategyKind = "iwa"
	StrategyBroker     StrategyKind = "broker"
	StrategyWeb        StrategyKind = "web"
	StrategyDeviceCode StrategyKind = "devicecode"
)

// Factory creates the strategy for one kind.
type Factory interface {
	New(kind StrategyKind) (Strategy, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(kind StrategyKind) (Strategy, error)

func (f FactoryFunc) New(kind StrategyKind) (Strategy, error) {
	return f(kind)
}

// interactiveModes are the families that benefit from a silent attempt first.
const interactiveModes = ModeBroker | ModeWeb | ModeDeviceCode

var priority = []struct {
	kind StrategyKind
	mode Mode
}{
	{StrategyIWA, ModeIWA},
	{StrategyBroker, ModeBroker},
	{StrategyWeb, ModeWeb},
	{StrategyDeviceCode, ModeDeviceCode},
}

// Plan returns the ordered strategy kinds for mode on platform p. The cached
// strategy leads whenever an interactive family is present; families p does
// not support are left out.
func Plan(mode Mode, p Platform) []StrategyKind {
	resolved := p.Resolve(mode)
	kinds := make([]StrategyKind, 0, len(priority)+1)
	if resolved&interactiveModes != 0 {
		kinds = append(kinds, StrategyCached)
	}
	for _, entry := range priority {
		if resolved.Has(entry.mode) {
			kinds = append(kinds, entry.kind)
		}
	}
	return kinds
}

// Build instantiates Plan(mode, p) through f.
func Build(mode Mode, p Platform, f Factory) ([]Strategy, error) {
	kinds := Plan(mode, p)
	strategies := make([]Strategy, 0, len(kinds))
	for _, kind := range kinds {
		s, err := f.New(kind)
		if err != nil {
			return nil, fmt.Errorf("create %s strategy: %w", kind, err)
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}
