// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is a set of permitted strategy families.
type Mode uint8

const (
	ModeWeb Mode = 1 << iota
	ModeDeviceCode
	ModeBroker
	ModeIWA
	// ModeAll and ModeDefault are symbolic and are expanded by Platform.Resolve.
	ModeAll
	ModeDefault
)

const concreteModes = ModeWeb | ModeDeviceCode | ModeBroker | ModeIWA

// ErrNoModes is returned when combining an empty list of modes.
var ErrNoModes = errors.New("at least one auth mode is required")

var modeNames = []struct {
	mode Mode
	name string
}{
	{ModeWeb, "web"},
	{ModeDeviceCode, "devicecode"},
	{ModeBroker, "broker"},
	{ModeIWA, "iwa"},
	{ModeAll, "all"},
	{ModeDefault, "default"},
}

// ModeNames lists the accepted mode names in help-text order.
func ModeNames() []string {
	names := make([]string, 0, len(modeNames))
	for _, m := range modeNames {
		names = append(names, m.name)
	}
	return names
}

// Has reports whether every bit of other is set in m.
func (m Mode) Has(other Mode) bool {
	return other != 0 && m&other == other
}

// IsEmpty reports whether no mode is selected.
func (m Mode) IsEmpty() bool {
	return m == 0
}

func (m Mode) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, n := range modeNames {
		if m&n.mode != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Combine ORs the given modes together.
func Combine(modes ...Mode) (Mode, error) {
	if len(modes) == 0 {
		return 0, ErrNoModes
	}
	var combined Mode
	for _, m := range modes {
		combined |= m
	}
	return combined, nil
}

// ParseMode parses a single mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, m := range modeNames {
		if m.name == name {
			return m.mode, nil
		}
	}
	return 0, fmt.Errorf("invalid auth mode %q, allowed values are: %s", s, strings.Join(ModeNames(), ", "))
}

// ParseModes parses every entry of values. Each entry may itself be a comma
// separated list, as accepted by the AZAUTH_MODE environment variable.
func ParseModes(values []string) ([]Mode, error) {
	var modes []Mode
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			m, err := ParseMode(part)
			if err != nil {
				return nil, err
			}
			modes = append(modes, m)
		}
	}
	return modes, nil
}
