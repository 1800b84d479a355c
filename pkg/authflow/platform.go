// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package authflow

import (
	"fmt"
	"sort"
)

// Platform describes which strategy families a host can run and what the
// symbolic "default" and "all" modes expand to there.
type Platform struct {
	Name      string
	Supported Mode
	Default   Mode
	All       Mode
}

// Built-in platform profiles. The broker (WAM) only exists on Windows 10 and
// later; IWA needs a domain joined Windows host.
var (
	PlatformWindows10 = Platform{
		Name:      "windows10",
		Supported: concreteModes,
		Default:   ModeIWA | ModeBroker | ModeWeb,
		All:       concreteModes,
	}
	PlatformWindows = Platform{
		Name:      "windows",
		Supported: ModeIWA | ModeWeb | ModeDeviceCode,
		Default:   ModeIWA | ModeWeb,
		All:       ModeIWA | ModeWeb | ModeDeviceCode,
	}
	PlatformDarwin = Platform{
		Name:      "darwin",
		Supported: ModeWeb | ModeDeviceCode,
		Default:   ModeWeb,
		All:       ModeWeb | ModeDeviceCode,
	}
	PlatformLinux = Platform{
		Name:      "linux",
		Supported: ModeWeb | ModeDeviceCode,
		Default:   ModeWeb,
		All:       ModeWeb | ModeDeviceCode,
	}
)

var platforms = map[string]Platform{
	PlatformWindows10.Name: PlatformWindows10,
	PlatformWindows.Name:   PlatformWindows,
	PlatformDarwin.Name:    PlatformDarwin,
	PlatformLinux.Name:     PlatformLinux,
}

// LookupPlatform returns the named built-in profile.
func LookupPlatform(name string) (Platform, error) {
	p, ok := platforms[name]
	if !ok {
		names := make([]string, 0, len(platforms))
		for n := range platforms {
			names = append(names, n)
		}
		sort.Strings(names)
		return Platform{}, fmt.Errorf("unknown platform %q, known platforms: %v", name, names)
	}
	return p, nil
}

// Resolve expands the symbolic bits of m and drops every family this
// platform cannot run.
func (p Platform) Resolve(m Mode) Mode {
	resolved := m & concreteModes
	if m&ModeAll != 0 {
		resolved |= p.All
	}
	if m&ModeDefault != 0 {
		resolved |= p.Default
	}
	return resolved & p.Supported
}

// PreventInteraction replaces the requested mode when user interaction is
// disabled. Only IWA can run without a user, and only where it is supported.
func (p Platform) PreventInteraction(Mode) Mode {
	if p.Supported.Has(ModeIWA) {
		return ModeIWA
	}
	return 0
}

// DetectPlatform returns the profile matching the running host.
func DetectPlatform() Platform {
	return detectPlatform()
}
