//go:build windows

package authflow

import "golang.org/x/sys/windows"

func detectPlatform() Platform {
	v := windows.RtlGetVersion()
	if v != nil && v.MajorVersion >= 10 {
		return PlatformWindows10
	}
	return PlatformWindows
}
