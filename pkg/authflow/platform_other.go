//go:build !windows

package authflow

import "runtime"

func detectPlatform() Platform {
	if runtime.GOOS == "darwin" {
		return PlatformDarwin
	}
	return PlatformLinux
}
