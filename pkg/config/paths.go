package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by azauth.
const (
	EnvConfig       = "AZAUTH_CONFIG"
	EnvCache        = "AZAUTH_CACHE"
	EnvMode         = "AZAUTH_MODE"
	EnvNoUser       = "AZAUTH_NO_USER"
	EnvTokenStorage = "AZAUTH_TOKEN_STORAGE"
	EnvVerbosity    = "AZAUTH_VERBOSITY"
	EnvMetricsFile  = "AZAUTH_METRICS_FILE"
	// EnvCorextNonInteractive is set to "1" by build systems that must never prompt.
	EnvCorextNonInteractive = "Corext_NonInteractive"
)

const (
	defaultDirName    = "azauth"
	defaultConfigFile = "config.toml"
	defaultTokenFile  = "tokens.json"
)

func DefaultConfigPath() string {
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".azauth", defaultConfigFile)
}

func DefaultTokenPath() string {
	if env := os.Getenv(EnvCache); env != "" {
		return env
	}
	base, err := os.UserCacheDir()
	if err == nil {
		return filepath.Join(base, defaultDirName, defaultTokenFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".azauth", defaultTokenFile)
}

// InteractiveAuthDisabled reports whether the environment forbids prompting
// the user.
func InteractiveAuthDisabled() bool {
	return os.Getenv(EnvNoUser) != "" || os.Getenv(EnvCorextNonInteractive) == "1"
}

// ModesFromEnv returns the comma separated modes of AZAUTH_MODE, or nil.
func ModesFromEnv() []string {
	raw := strings.TrimSpace(os.Getenv(EnvMode))
	if raw == "" {
		return nil
	}
	var modes []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			modes = append(modes, part)
		}
	}
	return modes
}
