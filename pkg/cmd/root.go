// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the azauth command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/config"
	"github.com/telekom/azauth/pkg/identity"
	"github.com/telekom/azauth/pkg/logging"
	"github.com/telekom/azauth/pkg/strategy"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// ErrorWriter receives logs and prompts. Defaults to stderr.
	ErrorWriter io.Writer
	// NewClient replaces the OIDC identity client.
	NewClient strategy.ClientFunc
	// Platform replaces host detection.
	Platform *authflow.Platform
	// LockDir replaces the per-user lock directory.
	LockDir string
}

type runtimeState struct {
	configPath     string
	verbosity      string
	tokenStorage   string
	metricsFile    string
	nonInteractive bool
	writer         io.Writer
	errWriter      io.Writer
	newClient      strategy.ClientFunc
	platform       *authflow.Platform
	lockDir        string
	log            *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		writer:     cfg.OutputWriter,
		errWriter:  cfg.ErrorWriter,
		newClient:  cfg.NewClient,
		platform:   cfg.Platform,
		lockDir:    cfg.LockDir,
	}

	root := &cobra.Command{
		Use:          "azauth",
		Short:        "Acquire Azure AD tokens with fallback auth flows",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.verbosity == "" {
				rt.verbosity = os.Getenv(config.EnvVerbosity)
			}
			if rt.tokenStorage == "" {
				rt.tokenStorage = os.Getenv(config.EnvTokenStorage)
			}
			if rt.metricsFile == "" {
				rt.metricsFile = os.Getenv(config.EnvMetricsFile)
			}
			if !rt.nonInteractive {
				rt.nonInteractive = config.InteractiveAuthDisabled()
			}
			logger, err := logging.New(logging.Options{Verbosity: rt.verbosity, Writer: rt.ErrWriter()})
			if err != nil {
				return err
			}
			rt.log = logger.Sugar()
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}
	root.SetOut(rt.Writer())
	root.SetErr(rt.ErrWriter())

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to the alias config file (.toml, .yaml)")
	root.PersistentFlags().StringVar(&rt.verbosity, "verbosity", "", fmt.Sprintf("Log verbosity: %v", logging.Verbosities()))
	root.PersistentFlags().StringVar(&rt.tokenStorage, "token-storage", "", "Token cache backend: file or keyring")
	root.PersistentFlags().StringVar(&rt.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after each run")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Never prompt the user")

	_ = root.RegisterFlagCompletionFunc("verbosity", cobra.FixedCompletions(logging.Verbosities(), cobra.ShellCompDirectiveNoFileComp))
	_ = root.RegisterFlagCompletionFunc("token-storage", cobra.FixedCompletions([]string{"file", "keyring"}, cobra.ShellCompDirectiveNoFileComp))

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewAADCommand(),
		NewInfoCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log != nil {
		return rt.log
	}
	return zap.NewNop().Sugar()
}

// Platform returns the configured platform profile or the detected one.
func (rt *runtimeState) Platform() authflow.Platform {
	if rt.platform != nil {
		return *rt.platform
	}
	return authflow.DetectPlatform()
}

// TokenStorage names the token cache backend in use.
func (rt *runtimeState) TokenStorage() string {
	if rt.tokenStorage != "" {
		return rt.tokenStorage
	}
	return "file"
}

// Clients returns the identity client constructor for authority. An empty
// authority uses the Azure AD endpoints of the request's tenant.
func (rt *runtimeState) Clients(authority string) strategy.ClientFunc {
	if rt.newClient != nil {
		return rt.newClient
	}
	return func(req authflow.Request) (identity.Client, error) {
		store, err := identity.NewStore(rt.tokenStorage, config.DefaultTokenPath())
		if err != nil {
			return nil, err
		}
		client, err := identity.NewOIDCClient(rt.Logger().Named("identity"), identity.Config{
			ClientID:     req.ClientID,
			TenantID:     req.TenantID,
			Authority:    authority,
			PromptOutput: rt.ErrWriter(),
		}, store)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
