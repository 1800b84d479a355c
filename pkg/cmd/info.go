package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/telekom/azauth/pkg/config"
	"github.com/telekom/azauth/pkg/lock"
	"github.com/telekom/azauth/pkg/output"
	"github.com/telekom/azauth/pkg/version"
)

type infoView struct {
	Version        string `json:"version" yaml:"version"`
	Platform       string `json:"platform" yaml:"platform"`
	SupportedModes string `json:"supported_modes" yaml:"supported_modes"`
	DefaultModes   string `json:"default_modes" yaml:"default_modes"`
	AllModes       string `json:"all_modes" yaml:"all_modes"`
	NonInteractive bool   `json:"non_interactive" yaml:"non_interactive"`
	ConfigPath     string `json:"config_path" yaml:"config_path"`
	TokenStorage   string `json:"token_storage" yaml:"token_storage"`
	TokenCache     string `json:"token_cache" yaml:"token_cache"`
	LockDir        string `json:"lock_dir,omitempty" yaml:"lock_dir,omitempty"`
}

func NewInfoCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the platform profile and the paths azauth uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			platform := rt.Platform()
			view := infoView{
				Version:        version.Version,
				Platform:       platform.Name,
				SupportedModes: platform.Supported.String(),
				DefaultModes:   platform.Default.String(),
				AllModes:       platform.All.String(),
				NonInteractive: rt.nonInteractive,
				ConfigPath:     rt.configPath,
				TokenStorage:   rt.TokenStorage(),
				TokenCache:     config.DefaultTokenPath(),
			}
			if dir, err := lock.New(nil, rt.lockDir).Directory(); err == nil {
				view.LockDir = dir
			} else {
				rt.Logger().Debugw("Lock directory unavailable", "error", err)
			}

			w := rt.Writer()
			switch output.Format(outputFormat) {
			case output.FormatJSON, output.FormatYAML:
				return output.WriteObject(w, output.Format(outputFormat), view)
			case "":
				tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
				_, _ = fmt.Fprintf(tw, "Version:\t%s\n", view.Version)
				_, _ = fmt.Fprintf(tw, "Platform:\t%s\n", view.Platform)
				_, _ = fmt.Fprintf(tw, "Supported modes:\t%s\n", view.SupportedModes)
				_, _ = fmt.Fprintf(tw, "Default modes:\t%s\n", view.DefaultModes)
				_, _ = fmt.Fprintf(tw, "All modes:\t%s\n", view.AllModes)
				_, _ = fmt.Fprintf(tw, "Non-interactive:\t%t\n", view.NonInteractive)
				_, _ = fmt.Fprintf(tw, "Config:\t%s\n", view.ConfigPath)
				_, _ = fmt.Fprintf(tw, "Token storage:\t%s\n", view.TokenStorage)
				_, _ = fmt.Fprintf(tw, "Token cache:\t%s\n", view.TokenCache)
				if view.LockDir != "" {
					_, _ = fmt.Fprintf(tw, "Lock dir:\t%s\n", view.LockDir)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, yaml")

	return cmd
}
