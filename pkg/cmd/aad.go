package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/telekom/azauth/pkg/authflow"
	"github.com/telekom/azauth/pkg/config"
	"github.com/telekom/azauth/pkg/lock"
	"github.com/telekom/azauth/pkg/metrics"
	"github.com/telekom/azauth/pkg/output"
	"github.com/telekom/azauth/pkg/strategy"
)

const authFailedMessage = "Authentication failed. Re-run with '--verbosity debug' to see more info."

// ErrAuthFailed is returned when no auth flow produced a token.
var ErrAuthFailed = errors.New("authentication failed")

type aadOptions struct {
	alias      string
	resource   string
	client     string
	tenant     string
	domain     string
	promptHint string
	authority  string
	scopes     []string
	modes      []string
	timeout    time.Duration
	output     string
	clear      bool
}

func NewAADCommand() *cobra.Command {
	opts := &aadOptions{}

	cmd := &cobra.Command{
		Use:   "aad",
		Short: "Get an Azure AD access token",
		Long: `Get an access token for a resource, trying the auth flows allowed by --mode
in order until one succeeds. Concurrent invocations for the same client and
tenant wait for each other so that only one of them prompts the user.`,
		Example: `  azauth aad --client <id> --tenant <id> --resource api://backend
  azauth aad --alias backend --mode devicecode --output token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			printer, err := output.NewPrinter(opts.output)
			if err != nil {
				return err
			}
			req, err := opts.request(rt)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			log := rt.Logger()
			clients := rt.Clients(opts.authority)

			if opts.clear {
				client, err := clients(req)
				if err != nil {
					return fmt.Errorf("create identity client: %w", err)
				}
				if err := client.ClearCache(); err != nil {
					return err
				}
				log.Info("Token cache cleared")
				return nil
			}

			recorder := metrics.New()
			locker := lock.New(log.Named("lock"), rt.lockDir)
			locker.OnAcquire = recorder.ObserveLock
			acquirer := &authflow.Acquirer{
				Log:      log,
				Platform: rt.Platform(),
				Factory:  strategy.Provider(log, clients),
				Locker:   locker,
				Observer: recorder,
			}

			result, err := acquirer.AcquireToken(cmd.Context(), req)
			if rt.metricsFile != "" {
				if werr := recorder.WriteTextfile(rt.metricsFile); werr != nil {
					log.Warnw("Failed to write metrics", "path", rt.metricsFile, "error", werr)
				}
			}
			if err != nil {
				return err
			}
			if log.Desugar().Core().Enabled(zapcore.DebugLevel) {
				output.WriteAttemptTable(rt.ErrWriter(), result)
			}

			tok := result.Token()
			if tok == nil {
				log.Debugf("Auth flow errors:\n%s", result.ErrorSummary())
				log.Error(authFailedMessage)
				return ErrAuthFailed
			}
			return printer.PrintToken(rt.Writer(), tok)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.alias, "alias", "", "Alias from the config file to read defaults from")
	flags.StringVarP(&opts.resource, "resource", "r", "", "Resource ID to request a token for")
	flags.StringVarP(&opts.client, "client", "c", "", "Client (application) ID")
	flags.StringVarP(&opts.tenant, "tenant", "t", "", "Tenant ID")
	flags.StringVarP(&opts.domain, "domain", "d", "", "Preferred account domain, for example contoso.com")
	flags.StringSliceVar(&opts.scopes, "scope", nil, "Scopes to request. Defaults to <resource>/.default")
	flags.StringSliceVar(&opts.modes, "mode", nil, fmt.Sprintf("Auth modes to try: %s", strings.Join(authflow.ModeNames(), ", ")))
	flags.StringVar(&opts.promptHint, "prompt-hint", "", "Text shown in front of interactive prompts")
	flags.StringVar(&opts.authority, "authority", "", "OIDC issuer URL. Defaults to the Azure AD endpoints of the tenant")
	flags.DurationVar(&opts.timeout, "timeout", 0, fmt.Sprintf("Overall timeout (default %s)", authflow.DefaultTimeout))
	flags.StringVarP(&opts.output, "output", "o", string(output.FormatStatus), fmt.Sprintf("Output format: %s", strings.Join(output.Formats(), ", ")))
	flags.BoolVar(&opts.clear, "clear", false, "Clear the token cache for the client and tenant and exit")

	_ = cmd.RegisterFlagCompletionFunc("mode", cobra.FixedCompletions(authflow.ModeNames(), cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(output.Formats(), cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("alias", func(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		rt, err := getRuntime(cmd)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		cfg, err := config.Load(rt.configPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return cfg.Names(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// request merges the flags over the selected alias. Modes fall back to
// AZAUTH_MODE and then to "default".
func (o *aadOptions) request(rt *runtimeState) (authflow.Request, error) {
	fromFlags := config.Alias{
		Resource: o.resource,
		Client:   o.client,
		Tenant:   o.tenant,
		Domain:   o.domain,
		Caller:   o.promptHint,
		Scopes:   o.scopes,
		Modes:    o.modes,
	}
	if o.timeout > 0 {
		fromFlags.Timeout = o.timeout.String()
	}

	merged := fromFlags
	if o.alias != "" {
		cfg, err := config.Load(rt.configPath)
		if err != nil {
			return authflow.Request{}, fmt.Errorf("failed to load config: %w", err)
		}
		base, err := cfg.FindAlias(o.alias)
		if err != nil {
			return authflow.Request{}, err
		}
		merged = base.Override(fromFlags)
	}

	modeNames := merged.Modes
	if len(modeNames) == 0 {
		modeNames = config.ModesFromEnv()
	}
	if len(modeNames) == 0 {
		modeNames = []string{"default"}
	}
	modes, err := authflow.ParseModes(modeNames)
	if err != nil {
		return authflow.Request{}, err
	}
	timeout, err := merged.TimeoutDuration()
	if err != nil {
		return authflow.Request{}, err
	}

	return authflow.Request{
		ClientID:       merged.Client,
		TenantID:       merged.Tenant,
		Resource:       merged.Resource,
		Scopes:         merged.Scopes,
		Modes:          modes,
		Domain:         merged.Domain,
		PromptHint:     merged.Caller,
		Timeout:        timeout,
		NonInteractive: rt.nonInteractive,
	}, nil
}
