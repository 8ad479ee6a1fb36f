package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/reflink"
	"github.com/roach88/reflink/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Database    string
	Profile     string
	CompanyCode string
	ActiveTime  int64

	// Configure adjusts the client options before the client is built.
	// Tests use it to point the client at a fake backend and store.
	Configure func(*reflink.Options)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the reflink CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reflink",
		Short: "reflink - affiliate attribution client",
		Long: `Store, resolve and report affiliate referrals.

Each invocation is one app session: the company code comes from the
config file, REFLINK_COMPANY_CODE or --company-code, and attribution
state persists in the configured store between invocations.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "store profile (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.CompanyCode, "company-code", "", "company code (overrides config)")
	cmd.PersistentFlags().Int64Var(&opts.ActiveTime, "active-time", -1, "attribution window in seconds, 0 never expires (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewShortCodeCommand(opts))
	cmd.AddCommand(NewIdentifierCommand(opts))
	cmd.AddCommand(NewAffiliateCommand(opts))
	cmd.AddCommand(NewOfferCodeCommand(opts))
	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewTransactionCommand(opts))
	cmd.AddCommand(NewValidatePurchaseCommand(opts))
	cmd.AddCommand(NewReferrerCommand(opts))
	cmd.AddCommand(NewDeepLinkCommand(opts))
	cmd.AddCommand(NewStubCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger writes structured logs to w. Debug level is enabled by --verbose
// or the config's verbose_logging.
func (o *RootOptions) logger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose || verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config file, environment and flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Store.Backend = config.BackendSQLite
		cfg.Store.Path = o.Database
	}
	if o.Profile != "" {
		cfg.Store.Profile = o.Profile
	}
	if o.CompanyCode != "" {
		cfg.CompanyCode = o.CompanyCode
	}
	if o.ActiveTime >= 0 {
		cfg.AttributionActiveTimeSeconds = o.ActiveTime
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// openClient builds a client from the resolved config and initializes it
// when a company code is configured. The caller must Close it.
func (o *RootOptions) openClient(cmd *cobra.Command) (*reflink.Client, config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}

	clientOpts := reflink.Options{Logger: o.logger(cmd.ErrOrStderr(), cfg.VerboseLogging)}
	if o.Configure != nil {
		o.Configure(&clientOpts)
	}
	client, err := reflink.NewFromConfig(cfg, clientOpts)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to open client", err)
	}

	if cfg.CompanyCode != "" {
		policy := reflink.Policy{ActiveTimeSeconds: cfg.AttributionActiveTimeSeconds}
		if err := client.Initialize(cfg.CompanyCode, policy); err != nil {
			_ = client.Close()
			return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to initialize client", err)
		}
	}
	return client, cfg, nil
}
