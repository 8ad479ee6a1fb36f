package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitData describes an initialized session.
type InitData struct {
	CompanyCode       string `json:"company_code"`
	DeviceIdentity    string `json:"device_identity"`
	ActiveTimeSeconds int64  `json:"attribution_active_time_seconds"`
	Profile           string `json:"profile"`
}

func (d InitData) String() string {
	window := "never expires"
	if d.ActiveTimeSeconds > 0 {
		window = fmt.Sprintf("%ds", d.ActiveTimeSeconds)
	}
	return fmt.Sprintf("Initialized %s (device %s, profile %s, attribution %s)",
		d.CompanyCode, d.DeviceIdentity, d.Profile, window)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the client and create the device identity",
		Long: `Initialize the client with the configured company code.

The device identity is created on first use and kept in the store
afterwards. When insert_links is enabled the install referrer is
captured once.

Example:
  reflink init --company-code ACME
  reflink init --config reflink.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	client, cfg, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	company, ok := client.CompanyCode()
	if !ok {
		_ = out.Error(CodePrecondition, "company code is required", nil)
		return NewExitError(ExitCommandError, "company code is required")
	}
	device, _ := client.DeviceIdentity()

	return out.Success(InitData{
		CompanyCode:       company,
		DeviceIdentity:    device,
		ActiveTimeSeconds: cfg.AttributionActiveTimeSeconds,
		Profile:           cfg.Store.Profile,
	})
}
