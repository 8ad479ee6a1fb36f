package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/reflink"
)

// NewReferrerCommand creates the referrer command.
func NewReferrerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "referrer <install-referrer>",
		Short: "Store the referral of an install-referrer payload",
		Long: `Store the insertAffiliate value of a query-string shaped install
referrer. Payloads without it are ignored.

Example:
  reflink referrer "utm_source=x&insertAffiliate=PROMO42"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, cmd, func(c *reflink.Client) { c.HandleInstallReferrer(args[0]) })
		},
	}
}

// NewDeepLinkCommand creates the deeplink command.
func NewDeepLinkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deeplink <uri>",
		Short: "Store the referral of an opened deep link",
		Long: `Store the insertAffiliate query parameter of a deep-link URI.
URIs without it are ignored.

Example:
  reflink deeplink "acme://open?insertAffiliate=PROMO42"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, cmd, func(c *reflink.Client) { c.HandleDeepLink(args[0]) })
		},
	}
}

func runIngest(opts *RootOptions, cmd *cobra.Command, handle func(*reflink.Client)) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	handle(client)
	client.Wait()

	identifier, present := client.Identifier(true)
	if !present {
		_ = out.Error(CodeNotFound, "no affiliate identifier stored", nil)
		return NewExitError(ExitFailure, "no affiliate identifier")
	}
	return out.Success(IdentifierData{Identifier: identifier, Present: true, Valid: client.IsAttributionValid()})
}
