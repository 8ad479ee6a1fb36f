package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/reflink/internal/reporter"
)

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track <event-name>",
		Short: "Report an event for the current affiliate",
		Long: `Report a named event against the current affiliate identifier.
Fails locally, without a request, when no identifier resolves.

Exit codes:
  0 - Event accepted
  1 - Event rejected, not sent, or backend unreachable

Example:
  reflink track purchase`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, cmd, reporter.OpTrackEvent, func(c reportClient, done func(reporter.Outcome)) {
				c.TrackEvent(args[0], done)
			})
		},
	}
}

// NewTransactionCommand creates the transaction command.
func NewTransactionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transaction <purchase-token>",
		Short: "Announce an expected store transaction",
		Long: `Announce a purchase token to the affiliate backend so the store
webhook can be attributed. Uses the stored referral even after the
attribution window has passed.

Example:
  reflink transaction GPA.1234-5678`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, cmd, reporter.OpExpectedTransaction, func(c reportClient, done func(reporter.Outcome)) {
				c.StoreExpectedTransaction(args[0], done)
			})
		},
	}
}

// ValidatePurchaseOptions holds flags for the validate-purchase command.
type ValidatePurchaseOptions struct {
	*RootOptions
	Receipt reporter.Receipt
	Creds   reporter.Credentials
}

// NewValidatePurchaseCommand creates the validate-purchase command.
func NewValidatePurchaseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidatePurchaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate-purchase",
		Short: "Send a purchase receipt to the receipt validator",
		Long: `Send a store purchase to the receipt validator, tagged with the
current affiliate identifier when one resolves.

Example:
  reflink validate-purchase --subscription-id monthly --purchase-id GPA.1 \
    --token tok --app-name acme-app --secret-key s3cret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, cmd, reporter.OpValidatePurchase, func(c reportClient, done func(reporter.Outcome)) {
				c.ValidatePurchase(opts.Receipt, opts.Creds, done)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Receipt.SubscriptionID, "subscription-id", "", "store product or subscription id")
	cmd.Flags().StringVar(&opts.Receipt.PurchaseID, "purchase-id", "", "store order id")
	cmd.Flags().StringVar(&opts.Receipt.PurchaseToken, "token", "", "store purchase token")
	cmd.Flags().StringVar(&opts.Receipt.Receipt, "receipt", "", "original receipt JSON")
	cmd.Flags().StringVar(&opts.Receipt.Signature, "signature", "", "receipt signature")
	cmd.Flags().StringVar(&opts.Creds.AppName, "app-name", "", "validator application name")
	cmd.Flags().StringVar(&opts.Creds.SecretKey, "secret-key", "", "validator secret key")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

// reportClient is the part of the client the reporting commands use.
type reportClient interface {
	TrackEvent(eventName string, done func(reporter.Outcome))
	StoreExpectedTransaction(purchaseToken string, done func(reporter.Outcome))
	ValidatePurchase(receipt reporter.Receipt, creds reporter.Credentials, done func(reporter.Outcome))
}

func runReport(opts *RootOptions, cmd *cobra.Command, operation string, call func(reportClient, func(reporter.Outcome))) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ch := make(chan reporter.Outcome, 1)
	call(client, func(o reporter.Outcome) { ch <- o })
	return out.Outcome(operation, <-ch)
}
