package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reflink/internal/directory"
)

// IdentifierData is the locally stored attribution state.
type IdentifierData struct {
	Identifier     string `json:"identifier,omitempty"`
	Present        bool   `json:"present"`
	Valid          bool   `json:"valid"`
	StoredAt       string `json:"stored_at,omitempty"`
	OfferCode      string `json:"offer_code,omitempty"`
	DeviceIdentity string `json:"device_identity,omitempty"`
}

func (d IdentifierData) String() string {
	if !d.Present {
		return "No affiliate identifier"
	}
	var b strings.Builder
	b.WriteString(d.Identifier)
	if d.StoredAt != "" {
		fmt.Fprintf(&b, "\n  stored at: %s", d.StoredAt)
	}
	fmt.Fprintf(&b, "\n  valid: %t", d.Valid)
	if d.OfferCode != "" {
		fmt.Fprintf(&b, "\n  offer code: %s", d.OfferCode)
	}
	return b.String()
}

// IdentifierOptions holds flags for the identifier command.
type IdentifierOptions struct {
	*RootOptions
	IgnoreTimeout bool
}

// NewIdentifierCommand creates the identifier command.
func NewIdentifierCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IdentifierOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "identifier",
		Short: "Show the current affiliate identifier",
		Long: `Show the affiliate identifier built from the stored referral and the
device identity. Reads local state only.

Exit codes:
  0 - Identifier present
  1 - No identifier (none stored, or the attribution window has passed)

Example:
  reflink identifier
  reflink identifier --ignore-timeout --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentifier(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.IgnoreTimeout, "ignore-timeout", false, "resolve even when the attribution window has passed")

	return cmd
}

func runIdentifier(opts *IdentifierOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	identifier, present := client.Identifier(opts.IgnoreTimeout)
	data := IdentifierData{
		Identifier: identifier,
		Present:    present,
		Valid:      client.IsAttributionValid(),
	}
	if at, ok := client.AttributionStoredAt(); ok {
		data.StoredAt = at.UTC().Format(time.RFC3339)
	}
	if code, ok := client.StoredOfferCode(); ok {
		data.OfferCode = code
	}
	data.DeviceIdentity, _ = client.DeviceIdentity()

	if err := out.Success(data); err != nil {
		return err
	}
	if !present {
		return NewExitError(ExitFailure, "no affiliate identifier")
	}
	return nil
}

// AffiliateData describes an affiliate known to the directory.
type AffiliateData struct {
	Name        string `json:"name"`
	ShortCode   string `json:"short_code"`
	DeeplinkURL string `json:"deeplink_url,omitempty"`
}

func (d AffiliateData) String() string {
	if d.DeeplinkURL == "" {
		return fmt.Sprintf("%s (%s)", d.Name, d.ShortCode)
	}
	return fmt.Sprintf("%s (%s) %s", d.Name, d.ShortCode, d.DeeplinkURL)
}

// NewAffiliateCommand creates the affiliate command.
func NewAffiliateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "affiliate <short-code>",
		Short: "Look up an affiliate by short code",
		Long: `Look up an affiliate in the directory without storing anything.

Example:
  reflink affiliate ABC123XYZ9`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAffiliate(rootOpts, args[0], cmd)
		},
	}
}

func runAffiliate(opts *RootOptions, code string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	type lookup struct {
		data AffiliateData
		ok   bool
	}
	ch := make(chan lookup, 1)
	client.AffiliateDetails(code, func(d directory.AffiliateDetails, ok bool) {
		ch <- lookup{AffiliateData{Name: d.Name, ShortCode: d.ShortCode, DeeplinkURL: d.DeeplinkURL}, ok}
	})
	res := <-ch
	if !res.ok {
		_ = out.Error(CodeNotFound, fmt.Sprintf("affiliate %q not found", code), nil)
		return NewExitError(ExitFailure, "affiliate not found")
	}
	return out.Success(res.data)
}

// OfferCodeData is a fetched offer code.
type OfferCodeData struct {
	Link      string `json:"link"`
	OfferCode string `json:"offer_code"`
}

func (d OfferCodeData) String() string {
	return d.OfferCode
}

// NewOfferCodeCommand creates the offer-code command.
func NewOfferCodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "offer-code [referral]",
		Short: "Fetch the offer code of a referral",
		Long: `Fetch the offer code attached to a referral. Without an argument the
stored referral's cached offer code is shown instead.

Example:
  reflink offer-code PROMO42
  reflink offer-code`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			link := ""
			if len(args) == 1 {
				link = args[0]
			}
			return runOfferCode(rootOpts, link, cmd)
		},
	}
}

func runOfferCode(opts *RootOptions, link string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	var code string
	var ok bool
	if link == "" {
		code, ok = client.StoredOfferCode()
	} else {
		type offer struct {
			code string
			ok   bool
		}
		ch := make(chan offer, 1)
		client.FetchOfferCode(link, func(c string, found bool) { ch <- offer{c, found} })
		res := <-ch
		code, ok = res.code, res.ok
	}

	if !ok || code == "" {
		_ = out.Error(CodeNotFound, "no offer code", nil)
		return NewExitError(ExitFailure, "no offer code")
	}
	return out.Success(OfferCodeData{Link: link, OfferCode: code})
}
