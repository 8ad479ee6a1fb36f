package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reflink/internal/attribution"
	"github.com/roach88/reflink/internal/shortcode"
)

// LinkData describes a stored referral.
type LinkData struct {
	Stored     string `json:"stored"`
	Identifier string `json:"identifier,omitempty"`
}

func (d LinkData) String() string {
	if d.Identifier == "" {
		return fmt.Sprintf("Stored %s", d.Stored)
	}
	return fmt.Sprintf("Stored %s (identifier %s)", d.Stored, d.Identifier)
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <referral-link>",
		Short: "Store a referral link",
		Long: `Store the referral carried by a link.

Short codes are stored as given. Any other link is sent to the
shortening service first; if that fails the link is stored verbatim.

Example:
  reflink link "https://example.com/campaign?x=1"
  reflink link PROMO42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(rootOpts, args[0], cmd)
		},
	}
}

func runLink(opts *RootOptions, link string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	type stored struct {
		value string
		err   error
	}
	ch := make(chan stored, 1)
	client.SetIdentifierFromLink(link, func(v string, err error) { ch <- stored{v, err} })
	res := <-ch
	if res.err != nil {
		code := CodeConfig
		if errors.Is(res.err, attribution.ErrNotInitialized) || errors.Is(res.err, attribution.ErrEmptyLink) {
			code = CodePrecondition
		}
		_ = out.Error(code, res.err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to store referral", res.err)
	}

	identifier, _ := client.Identifier(true)
	return out.Success(LinkData{Stored: res.value, Identifier: identifier})
}

// NewShortCodeCommand creates the short-code command.
func NewShortCodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "short-code <code>",
		Short: "Store an affiliate short code after confirming it exists",
		Long: `Store an affiliate short code.

The code must be 3 to 25 letters or digits. It is uppercased and
confirmed with the affiliate directory before it is stored.

Exit codes:
  0 - Code stored
  1 - Code invalid or unknown, nothing stored
  2 - Command error

Example:
  reflink short-code abc123XYZ9`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShortCode(rootOpts, args[0], cmd)
		},
	}
}

func runShortCode(opts *RootOptions, code string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	client, _, err := opts.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ch := make(chan bool, 1)
	client.SetShortCode(code, func(valid bool) { ch <- valid })
	if !<-ch {
		_ = out.Error(CodeNotFound, fmt.Sprintf("short code %q was not stored", code), nil)
		return NewExitError(ExitFailure, "short code rejected")
	}

	stored, _ := shortcode.Normalize(code)
	identifier, _ := client.Identifier(true)
	return out.Success(LinkData{Stored: stored, Identifier: identifier})
}
