// Package directory talks to the affiliate backend: affiliate existence
// checks, deep-link shortening and offer-code lookup.
//
// Every method is blocking and resolves to a value or absence. Transport
// failures, non-200 statuses and malformed bodies are logged and never
// returned to the caller.
package directory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/reflink/internal/metrics"
	"github.com/roach88/reflink/internal/shortcode"
	"github.com/roach88/reflink/internal/wire"
)

// DefaultBaseURL is the production affiliate backend.
const DefaultBaseURL = "https://api.insertaffiliate.com"

// Operation names used in logs and metrics.
const (
	OpCheckAffiliate = "check_affiliate"
	OpShortenLink    = "shorten_deep_link"
	OpFetchOfferCode = "fetch_offer_code"
)

// offerCodeSentinels mark a 200 body that actually means "no offer code".
var offerCodeSentinels = []string{
	"errorofferCodeNotFound",
	"errorAffiliateoffercodenotfoundinanycompany",
	"errorAffiliateoffercodenotfoundinanycompanyAffiliatelinkwas",
	"Routenotfound",
}

// AffiliateDetails describes an affiliate confirmed by the backend.
type AffiliateDetails struct {
	Name        string `json:"name"`
	ShortCode   string `json:"short_code"`
	DeeplinkURL string `json:"deeplink_url"`
}

// Client is the affiliate backend client.
type Client struct {
	baseURL string
	caller  *wire.Caller
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.caller.HTTP = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCallIDs replaces the UUIDv7 call id generator.
func WithCallIDs(next func() string) Option {
	return func(c *Client) { c.caller.NewID = next }
}

// New returns a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  &wire.Caller{HTTP: &http.Client{Timeout: wire.DefaultTimeout}},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.caller.Logger = c.logger
	return c
}

// CheckAffiliateExists asks the backend whether code is a known affiliate
// short code for company. The code is uppercased and validated locally
// first; an invalid code or empty company never reaches the network.
func (c *Client) CheckAffiliateExists(ctx context.Context, company, code string) (AffiliateDetails, bool) {
	if company == "" {
		c.logger.Error("cannot check affiliate: company code is not set")
		metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeLocalFail, 0)
		return AffiliateDetails{}, false
	}
	normalized, err := shortcode.Normalize(code)
	if err != nil {
		c.logger.Error("invalid short code", "code", code, "error", err)
		metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeLocalFail, 0)
		return AffiliateDetails{}, false
	}

	resp, err := c.caller.Do(ctx, wire.Request{
		Operation: OpCheckAffiliate,
		Method:    http.MethodPost,
		URL:       c.baseURL + wire.PathCheckAffiliate,
		Body: wire.CheckAffiliateRequest{
			CompanyID:     company,
			AffiliateCode: normalized,
		}.Object(),
	})
	if err != nil {
		c.logger.Error("affiliate check failed", "call_id", resp.CallID, "error", err)
		metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeError, resp.Elapsed)
		return AffiliateDetails{}, false
	}
	if resp.Status != http.StatusOK {
		c.logger.Error("affiliate check rejected", "call_id", resp.CallID, "status", resp.Status)
		metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeFailure, resp.Elapsed)
		return AffiliateDetails{}, false
	}

	var body wire.CheckAffiliateResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		c.logger.Error("affiliate check returned malformed body", "call_id", resp.CallID, "error", err)
		metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeError, resp.Elapsed)
		return AffiliateDetails{}, false
	}
	if !body.Exists || body.Affiliate == nil {
		c.logger.Info("short code does not exist", "code", normalized)
		metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeAbsent, resp.Elapsed)
		return AffiliateDetails{}, false
	}

	details := AffiliateDetails{
		Name:        body.Affiliate.AffiliateName,
		ShortCode:   body.Affiliate.AffiliateShortCode,
		DeeplinkURL: body.Affiliate.DeeplinkURL,
	}
	if details.ShortCode == "" {
		details.ShortCode = normalized
	}
	c.logger.Info("short code exists", "code", normalized, "affiliate", details.Name)
	metrics.ObserveRequest(OpCheckAffiliate, metrics.OutcomeSuccess, resp.Elapsed)
	return details, true
}

// ShortenDeepLink converts longLink into the backend's short link. On any
// failure the original longLink is returned unchanged.
func (c *Client) ShortenDeepLink(ctx context.Context, company, longLink string) string {
	if company == "" || longLink == "" {
		c.logger.Error("cannot shorten deep link: company code or link is empty")
		metrics.ObserveRequest(OpShortenLink, metrics.OutcomeLocalFail, 0)
		return longLink
	}

	q := url.Values{}
	q.Set("companyId", company)
	q.Set("deepLinkUrl", longLink)

	resp, err := c.caller.Do(ctx, wire.Request{
		Operation: OpShortenLink,
		Method:    http.MethodGet,
		URL:       c.baseURL + wire.PathShortenDeepLink + "?" + q.Encode(),
	})
	if err != nil {
		c.logger.Error("shorten deep link failed", "call_id", resp.CallID, "error", err)
		metrics.ObserveRequest(OpShortenLink, metrics.OutcomeError, resp.Elapsed)
		return longLink
	}
	if resp.Status != http.StatusOK {
		c.logger.Error("shorten deep link rejected", "call_id", resp.CallID, "status", resp.Status)
		metrics.ObserveRequest(OpShortenLink, metrics.OutcomeFailure, resp.Elapsed)
		return longLink
	}

	var body wire.ShortLinkResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.ShortLink == "" {
		c.logger.Error("unexpected shorten response", "call_id", resp.CallID, "body", string(resp.Body))
		metrics.ObserveRequest(OpShortenLink, metrics.OutcomeAbsent, resp.Elapsed)
		return longLink
	}

	c.logger.Info("short link received", "short_link", body.ShortLink)
	metrics.ObserveRequest(OpShortenLink, metrics.OutcomeSuccess, resp.Elapsed)
	return body.ShortLink
}

// FetchOfferCode returns the sanitized offer code for referral. Sentinel
// bodies, non-200 statuses, transport errors and bodies that sanitize to
// nothing all report absence.
func (c *Client) FetchOfferCode(ctx context.Context, company, referral string) (string, bool) {
	if company == "" {
		c.logger.Error("cannot fetch offer code: company code is not set")
		metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeLocalFail, 0)
		return "", false
	}
	if referral == "" {
		c.logger.Error("cannot fetch offer code: affiliate link is empty")
		metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeLocalFail, 0)
		return "", false
	}

	endpoint := c.baseURL + wire.PathOfferCodePrefix +
		url.PathEscape(company) + "/" + url.QueryEscape(referral) +
		"?platformType=" + wire.OfferPlatform

	resp, err := c.caller.Do(ctx, wire.Request{
		Operation: OpFetchOfferCode,
		Method:    http.MethodGet,
		URL:       endpoint,
	})
	if err != nil {
		c.logger.Error("fetch offer code failed", "call_id", resp.CallID, "error", err)
		metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeError, resp.Elapsed)
		return "", false
	}
	if resp.Status != http.StatusOK {
		c.logger.Error("fetch offer code rejected", "call_id", resp.CallID, "status", resp.Status)
		metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeFailure, resp.Elapsed)
		return "", false
	}

	raw := string(resp.Body)
	for _, sentinel := range offerCodeSentinels {
		if strings.Contains(raw, sentinel) {
			c.logger.Info("offer code not found", "call_id", resp.CallID, "reason", sentinel)
			metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeAbsent, resp.Elapsed)
			return "", false
		}
	}

	code := shortcode.SanitizeOfferCode(raw)
	if code == "" {
		c.logger.Info("offer code empty after sanitizing", "call_id", resp.CallID)
		metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeAbsent, resp.Elapsed)
		return "", false
	}

	c.logger.Info("offer code received", "offer_code", code)
	metrics.ObserveRequest(OpFetchOfferCode, metrics.OutcomeSuccess, resp.Elapsed)
	return code, true
}
