// Package reporter sends tracked events and expected transactions to the
// affiliate backend and purchase receipts to the receipt validator.
//
// Each call sends at most one request and resolves to an Outcome. Missing
// company codes or identifiers fail locally.
package reporter

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/reflink/internal/metrics"
	"github.com/roach88/reflink/internal/wire"
)

// Default backend URLs.
const (
	DefaultAffiliateURL = "https://api.insertaffiliate.com"
	DefaultValidatorURL = "https://validator.iaptic.com"
)

// Operation names used in logs and metrics.
const (
	OpTrackEvent          = "track_event"
	OpExpectedTransaction = "expected_transaction"
	OpValidatePurchase    = "validate_purchase"
)

// Outcome messages.
const (
	MsgTrackSuccess      = "Track Event Success"
	MsgTransactionStored = "Expected transaction stored"
	MsgValidated         = "Success"
)

// Receipt holds the already-extracted fields of a store purchase.
type Receipt struct {
	SubscriptionID string
	PurchaseID     string
	PurchaseToken  string
	Receipt        string
	Signature      string
}

// Credentials authenticate against the receipt validator.
type Credentials struct {
	AppName   string
	SecretKey string
}

// BasicAuth returns the Authorization header value.
func (c Credentials) BasicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.AppName+":"+c.SecretKey))
}

// Client reports to both backends.
type Client struct {
	affiliateURL     string
	validatorURL     string
	caller           *wire.Caller
	logger           *slog.Logger
	now              func() time.Time
	encodeIdentifier bool
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

// WithValidatorURL sets the receipt validator base URL.
func WithValidatorURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.validatorURL = strings.TrimRight(u, "/")
		}
	}
}

// WithNow sets the clock used for transaction timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIdentifierEncoding controls whether tracked event identifiers are
// query-escaped before sending. Enabled by default.
func WithIdentifierEncoding(on bool) Option {
	return func(c *Client) { c.encodeIdentifier = on }
}

// New returns a reporter for the affiliate backend at affiliateURL.
func New(affiliateURL string, opts ...Option) *Client {
	if affiliateURL == "" {
		affiliateURL = DefaultAffiliateURL
	}
	c := &Client{
		affiliateURL:     strings.TrimRight(affiliateURL, "/"),
		validatorURL:     DefaultValidatorURL,
		caller:           &wire.Caller{HTTP: &http.Client{Timeout: wire.DefaultTimeout}},
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:              time.Now,
		encodeIdentifier: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.caller.Logger = c.logger
	return c
}

// TrackEvent records eventName against identifier.
func (c *Client) TrackEvent(ctx context.Context, company, identifier, eventName string) Outcome {
	if company == "" {
		c.logger.Error("cannot track event", "error", ErrCompanyCodeMissing)
		metrics.ObserveRequest(OpTrackEvent, metrics.OutcomeLocalFail, 0)
		return precondition(ErrCompanyCodeMissing)
	}
	if identifier == "" {
		c.logger.Info("cannot track event", "error", ErrIdentifierMissing)
		metrics.ObserveRequest(OpTrackEvent, metrics.OutcomeLocalFail, 0)
		return precondition(ErrIdentifierMissing)
	}

	param := identifier
	if c.encodeIdentifier {
		param = url.QueryEscape(identifier)
	}

	resp, err := c.caller.Do(ctx, wire.Request{
		Operation: OpTrackEvent,
		Method:    http.MethodPost,
		URL:       c.affiliateURL + wire.PathTrackEvent,
		Body: wire.TrackEventRequest{
			EventName:     eventName,
			CompanyID:     company,
			DeepLinkParam: param,
		}.Object(),
	})
	return c.classify(OpTrackEvent, resp, err, MsgTrackSuccess, func(code int) string {
		return fmt.Sprintf("Failed to track event with status code: %d", code)
	})
}

// StoreExpectedTransaction announces a purchase token so the backend can
// match the store's later webhook to identifier.
func (c *Client) StoreExpectedTransaction(ctx context.Context, company, identifier, purchaseToken string) Outcome {
	if company == "" {
		c.logger.Error("cannot store expected transaction", "error", ErrCompanyCodeMissing)
		metrics.ObserveRequest(OpExpectedTransaction, metrics.OutcomeLocalFail, 0)
		return precondition(ErrCompanyCodeMissing)
	}
	if identifier == "" {
		c.logger.Error("cannot store expected transaction", "error", ErrIdentifierMissing)
		metrics.ObserveRequest(OpExpectedTransaction, metrics.OutcomeLocalFail, 0)
		return precondition(ErrIdentifierMissing)
	}

	resp, err := c.caller.Do(ctx, wire.Request{
		Operation: OpExpectedTransaction,
		Method:    http.MethodPost,
		URL:       c.affiliateURL + wire.PathExpectedTransaction,
		Body: wire.ExpectedTransactionRequest{
			UUID:        purchaseToken,
			CompanyCode: company,
			ShortCode:   identifier,
			StoredDate:  c.now().UTC().Format(time.RFC3339Nano),
		}.Object(),
	})
	return c.classify(OpExpectedTransaction, resp, err, MsgTransactionStored, func(code int) string {
		return fmt.Sprintf("Failed to store expected transaction with status code: %d", code)
	})
}

// ValidatePurchase sends receipt to the validator. An empty identifier is
// leaves the application username out. Any non-200 answer is an error.
func (c *Client) ValidatePurchase(ctx context.Context, receipt Receipt, creds Credentials, identifier string) Outcome {
	resp, err := c.caller.Do(ctx, wire.Request{
		Operation: OpValidatePurchase,
		Method:    http.MethodPost,
		URL:       c.validatorURL + wire.PathValidateReceipt,
		Body: wire.ValidateReceiptRequest{
			ID:   receipt.SubscriptionID,
			Type: wire.ReceiptType,
			Transaction: wire.ReceiptTransaction{
				Type:          wire.TransactionType,
				ID:            receipt.PurchaseID,
				PurchaseToken: receipt.PurchaseToken,
				Receipt:       receipt.Receipt,
				Signature:     receipt.Signature,
			},
			AdditionalData: wire.AdditionalData{ApplicationUsername: identifier},
		}.Object(),
		Header: http.Header{"Authorization": []string{creds.BasicAuth()}},
	})
	out := c.classify(OpValidatePurchase, resp, err, MsgValidated, func(code int) string {
		return fmt.Sprintf("Receipt validation failed with status code: %d", code)
	})
	if out.Status == StatusFailure {
		out.Status = StatusError
	}
	return out
}

func (c *Client) classify(op string, resp wire.Response, err error, okMessage string, failMessage func(int) string) Outcome {
	if err != nil {
		c.logger.Error("request failed", "operation", op, "call_id", resp.CallID, "error", err)
		metrics.ObserveRequest(op, metrics.OutcomeError, resp.Elapsed)
		return transportError(err)
	}
	if resp.Status != http.StatusOK {
		msg := failMessage(resp.Status)
		c.logger.Error(msg, "operation", op, "call_id", resp.CallID, "body", string(resp.Body))
		metrics.ObserveRequest(op, metrics.OutcomeFailure, resp.Elapsed)
		return failure(resp.Status, msg)
	}
	c.logger.Info(okMessage, "operation", op, "call_id", resp.CallID)
	metrics.ObserveRequest(op, metrics.OutcomeSuccess, resp.Elapsed)
	return success(okMessage)
}
