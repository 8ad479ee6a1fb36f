package reflink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/reflink/internal/attribution"
	"github.com/roach88/reflink/internal/directory"
	"github.com/roach88/reflink/internal/identity"
	"github.com/roach88/reflink/internal/ingest"
	"github.com/roach88/reflink/internal/notify"
	"github.com/roach88/reflink/internal/reporter"
	"github.com/roach88/reflink/internal/store"
)

// Client is one app session's attribution client. Safe for concurrent use.
type Client struct {
	kv         store.KV
	closeStore func() error
	logger     *slog.Logger

	session  *attribution.Session
	ids      *identity.Store
	dir      *directory.Client
	rep      *reporter.Client
	notifier *notify.Notifier
	resolver *attribution.Resolver
	ingestor ingest.Ingestor

	referrer    ingest.ReferrerSource
	insertLinks bool
	captureOnce sync.Once

	tasks     sync.WaitGroup
	closeOnce sync.Once
}

// Initialize sets the company code and policy and makes sure the device
// identity exists. Calling it again while initialized logs a warning and
// changes nothing.
func (c *Client) Initialize(companyCode string, policy Policy) error {
	_, already := c.session.CompanyCode()
	if err := c.session.Initialize(companyCode, policy); err != nil {
		return err
	}
	if already {
		return nil
	}

	ctx := context.Background()
	if _, err := c.ids.Ensure(ctx); err != nil {
		return err
	}

	if c.insertLinks && c.referrer != nil {
		c.captureOnce.Do(func() {
			c.spawn(func(ctx context.Context) {
				c.ingestor.Capture(ctx, c.referrer)
			})
		})
	}
	return nil
}

// Reset clears the company code. Stored attribution and the device
// identity are kept.
func (c *Client) Reset() {
	c.session.Reset()
}

// SetIdentifierObserver sets the function called with the affiliate
// identifier after every referral store. nil clears it.
func (c *Client) SetIdentifierObserver(fn func(identifier string)) {
	if fn == nil {
		c.notifier.SetObserver(nil)
		return
	}
	c.notifier.SetObserver(fn)
}

// SetIdentifierFromLink stores the referral carried by raw.
func (c *Client) SetIdentifierFromLink(raw string, done func(value string, err error)) {
	c.spawn(func(ctx context.Context) {
		value, err := c.resolver.SetIdentifierFromLink(ctx, raw)
		if done != nil {
			done(value, err)
		}
	})
}

// SetShortCode stores code if the backend knows the affiliate.
func (c *Client) SetShortCode(code string, done func(valid bool)) {
	c.spawn(func(ctx context.Context) {
		err := c.resolver.SetShortCode(ctx, code)
		if done != nil {
			done(err == nil)
		}
	})
}

// AffiliateDetails looks up an affiliate by short code.
func (c *Client) AffiliateDetails(code string, done func(directory.AffiliateDetails, bool)) {
	c.spawn(func(ctx context.Context) {
		details, ok := c.resolver.AffiliateDetails(ctx, code)
		if done != nil {
			done(details, ok)
		}
	})
}

// FetchOfferCode fetches the offer code for link.
func (c *Client) FetchOfferCode(link string, done func(code string, ok bool)) {
	c.spawn(func(ctx context.Context) {
		code, ok := c.resolver.FetchOfferCode(ctx, link)
		if done != nil {
			done(code, ok)
		}
	})
}

// TrackEvent reports eventName against the current affiliate identifier.
// An expired attribution fails locally.
func (c *Client) TrackEvent(eventName string, done func(reporter.Outcome)) {
	c.spawn(func(ctx context.Context) {
		company, _ := c.session.CompanyCode()
		identifier, _ := c.resolver.ResolveIdentifier(ctx, false)
		out := c.rep.TrackEvent(ctx, company, identifier, eventName)
		if done != nil {
			done(out)
		}
	})
}

// StoreExpectedTransaction announces a purchase token. It uses the last
// stored attribution even when it has expired.
func (c *Client) StoreExpectedTransaction(purchaseToken string, done func(reporter.Outcome)) {
	c.spawn(func(ctx context.Context) {
		company, _ := c.session.CompanyCode()
		identifier, _ := c.resolver.ResolveIdentifier(ctx, true)
		out := c.rep.StoreExpectedTransaction(ctx, company, identifier, purchaseToken)
		if done != nil {
			done(out)
		}
	})
}

// ValidatePurchase sends receipt to the receipt validator, tagged with the
// current affiliate identifier if one resolves.
func (c *Client) ValidatePurchase(receipt reporter.Receipt, creds reporter.Credentials, done func(reporter.Outcome)) {
	c.spawn(func(ctx context.Context) {
		identifier, _ := c.resolver.ResolveIdentifier(ctx, false)
		out := c.rep.ValidatePurchase(ctx, receipt, creds, identifier)
		if done != nil {
			done(out)
		}
	})
}

// HandleInstallReferrer stores the referral of an install-referrer payload.
func (c *Client) HandleInstallReferrer(raw string) {
	c.spawn(func(ctx context.Context) {
		c.ingestor.InstallReferrer(ctx, raw)
	})
}

// HandleDeepLink stores the referral of a deep-link URI.
func (c *Client) HandleDeepLink(uri string) {
	c.spawn(func(ctx context.Context) {
		c.ingestor.DeepLink(ctx, uri)
	})
}

// Identifier returns the affiliate identifier from local state.
func (c *Client) Identifier(ignoreTimeout bool) (string, bool) {
	return c.resolver.ResolveIdentifier(context.Background(), ignoreTimeout)
}

// DeviceIdentity returns the stored device identity.
func (c *Client) DeviceIdentity() (string, bool) {
	id, ok, err := c.ids.Get(context.Background())
	if err != nil {
		c.logger.Error("read device identity", "error", err)
		return "", false
	}
	return id, ok
}

// StoredOfferCode returns the cached offer code of the current referral.
func (c *Client) StoredOfferCode() (string, bool) {
	return c.resolver.StoredOfferCode(context.Background())
}

// AttributionStoredAt returns when the current referral was first stored.
func (c *Client) AttributionStoredAt() (time.Time, bool) {
	return c.resolver.StoredAt(context.Background())
}

// IsAttributionValid reports whether the current referral is inside the
// attribution window.
func (c *Client) IsAttributionValid() bool {
	return c.resolver.IsAttributionValid(context.Background())
}

// CompanyCode returns the company code, if initialized.
func (c *Client) CompanyCode() (string, bool) {
	return c.session.CompanyCode()
}

// Wait blocks until every call started so far has delivered its callback,
// its offer-code refresh has finished and its notifications have been
// dispatched.
func (c *Client) Wait() {
	c.tasks.Wait()
	c.resolver.Wait()
	c.notifier.Flush()
}

// Close waits for outstanding work, stops the notifier and releases the
// store.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.Wait()
		c.notifier.Close()
		if c.closeStore != nil {
			err = c.closeStore()
		}
	})
	return err
}

func (c *Client) spawn(task func(ctx context.Context)) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		task(context.Background())
	}()
}
