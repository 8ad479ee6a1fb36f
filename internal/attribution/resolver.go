// Package attribution combines the device identity and the stored referral
// into the affiliate identifier, and owns every write to the referral.
//
// A referral store is one critical section: read the previous value, write
// the new one, move the set-at time only when the value changed, queue the
// change notification and start the offer-code refresh. Concurrent stores
// are ordered by lock acquisition, and the last one to acquire the lock is
// the value that stays.
package attribution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/reflink/internal/directory"
	"github.com/roach88/reflink/internal/metrics"
	"github.com/roach88/reflink/internal/shortcode"
	"github.com/roach88/reflink/internal/store"
)

// Separator joins the referral value and the device identity.
const Separator = "-"

// Directory is the subset of the affiliate backend the resolver calls.
type Directory interface {
	CheckAffiliateExists(ctx context.Context, company, code string) (directory.AffiliateDetails, bool)
	ShortenDeepLink(ctx context.Context, company, longLink string) string
	FetchOfferCode(ctx context.Context, company, referral string) (string, bool)
}

// Identity reads the device identity.
type Identity interface {
	Get(ctx context.Context) (string, bool, error)
}

// Notifier queues identifier change notifications.
type Notifier interface {
	Notify(identifier string, present bool) bool
}

// Resolver is the attribution state machine of one session.
type Resolver struct {
	session  *Session
	kv       store.KV
	dir      Directory
	identity Identity
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes referral stores and offer-code writes.
	mu        sync.Mutex
	refreshes sync.WaitGroup
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithNow sets the wall clock used for set-at times and expiry.
func WithNow(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver returns a resolver over kv for session.
func NewResolver(session *Session, kv store.KV, dir Directory, ids Identity, notifier Notifier, opts ...Option) *Resolver {
	r := &Resolver{
		session:  session,
		kv:       kv,
		dir:      dir,
		identity: ids,
		notifier: notifier,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetIdentifierFromLink stores a referral from a link or code. Short codes
// are stored as given; anything else is shortened by the backend first,
// falling back to the raw value. It returns the value that was stored.
func (r *Resolver) SetIdentifierFromLink(ctx context.Context, raw string) (string, error) {
	company, ok := r.session.CompanyCode()
	if !ok {
		r.logger.Error("cannot set affiliate identifier", "error", ErrNotInitialized)
		return "", ErrNotInitialized
	}
	if raw == "" {
		return "", ErrEmptyLink
	}

	value := raw
	if shortcode.IsShortCode(raw) {
		r.logger.Debug("referral is a short code, storing directly", "value", raw)
	} else {
		value = r.dir.ShortenDeepLink(ctx, company, raw)
		r.logger.Debug("referral link shortened", "link", raw, "stored", value)
	}

	if err := r.storeReferral(ctx, company, value); err != nil {
		return "", err
	}
	return value, nil
}

// SetShortCode validates candidate, confirms it with the backend and stores
// the uppercased code. Nothing is stored on any failure.
func (r *Resolver) SetShortCode(ctx context.Context, candidate string) error {
	company, ok := r.session.CompanyCode()
	if !ok {
		r.logger.Error("cannot set short code", "error", ErrNotInitialized)
		return ErrNotInitialized
	}

	code, err := shortcode.Normalize(candidate)
	if err != nil {
		r.logger.Info("rejected short code", "candidate", candidate, "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidShortCode, err)
	}

	if _, exists := r.dir.CheckAffiliateExists(ctx, company, code); !exists {
		r.logger.Info("short code does not exist", "code", code)
		return fmt.Errorf("%w: %s", ErrAffiliateNotFound, code)
	}

	return r.storeReferral(ctx, company, code)
}

// AffiliateDetails looks up an affiliate by short code.
func (r *Resolver) AffiliateDetails(ctx context.Context, code string) (directory.AffiliateDetails, bool) {
	company, ok := r.session.CompanyCode()
	if !ok {
		r.logger.Error("cannot look up affiliate", "error", ErrNotInitialized)
		return directory.AffiliateDetails{}, false
	}
	return r.dir.CheckAffiliateExists(ctx, company, code)
}

// FetchOfferCode fetches the offer code for link. When link is the current
// referral the result also replaces the cached offer code.
func (r *Resolver) FetchOfferCode(ctx context.Context, link string) (string, bool) {
	company, ok := r.session.CompanyCode()
	if !ok {
		r.logger.Error("cannot fetch offer code", "error", ErrNotInitialized)
		return "", false
	}
	code, found := r.dir.FetchOfferCode(ctx, company, link)
	r.cacheOfferCode(ctx, link, code)
	return code, found
}

// ResolveIdentifier returns the affiliate identifier, referral value and
// device identity joined by Separator. An expired attribution resolves to
// nothing unless ignoreTimeout is set.
func (r *Resolver) ResolveIdentifier(ctx context.Context, ignoreTimeout bool) (string, bool) {
	referral, ok, err := r.kv.GetString(ctx, store.KeyReferral)
	if err != nil {
		r.logger.Error("read referral", "error", err)
		return "", false
	}
	if !ok || referral == "" {
		return "", false
	}
	if !ignoreTimeout && r.session.Policy().Expires() && !r.IsAttributionValid(ctx) {
		r.logger.Info("attribution has expired")
		return "", false
	}

	device, ok, err := r.identity.Get(ctx)
	if err != nil {
		r.logger.Error("read device identity", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return referral + Separator + device, true
}

// IsAttributionValid reports whether the stored referral is inside the
// policy window. Always true for an unlimited policy; false when no set-at
// time is stored.
func (r *Resolver) IsAttributionValid(ctx context.Context) bool {
	policy := r.session.Policy()
	if !policy.Expires() {
		return true
	}
	setAt, ok := r.StoredAt(ctx)
	if !ok {
		return false
	}
	elapsed := r.now().Unix() - setAt.Unix()
	return elapsed <= policy.ActiveTimeSeconds
}

// StoredAt returns when the current referral value was first stored.
func (r *Resolver) StoredAt(ctx context.Context) (time.Time, bool) {
	sec, ok, err := r.kv.GetInt64(ctx, store.KeyReferralSet)
	if err != nil {
		r.logger.Error("read referral set-at", "error", err)
		return time.Time{}, false
	}
	if !ok || sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

// StoredOfferCode returns the cached offer code of the current referral.
func (r *Resolver) StoredOfferCode(ctx context.Context) (string, bool) {
	code, ok, err := r.kv.GetString(ctx, store.KeyOfferCode)
	if err != nil {
		r.logger.Error("read offer code", "error", err)
		return "", false
	}
	return code, ok && code != ""
}

// Wait blocks until every offer-code refresh started so far has finished.
func (r *Resolver) Wait() {
	r.refreshes.Wait()
}

func (r *Resolver) storeReferral(ctx context.Context, company, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, had, err := r.kv.GetString(ctx, store.KeyReferral)
	if err != nil {
		return fmt.Errorf("read referral: %w", err)
	}
	changed := !had || previous != value

	if changed {
		if err := r.replaceReferral(ctx, value); err != nil {
			return err
		}
	} else if err := r.kv.SetString(ctx, store.KeyReferral, value); err != nil {
		return fmt.Errorf("store referral: %w", err)
	}
	metrics.ObserveReferralStored(changed)
	r.logger.Info("stored affiliate referral", "value", value, "changed", changed)

	identifier, present := r.ResolveIdentifier(ctx, true)
	r.notifier.Notify(identifier, present)

	r.refreshes.Add(1)
	go r.refreshOfferCode(context.WithoutCancel(ctx), company, value)
	return nil
}

// replaceReferral writes set-at before the value, so a failed value write
// leaves set-at describing the old referral again. Callers hold r.mu.
func (r *Resolver) replaceReferral(ctx context.Context, value string) error {
	prevSet, hadSet, err := r.kv.GetInt64(ctx, store.KeyReferralSet)
	if err != nil {
		return fmt.Errorf("read referral set-at: %w", err)
	}
	if err := r.kv.SetInt64(ctx, store.KeyReferralSet, r.now().Unix()); err != nil {
		return fmt.Errorf("store referral set-at: %w", err)
	}
	if err := r.kv.SetString(ctx, store.KeyReferral, value); err != nil {
		if hadSet {
			if rerr := r.kv.SetInt64(ctx, store.KeyReferralSet, prevSet); rerr != nil {
				r.logger.Error("restore referral set-at", "error", rerr)
			}
		}
		return fmt.Errorf("store referral: %w", err)
	}
	return nil
}

func (r *Resolver) refreshOfferCode(ctx context.Context, company, referral string) {
	defer r.refreshes.Done()

	code, ok := r.dir.FetchOfferCode(ctx, company, referral)
	if !ok {
		code = ""
	}
	r.cacheOfferCode(ctx, referral, code)
}

// cacheOfferCode writes code only while referral is still the stored value.
func (r *Resolver) cacheOfferCode(ctx context.Context, referral, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok, err := r.kv.GetString(ctx, store.KeyReferral)
	if err != nil {
		r.logger.Error("read referral", "error", err)
		return
	}
	if !ok || current != referral {
		r.logger.Debug("discarding offer code for superseded referral", "referral", referral)
		return
	}
	if err := r.kv.SetString(ctx, store.KeyOfferCode, code); err != nil {
		r.logger.Error("store offer code", "error", err)
		return
	}
	if code == "" {
		r.logger.Info("no offer code for referral", "referral", referral)
		return
	}
	r.logger.Info("stored offer code", "referral", referral, "offer_code", code)
}
