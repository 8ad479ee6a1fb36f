// Package reflink is an affiliate attribution client.
//
// It stores the referral a user arrived with, resolves it together with a
// short device identity into an affiliate identifier, and reports events,
// expected transactions and purchase receipts against that identifier.
//
// Every method that talks to a backend returns immediately and delivers
// its result to a callback on a background goroutine. Local reads are
// synchronous.
package reflink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/reflink/internal/attribution"
	"github.com/roach88/reflink/internal/config"
	"github.com/roach88/reflink/internal/directory"
	"github.com/roach88/reflink/internal/identity"
	"github.com/roach88/reflink/internal/ingest"
	"github.com/roach88/reflink/internal/notify"
	"github.com/roach88/reflink/internal/reporter"
	"github.com/roach88/reflink/internal/store"
)

// Policy controls how long a stored referral keeps attributing.
type Policy = attribution.Policy

// Options wires a Client. Only Store is required.
type Options struct {
	Store store.KV
	// CloseStore is called by Client.Close.
	CloseStore func() error

	AffiliateURL string
	ValidatorURL string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	// Now replaces the wall clock.
	Now func() time.Time
	// CallIDs replaces the per-request correlation id generator.
	CallIDs func() string

	// DeviceID supplies the platform device identifier.
	DeviceID identity.Source
	// Referrer supplies the install referrer captured by Initialize when
	// InsertLinks is set.
	Referrer    ingest.ReferrerSource
	InsertLinks bool
	// RawIdentifiers sends tracked event identifiers without query escaping.
	RawIdentifiers bool
}

// New returns a Client wired from opts.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("reflink: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	dirOpts := []directory.Option{directory.WithHTTPClient(hc), directory.WithLogger(logger)}
	repOpts := []reporter.Option{
		reporter.WithHTTPClient(hc),
		reporter.WithLogger(logger),
		reporter.WithNow(now),
		reporter.WithValidatorURL(opts.ValidatorURL),
		reporter.WithIdentifierEncoding(!opts.RawIdentifiers),
	}
	if opts.CallIDs != nil {
		dirOpts = append(dirOpts, directory.WithCallIDs(opts.CallIDs))
		repOpts = append(repOpts, reporter.WithCallIDs(opts.CallIDs))
	}

	idOpts := []identity.Option{identity.WithLogger(logger)}
	if opts.DeviceID != nil {
		idOpts = append(idOpts, identity.WithSource(opts.DeviceID))
	}

	c := &Client{
		kv:          opts.Store,
		closeStore:  opts.CloseStore,
		logger:      logger,
		session:     attribution.NewSession(logger),
		ids:         identity.New(opts.Store, idOpts...),
		dir:         directory.New(opts.AffiliateURL, dirOpts...),
		rep:         reporter.New(opts.AffiliateURL, repOpts...),
		notifier:    notify.New(notify.WithLogger(logger)),
		referrer:    opts.Referrer,
		insertLinks: opts.InsertLinks,
	}
	c.resolver = attribution.NewResolver(c.session, c.kv, c.dir, c.ids, c.notifier,
		attribution.WithLogger(logger), attribution.WithNow(now))
	c.ingestor = ingest.Ingestor{Target: c.resolver, Logger: logger}
	return c, nil
}

// NewFromConfig opens the store cfg selects and returns a Client over it.
// Fields already set in opts take precedence over cfg.
func NewFromConfig(cfg config.Config, opts Options) (*Client, error) {
	if opts.Store == nil {
		kv, closeStore, err := OpenStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		opts.Store = kv
		opts.CloseStore = closeStore
	}
	if opts.AffiliateURL == "" {
		opts.AffiliateURL = cfg.Endpoints.Affiliate
	}
	if opts.ValidatorURL == "" {
		opts.ValidatorURL = cfg.Endpoints.Validator
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	if opts.DeviceID == nil && cfg.DeviceIDPath != "" {
		opts.DeviceID = identity.MachineIDSource{Path: cfg.DeviceIDPath}
	}
	opts.InsertLinks = opts.InsertLinks || cfg.InsertLinks

	c, err := New(opts)
	if err != nil && opts.CloseStore != nil {
		_ = opts.CloseStore()
	}
	return c, err
}

// OpenStore opens the key-value backend described by cfg. The returned
// function releases it.
func OpenStore(cfg config.Store) (store.KV, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case config.BackendRedis:
		client, err := store.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisKV(client, cfg.Profile), client.Close, nil
	case config.BackendSQLite, "":
		s, err := store.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store %s: %w", cfg.Path, err)
		}
		return s.Namespace(cfg.Profile), s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
