package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/roach88/reflink"
	"github.com/roach88/reflink/internal/directory"
	"github.com/roach88/reflink/internal/identity"
	"github.com/roach88/reflink/internal/ingest"
	"github.com/roach88/reflink/internal/reporter"
	"github.com/roach88/reflink/internal/store"
	"github.com/roach88/reflink/internal/stub"
	"github.com/roach88/reflink/internal/testutil"
)

// Harness is the scenario execution engine.
// Each run gets fresh fake backends, a fresh in-memory store and a frozen
// clock, so results are reproducible.
type Harness struct {
	scenario *Scenario
	client   *reflink.Client
	backend  *stub.Server
	kv       *store.Memory
	clock    *testutil.FakeClock
	observer *testutil.RecordingObserver
	logger   *slog.Logger
}

// stepOutcome is what a step produced. fields go to the trace; message is
// only used for expect matching since it can carry addresses.
type stepOutcome struct {
	fields  map[string]any
	message string
}

// Option configures a harness run.
type Option func(*Harness)

// WithLogger routes client and backend logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Start the fake backends seeded from the scenario
//  2. Build a client over an in-memory store and fake clock
//  3. Execute each step, waiting for its asynchronous work
//  4. Evaluate assertions
//  5. Capture notifications and persisted state
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	scenario.applyDefaults()
	h := &Harness{
		scenario: scenario,
		kv:       store.NewMemory(),
		clock:    testutil.NewFakeClockUnix(scenario.StartUnix),
		observer: testutil.NewRecordingObserver(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.backend = stub.New(scenario.Seed, stub.WithLogger(h.logger))
	srv := httptest.NewServer(h.backend.Handler())
	defer srv.Close()

	clientOpts := reflink.Options{
		Store:        h.kv,
		AffiliateURL: srv.URL,
		ValidatorURL: srv.URL,
		HTTPClient:   srv.Client(),
		Logger:       h.logger,
		Now:          h.clock.Now,
		DeviceID:     identity.StaticSource(scenario.DeviceID),
		InsertLinks:  scenario.InsertLinks,
	}
	if scenario.Referrer != "" {
		clientOpts.Referrer = ingest.StaticReferrer(scenario.Referrer)
	}
	client, err := reflink.New(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	defer client.Close()
	h.client = client
	client.SetIdentifierObserver(h.observer.Observe)

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, err := h.execute(step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Action, err)
		}
		client.Wait()

		result.AddTrace(step.Action, step.Args, outcome.fields)
		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, outcome) {
				result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Action, msg))
			}
		}
	}

	result.Notifications = append(result.Notifications, h.observer.Values()...)

	entries, err := h.kv.Dump(context.Background())
	if err != nil {
		return nil, fmt.Errorf("dump state: %w", err)
	}
	for _, e := range entries {
		result.State[e.Key] = e.Value
	}

	for i, assertion := range scenario.Assertions {
		if err := evaluateAssertion(assertion, result, h.backend); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return result, nil
}

// execute runs one step. Callbacks are collected through buffered channels
// that are read after the step's work completes.
func (h *Harness) execute(step Step) (stepOutcome, error) {
	args := step.Args
	c := h.client

	switch step.Action {
	case ActionInitialize:
		code := h.scenario.CompanyCode
		if v, ok := args["company_code"]; ok {
			s, err := asString(v)
			if err != nil {
				return stepOutcome{}, fmt.Errorf("company_code: %w", err)
			}
			code = s
		}
		policy := reflink.Policy{ActiveTimeSeconds: h.scenario.Policy.ActiveTimeSeconds}
		if _, ok := args["active_time_seconds"]; ok {
			secs, err := argInt(args, "active_time_seconds")
			if err != nil {
				return stepOutcome{}, err
			}
			policy.ActiveTimeSeconds = int64(secs)
		}
		if err := c.Initialize(code, policy); err != nil {
			return stepOutcome{fields: map[string]any{"ok": false}, message: err.Error()}, nil
		}
		return stepOutcome{fields: map[string]any{"ok": true}}, nil

	case ActionReset:
		c.Reset()
		return stepOutcome{}, nil

	case ActionSetLink:
		link, err := argString(args, "link")
		if err != nil {
			return stepOutcome{}, err
		}
		type linkResult struct {
			value string
			err   error
		}
		ch := make(chan linkResult, 1)
		c.SetIdentifierFromLink(link, func(v string, e error) { ch <- linkResult{v, e} })
		r := <-ch
		if r.err != nil {
			return stepOutcome{fields: map[string]any{"ok": false}, message: r.err.Error()}, nil
		}
		return stepOutcome{fields: map[string]any{"ok": true, "value": r.value}}, nil

	case ActionSetShortCode:
		code, err := argString(args, "code")
		if err != nil {
			return stepOutcome{}, err
		}
		ch := make(chan bool, 1)
		c.SetShortCode(code, func(valid bool) { ch <- valid })
		return stepOutcome{fields: map[string]any{"ok": <-ch}}, nil

	case ActionResolve:
		ignore := false
		if _, ok := args["ignore_timeout"]; ok {
			b, err := argBool(args, "ignore_timeout")
			if err != nil {
				return stepOutcome{}, err
			}
			ignore = b
		}
		id, ok := c.Identifier(ignore)
		return presence(id, ok), nil

	case ActionAdvance:
		secs, err := argInt(args, "seconds")
		if err != nil {
			return stepOutcome{}, err
		}
		now := h.clock.Advance(time.Duration(secs) * time.Second)
		return stepOutcome{fields: map[string]any{"now": now.Unix()}}, nil

	case ActionTrackEvent:
		name, err := argString(args, "event")
		if err != nil {
			return stepOutcome{}, err
		}
		ch := make(chan reporter.Outcome, 1)
		c.TrackEvent(name, func(o reporter.Outcome) { ch <- o })
		return reported(<-ch), nil

	case ActionStoreTransaction:
		token, err := argString(args, "token")
		if err != nil {
			return stepOutcome{}, err
		}
		ch := make(chan reporter.Outcome, 1)
		c.StoreExpectedTransaction(token, func(o reporter.Outcome) { ch <- o })
		return reported(<-ch), nil

	case ActionValidatePurchase:
		receipt := reporter.Receipt{
			SubscriptionID: optString(args, "subscription_id"),
			PurchaseID:     optString(args, "purchase_id"),
			PurchaseToken:  optString(args, "token"),
			Receipt:        optString(args, "receipt"),
			Signature:      optString(args, "signature"),
		}
		creds := reporter.Credentials{
			AppName:   optString(args, "app_name"),
			SecretKey: optString(args, "secret_key"),
		}
		ch := make(chan reporter.Outcome, 1)
		c.ValidatePurchase(receipt, creds, func(o reporter.Outcome) { ch <- o })
		return reported(<-ch), nil

	case ActionOfferCode:
		link, err := argString(args, "link")
		if err != nil {
			return stepOutcome{}, err
		}
		type offer struct {
			code string
			ok   bool
		}
		ch := make(chan offer, 1)
		c.FetchOfferCode(link, func(code string, ok bool) { ch <- offer{code, ok} })
		r := <-ch
		return presence(r.code, r.ok), nil

	case ActionAffiliateDetails:
		code, err := argString(args, "code")
		if err != nil {
			return stepOutcome{}, err
		}
		type details struct {
			d  directory.AffiliateDetails
			ok bool
		}
		ch := make(chan details, 1)
		c.AffiliateDetails(code, func(d directory.AffiliateDetails, ok bool) { ch <- details{d, ok} })
		r := <-ch
		if !r.ok {
			return stepOutcome{fields: map[string]any{"ok": false}}, nil
		}
		return stepOutcome{fields: map[string]any{"ok": true, "value": r.d.Name}}, nil

	case ActionInstallReferrer:
		raw, err := argString(args, "referrer")
		if err != nil {
			return stepOutcome{}, err
		}
		c.HandleInstallReferrer(raw)
		return stepOutcome{}, nil

	case ActionDeepLink:
		uri, err := argString(args, "uri")
		if err != nil {
			return stepOutcome{}, err
		}
		c.HandleDeepLink(uri)
		return stepOutcome{}, nil

	case ActionForceStatus:
		route, err := argString(args, "route")
		if err != nil {
			return stepOutcome{}, err
		}
		status, err := argInt(args, "status")
		if err != nil {
			return stepOutcome{}, err
		}
		h.backend.ForceStatus(route, status)
		return stepOutcome{}, nil

	case ActionDropConnections:
		route, err := argString(args, "route")
		if err != nil {
			return stepOutcome{}, err
		}
		drop := true
		if _, ok := args["drop"]; ok {
			if drop, err = argBool(args, "drop"); err != nil {
				return stepOutcome{}, err
			}
		}
		h.backend.DropConnections(route, drop)
		return stepOutcome{}, nil
	}

	return stepOutcome{}, fmt.Errorf("unknown action %q", step.Action)
}

func presence(value string, ok bool) stepOutcome {
	if !ok {
		return stepOutcome{fields: map[string]any{"present": false}}
	}
	return stepOutcome{fields: map[string]any{"present": true, "value": value}}
}

// reported records status and code only; transport error text carries the
// ephemeral server address.
func reported(o reporter.Outcome) stepOutcome {
	fields := map[string]any{"status": o.Status.String()}
	if o.Code != 0 {
		fields["code"] = o.Code
	}
	return stepOutcome{fields: fields, message: o.Message}
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing arg %q", key)
	}
	s, err := asString(v)
	if err != nil {
		return "", fmt.Errorf("arg %q: %w", key, err)
	}
	return s, nil
}

func optString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func argInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing arg %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, fmt.Errorf("arg %q: expected integer, got %T", key, v)
}

func argBool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("missing arg %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("arg %q: expected bool, got %T", key, v)
	}
	return b, nil
}
