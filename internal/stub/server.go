// Package stub serves fake affiliate and receipt-validator backends for
// local runs, scenario tests and client tests.
package stub

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/roach88/reflink/internal/metrics"
	"github.com/roach88/reflink/internal/wire"
)

// Route names, used for recorded requests and forced failures.
const (
	RouteShorten             = "shorten_deep_link"
	RouteCheckAffiliate      = "check_affiliate"
	RouteOfferCode           = "fetch_offer_code"
	RouteTrackEvent          = "track_event"
	RouteExpectedTransaction = "expected_transaction"
	RouteValidate            = "validate_purchase"
)

const offerCodeNotFound = "errorofferCodeNotFound"

// RecordedRequest is one request the stub received.
type RecordedRequest struct {
	Route     string
	Method    string
	URI       string
	Query     url.Values
	Body      string
	RequestID string
	Auth      string
}

// Server holds the fake backend state.
type Server struct {
	mu       sync.Mutex
	seed     Seed
	requests []RecordedRequest
	status   map[string]int
	drop     map[string]bool
	logger   *slog.Logger
	metrics  bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics mounts the Prometheus handler at /metrics.
func WithMetrics() Option {
	return func(s *Server) { s.metrics = true }
}

// New returns a stub serving seed.
func New(seed Seed, opts ...Option) *Server {
	s := &Server{
		seed:   seed,
		status: make(map[string]int),
		drop:   make(map[string]bool),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router for both backends.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(wire.PathShortenDeepLink, s.route(RouteShorten, s.shorten))
	r.Post(wire.PathCheckAffiliate, s.route(RouteCheckAffiliate, s.checkAffiliate))
	r.Get(wire.PathOfferCodePrefix+"{company}/{link}", s.route(RouteOfferCode, s.offerCode))
	r.Post(wire.PathTrackEvent, s.route(RouteTrackEvent, s.accept))
	r.Post(wire.PathExpectedTransaction, s.route(RouteExpectedTransaction, s.accept))
	r.Post(wire.PathValidateReceipt, s.route(RouteValidate, s.validate))

	if s.metrics {
		r.Handle("/metrics", metrics.Handler())
	}
	return r
}

// ForceStatus makes route answer with status and an empty JSON body.
// Status 0 restores normal handling.
func (s *Server) ForceStatus(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.status, route)
		return
	}
	s.status[route] = status
}

// DropConnections makes route close the connection without a response,
// which clients see as a transport error.
func (s *Server) DropConnections(route string, drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop[route] = drop
}

// Requests returns a copy of every recorded request in arrival order.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// RequestsFor returns the recorded requests of one route.
func (s *Server) RequestsFor(route string) []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecordedRequest
	for _, req := range s.requests {
		if req.Route == route {
			out = append(out, req)
		}
	}
	return out
}

// Count returns how many requests route has received.
func (s *Server) Count(route string) int {
	return len(s.RequestsFor(route))
}

// Reset clears recorded requests and forced behaviour.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.status = make(map[string]int)
	s.drop = make(map[string]bool)
}

func (s *Server) route(name string, next func(w http.ResponseWriter, r *http.Request, body []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(r.Body, wire.MaxResponseBytes))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Route:     name,
			Method:    r.Method,
			URI:       r.URL.RequestURI(),
			Query:     r.URL.Query(),
			Body:      string(body),
			RequestID: r.Header.Get(wire.HeaderRequestID),
			Auth:      r.Header.Get("Authorization"),
		})
		status, forced := s.status[name]
		drop := s.drop[name]
		s.mu.Unlock()

		s.logger.Debug("stub request", "route", name, "uri", r.URL.RequestURI())

		if drop {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if forced {
			writeJSON(w, status, map[string]any{})
			return
		}
		next(w, r, body)
	}
}

func (s *Server) shorten(w http.ResponseWriter, r *http.Request, _ []byte) {
	link := r.URL.Query().Get("deepLinkUrl")

	s.mu.Lock()
	short := s.seed.ShortLinks[link]
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, wire.ShortLinkResponse{ShortLink: short})
}

func (s *Server) checkAffiliate(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req wire.CheckAffiliateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.seed.Companies) > 0 && !slices.Contains(s.seed.Companies, req.CompanyID) {
		writeJSON(w, http.StatusOK, wire.CheckAffiliateResponse{Exists: false})
		return
	}
	for _, a := range s.seed.Affiliates {
		if strings.EqualFold(a.Code, req.AffiliateCode) {
			writeJSON(w, http.StatusOK, wire.CheckAffiliateResponse{
				Exists: true,
				Affiliate: &wire.AffiliateRecord{
					AffiliateName:      a.Name,
					AffiliateShortCode: strings.ToUpper(a.Code),
					DeeplinkURL:        a.DeeplinkURL,
				},
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, wire.CheckAffiliateResponse{Exists: false})
}

func (s *Server) offerCode(w http.ResponseWriter, r *http.Request, _ []byte) {
	link, err := url.QueryUnescape(chi.URLParam(r, "link"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	code, ok := s.seed.OfferCodes[link]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if !ok {
		_, _ = io.WriteString(w, offerCodeNotFound)
		return
	}
	_, _ = io.WriteString(w, `"`+code+`"`)
}

func (s *Server) accept(w http.ResponseWriter, _ *http.Request, _ []byte) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request, body []byte) {
	s.mu.Lock()
	creds := s.seed.Validator
	s.mu.Unlock()

	if creds != nil {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte(creds.AppName+":"+creds.SecretKey))
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "code": 6778003})
			return
		}
	}

	var req wire.ValidateReceiptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"data": map[string]any{
			"id":            req.ID,
			"transactionId": uuid.NewString(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
