package attribution

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Policy controls how long a stored referral keeps attributing.
type Policy struct {
	// ActiveTimeSeconds is the attribution window. Zero or less means
	// attribution never expires.
	ActiveTimeSeconds int64
}

// Expires reports whether the policy has a finite window.
func (p Policy) Expires() bool {
	return p.ActiveTimeSeconds > 0
}

// Window returns the attribution window, or zero when unlimited.
func (p Policy) Window() time.Duration {
	if !p.Expires() {
		return 0
	}
	return time.Duration(p.ActiveTimeSeconds) * time.Second
}

// Session holds the company code and policy of one app session.
// The zero value is not usable; call NewSession.
type Session struct {
	mu          sync.RWMutex
	companyCode string
	policy      Policy
	logger      *slog.Logger
}

// NewSession returns an uninitialized session.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{logger: logger}
}

// Initialize sets the company code and policy. Initializing an already
// initialized session logs a warning and keeps the existing values.
func (s *Session) Initialize(companyCode string, policy Policy) error {
	if companyCode == "" {
		return ErrCompanyCodeRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.companyCode != "" {
		s.logger.Warn("SDK is already initialized with a company code",
			"company_code", s.companyCode, "ignored", companyCode)
		return nil
	}
	s.companyCode = companyCode
	s.policy = policy
	s.logger.Info("SDK initialized", "company_code", companyCode,
		"attribution_active_time_seconds", policy.ActiveTimeSeconds)
	return nil
}

// Reset clears the company code and policy. Stored attribution and the
// device identity are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companyCode = ""
	s.policy = Policy{}
	s.logger.Info("SDK has been reset")
}

// CompanyCode returns the company code, if initialized.
func (s *Session) CompanyCode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyCode, s.companyCode != ""
}

// Policy returns the current attribution policy.
func (s *Session) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}
