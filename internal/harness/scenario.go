package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reflink/internal/stub"
)

// Scenario defines an attribution scenario.
// Steps drive a client against the fake backends; assertions check the
// notifications, backend traffic and persisted values afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// CompanyCode is used by initialize steps without a company_code arg.
	// Defaults to DefaultCompanyCode.
	CompanyCode string `yaml:"company_code,omitempty"`

	// DeviceID is the fixed device identity. Defaults to DefaultDeviceID.
	DeviceID string `yaml:"device_id,omitempty"`

	// StartUnix is the fake clock's starting time. Defaults to DefaultStartUnix.
	StartUnix int64 `yaml:"start_unix,omitempty"`

	// Policy is applied by initialize steps without an active_time_seconds arg.
	Policy PolicySpec `yaml:"policy,omitempty"`

	// InsertLinks enables the install-referrer capture on initialize.
	InsertLinks bool `yaml:"insert_links,omitempty"`

	// Referrer is the install referrer captured when InsertLinks is set.
	Referrer string `yaml:"referrer,omitempty"`

	// Seed populates the fake backends.
	Seed stub.Seed `yaml:"seed"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: notifications, request_count, stored_value
	Assertions []Assertion `yaml:"assertions"`
}

// PolicySpec configures the attribution window.
type PolicySpec struct {
	ActiveTimeSeconds int64 `yaml:"attribution_active_time_seconds"`
}

// Step is a single client operation or backend manipulation.
type Step struct {
	// Action names the operation (see the step constants).
	Action string `yaml:"action"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect validates the step result. If nil, nothing is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected step result. Only set fields are checked.
type Expect struct {
	OK      *bool   `yaml:"ok,omitempty"`
	Present *bool   `yaml:"present,omitempty"`
	Value   *string `yaml:"value,omitempty"`
	Status  string  `yaml:"status,omitempty"`
	Code    int     `yaml:"code,omitempty"`

	// Message is matched as a substring.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "notifications": observer received exactly Values, in order
	// - "request_count": Route received exactly Count requests
	// - "stored_value": Key holds Value, or is missing when Absent
	Type string `yaml:"type"`

	// Values are the expected notifications (used by notifications).
	Values []string `yaml:"values,omitempty"`

	// Route is a backend route name (used by request_count).
	Route string `yaml:"route,omitempty"`

	// Count is the expected number of requests (used by request_count).
	Count int `yaml:"count,omitempty"`

	// Key is a persisted key (used by stored_value).
	Key string `yaml:"key,omitempty"`

	// Value is the expected stored value (used by stored_value).
	Value string `yaml:"value,omitempty"`

	// Absent expects the key to be missing (used by stored_value).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertNotifications = "notifications"
	AssertRequestCount  = "request_count"
	AssertStoredValue   = "stored_value"
)

// Step action constants.
const (
	ActionInitialize       = "initialize"
	ActionReset            = "reset"
	ActionSetLink          = "set_link"
	ActionSetShortCode     = "set_short_code"
	ActionResolve          = "resolve"
	ActionAdvance          = "advance"
	ActionTrackEvent       = "track_event"
	ActionStoreTransaction = "store_transaction"
	ActionValidatePurchase = "validate_purchase"
	ActionOfferCode        = "offer_code"
	ActionAffiliateDetails = "affiliate_details"
	ActionInstallReferrer  = "install_referrer"
	ActionDeepLink         = "deep_link"
	ActionForceStatus      = "force_status"
	ActionDropConnections  = "drop_connections"
)

var knownActions = map[string]bool{
	ActionInitialize:       true,
	ActionReset:            true,
	ActionSetLink:          true,
	ActionSetShortCode:     true,
	ActionResolve:          true,
	ActionAdvance:          true,
	ActionTrackEvent:       true,
	ActionStoreTransaction: true,
	ActionValidatePurchase: true,
	ActionOfferCode:        true,
	ActionAffiliateDetails: true,
	ActionInstallReferrer:  true,
	ActionDeepLink:         true,
	ActionForceStatus:      true,
	ActionDropConnections:  true,
}

var knownRoutes = map[string]bool{
	stub.RouteShorten:             true,
	stub.RouteCheckAffiliate:      true,
	stub.RouteOfferCode:           true,
	stub.RouteTrackEvent:          true,
	stub.RouteExpectedTransaction: true,
	stub.RouteValidate:            true,
}

// Scenario defaults.
const (
	DefaultCompanyCode = "ACME"
	DefaultDeviceID    = "dev123"
	DefaultStartUnix   = int64(1700000000)
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML and applies defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	scenario.applyDefaults()
	return &scenario, nil
}

func (s *Scenario) applyDefaults() {
	if s.CompanyCode == "" {
		s.CompanyCode = DefaultCompanyCode
	}
	if s.DeviceID == "" {
		s.DeviceID = DefaultDeviceID
	}
	if s.StartUnix == 0 {
		s.StartUnix = DefaultStartUnix
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.Policy.ActiveTimeSeconds < 0 {
		return fmt.Errorf("policy.attribution_active_time_seconds must be non-negative")
	}

	for i, step := range s.Steps {
		if step.Action == "" {
			return fmt.Errorf("steps[%d]: action is required", i)
		}
		if !knownActions[step.Action] {
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		if step.Expect != nil && step.Expect.Status != "" {
			switch step.Expect.Status {
			case "success", "failure", "error":
			default:
				return fmt.Errorf("steps[%d].expect: unknown status %q", i, step.Expect.Status)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertNotifications:
		// An empty list asserts that nothing was delivered.
	case AssertRequestCount:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for request_count", index)
		}
		if !knownRoutes[a.Route] {
			return fmt.Errorf("assertions[%d]: unknown route %q", index, a.Route)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for request_count", index)
		}
	case AssertStoredValue:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for stored_value", index)
		}
		if a.Absent && a.Value != "" {
			return fmt.Errorf("assertions[%d]: value and absent are mutually exclusive", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
