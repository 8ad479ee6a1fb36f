package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reflink/internal/wire"
)

// TraceSnapshot captures what a scenario execution observably did.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName  string            `json:"scenario_name"`
	Trace         []TraceEvent      `json:"trace"`
	Notifications []string          `json:"notifications"`
	State         map[string]string `json:"state"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName:  name,
		Trace:         result.Trace,
		Notifications: result.Notifications,
		State:         result.State,
	}
}

// toCanonicalMap converts the snapshot into values wire.MarshalCanonical
// accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"step":   event.Step,
			"action": event.Action,
		}
		if len(event.Args) > 0 {
			m["args"] = event.Args
		}
		if len(event.Result) > 0 {
			m["result"] = event.Result
		}
		trace[i] = m
	}

	notifications := make([]any, len(s.Notifications))
	for i, n := range s.Notifications {
		notifications[i] = n
	}

	state := make(map[string]any, len(s.State))
	for k, v := range s.State {
		state[k] = v
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"notifications": notifications,
		"state":         state,
	}
}

// MarshalCanonical returns the snapshot's canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return wire.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
