package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflink/internal/stub"
)

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Steps: []Step{
			{Action: ActionInitialize, Expect: &Expect{OK: boolPtr(true)}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, 1, result.Trace[0].Step)
	assert.Equal(t, ActionInitialize, result.Trace[0].Action)
	assert.Equal(t, map[string]any{"ok": true}, result.Trace[0].Result)
	assert.Equal(t, DefaultDeviceID, result.State["shortUniqueDeviceID"])
	assert.Empty(t, result.Notifications)
}

func TestRun_AppliesDefaults(t *testing.T) {
	scenario := &Scenario{
		Name:        "defaults",
		Description: "Defaults are filled in",
		Steps:       []Step{{Action: ActionReset}},
	}

	_, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, DefaultCompanyCode, scenario.CompanyCode)
	assert.Equal(t, DefaultDeviceID, scenario.DeviceID)
	assert.Equal(t, DefaultStartUnix, scenario.StartUnix)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Wrong expectation",
		Steps: []Step{
			{Action: ActionInitialize},
			{Action: ActionResolve, Expect: &Expect{Present: boolPtr(true)}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[1] resolve")
	assert.Contains(t, result.Errors[0], "present: expected true, got false")
}

func TestRun_UninitializedLinkFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "uninitialized",
		Description: "Links before initialize are rejected",
		Steps: []Step{
			{
				Action: ActionSetLink,
				Args:   map[string]any{"link": "PROMO42"},
				Expect: &Expect{OK: boolPtr(false), Message: "company code is not set"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertNotifications},
			{Type: AssertStoredValue, Key: "referring_link", Absent: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AffiliateDetails(t *testing.T) {
	scenario := &Scenario{
		Name:        "details",
		Description: "Affiliate lookup",
		Seed: stub.Seed{
			Affiliates: []stub.Affiliate{{Code: "ABC123XYZ9", Name: "Jane Doe"}},
		},
		Steps: []Step{
			{Action: ActionInitialize},
			{
				Action: ActionAffiliateDetails,
				Args:   map[string]any{"code": "abc123xyz9"},
				Expect: &Expect{OK: boolPtr(true), Value: strPtr("Jane Doe")},
			},
			{
				Action: ActionAffiliateDetails,
				Args:   map[string]any{"code": "NOPE999"},
				Expect: &Expect{OK: boolPtr(false)},
			},
		},
		Assertions: []Assertion{
			{Type: AssertRequestCount, Route: stub.RouteCheckAffiliate, Count: 2},
			{Type: AssertStoredValue, Key: "referring_link", Absent: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ForcedStatus(t *testing.T) {
	scenario := &Scenario{
		Name:        "forced",
		Description: "Backend failures surface as failure outcomes",
		Steps: []Step{
			{Action: ActionInitialize},
			{Action: ActionSetLink, Args: map[string]any{"link": "PROMO42"}},
			{Action: ActionForceStatus, Args: map[string]any{"route": stub.RouteTrackEvent, "status": 503}},
			{
				Action: ActionTrackEvent,
				Args:   map[string]any{"event": "purchase"},
				Expect: &Expect{Status: "failure", Code: 503},
			},
			{Action: ActionForceStatus, Args: map[string]any{"route": stub.RouteTrackEvent, "status": 0}},
			{
				Action: ActionTrackEvent,
				Args:   map[string]any{"event": "purchase"},
				Expect: &Expect{Status: "success", Code: 200},
			},
		},
		Assertions: []Assertion{
			{Type: AssertRequestCount, Route: stub.RouteTrackEvent, Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InstallReferrerOnInitialize(t *testing.T) {
	scenario := &Scenario{
		Name:        "referrer",
		Description: "Install referrer captured once on initialize",
		InsertLinks: true,
		Referrer:    "insertAffiliate=PROMO42",
		Steps: []Step{
			{Action: ActionInitialize},
			{Action: ActionInitialize},
			{Action: ActionResolve, Expect: &Expect{Present: boolPtr(true), Value: strPtr("PROMO42-dev123")}},
		},
		Assertions: []Assertion{
			{Type: AssertNotifications, Values: []string{"PROMO42-dev123"}},
			{Type: AssertStoredValue, Key: "referring_link", Value: "PROMO42"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DeepLink(t *testing.T) {
	scenario := &Scenario{
		Name:        "deep_link",
		Description: "Deep link carries the referral",
		Steps: []Step{
			{Action: ActionInitialize},
			{Action: ActionDeepLink, Args: map[string]any{"uri": "acme://open?insertAffiliate=SUMMER7"}},
		},
		Assertions: []Assertion{
			{Type: AssertNotifications, Values: []string{"SUMMER7-dev123"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidArgs(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_args",
		Description: "Missing arguments abort the run",
		Steps: []Step{
			{Action: ActionAdvance, Args: map[string]any{"seconds": "ten"}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0] advance")
}

func TestRun_Deterministic(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "scenarios", "sequential_links_notify_in_order.yaml"))
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 3; i++ {
		scenario, err := ParseScenario(data)
		require.NoError(t, err)
		result, err := Run(scenario)
		require.NoError(t, err)

		snapshot := NewSnapshot(scenario.Name, result)
		got, err := snapshot.MarshalCanonical()
		require.NoError(t, err)
		if first == nil {
			first = got
			continue
		}
		assert.Equal(t, string(first), string(got), "run %d", i)
	}
}
