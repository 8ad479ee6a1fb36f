package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/reflink/internal/stub"
)

// RequestCounter reports how many requests a backend route received.
type RequestCounter interface {
	Count(route string) int
}

var _ RequestCounter = (*stub.Server)(nil)

// evaluateAssertion dispatches to the appropriate assertion handler.
func evaluateAssertion(a Assertion, result *Result, backend RequestCounter) error {
	switch a.Type {
	case AssertNotifications:
		return assertNotifications(a, result)
	case AssertRequestCount:
		return assertRequestCount(a, backend)
	case AssertStoredValue:
		return assertStoredValue(a, result)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertNotifications checks the observer received exactly the expected
// identifiers, in order.
func assertNotifications(a Assertion, result *Result) error {
	want := a.Values
	if want == nil {
		want = []string{}
	}
	if slices.Equal(want, result.Notifications) {
		return nil
	}
	return &AssertionError{
		Type:     AssertNotifications,
		Expected: want,
		Actual:   result.Notifications,
		Message:  "observer notifications differ",
	}
}

// assertRequestCount checks how many requests a route received.
func assertRequestCount(a Assertion, backend RequestCounter) error {
	got := backend.Count(a.Route)
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRequestCount,
		Expected: a.Count,
		Actual:   got,
		Message:  fmt.Sprintf("route %s", a.Route),
	}
}

// assertStoredValue checks a persisted key.
func assertStoredValue(a Assertion, result *Result) error {
	got, ok := result.State[a.Key]
	switch {
	case a.Absent && ok:
		return &AssertionError{
			Type:     AssertStoredValue,
			Expected: "<absent>",
			Actual:   got,
			Message:  fmt.Sprintf("key %s", a.Key),
		}
	case a.Absent:
		return nil
	case !ok:
		return &AssertionError{
			Type:     AssertStoredValue,
			Expected: a.Value,
			Actual:   "<absent>",
			Message:  fmt.Sprintf("key %s", a.Key),
		}
	case got != a.Value:
		return &AssertionError{
			Type:     AssertStoredValue,
			Expected: a.Value,
			Actual:   got,
			Message:  fmt.Sprintf("key %s", a.Key),
		}
	}
	return nil
}

// checkExpect compares a step outcome against its expect clause and
// returns one message per mismatch.
func checkExpect(e *Expect, out stepOutcome) []string {
	var errs []string
	if e.OK != nil {
		got, _ := out.fields["ok"].(bool)
		if got != *e.OK {
			errs = append(errs, fmt.Sprintf("ok: expected %t, got %t", *e.OK, got))
		}
	}
	if e.Present != nil {
		got, _ := out.fields["present"].(bool)
		if got != *e.Present {
			errs = append(errs, fmt.Sprintf("present: expected %t, got %t", *e.Present, got))
		}
	}
	if e.Value != nil {
		got, _ := out.fields["value"].(string)
		if got != *e.Value {
			errs = append(errs, fmt.Sprintf("value: expected %q, got %q", *e.Value, got))
		}
	}
	if e.Status != "" {
		got, _ := out.fields["status"].(string)
		if got != e.Status {
			errs = append(errs, fmt.Sprintf("status: expected %s, got %s", e.Status, got))
		}
	}
	if e.Code != 0 {
		got, _ := out.fields["code"].(int)
		if got != e.Code {
			errs = append(errs, fmt.Sprintf("code: expected %d, got %d", e.Code, got))
		}
	}
	if e.Message != "" && !strings.Contains(out.message, e.Message) {
		errs = append(errs, fmt.Sprintf("message: expected to contain %q, got %q", e.Message, out.message))
	}
	return errs
}

// AssertionError provides detailed assertion failure information.
type AssertionError struct {
	Type     string
	Expected any
	Actual   any
	Message  string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: %s\nExpected: %v\nActual: %v", e.Type, e.Message, e.Expected, e.Actual)
}
