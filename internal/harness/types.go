package harness

// TraceEvent is one executed step.
type TraceEvent struct {
	Step   int            `json:"step"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`

	// Notifications are the identifiers the observer received.
	Notifications []string `json:"notifications"`

	// State holds the final persisted values by key.
	State map[string]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		Notifications: []string{},
		State:         make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace records an executed step.
func (r *Result) AddTrace(action string, args, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:   len(r.Trace) + 1,
		Action: action,
		Args:   args,
		Result: result,
	})
}
