package wire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 1 << 20

// HeaderRequestID carries the per-call correlation id.
const HeaderRequestID = "X-Request-Id"

// DefaultTimeout applies when no *http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// Caller sends one request per call and returns the raw response.
// It never retries.
type Caller struct {
	HTTP   *http.Client
	Logger *slog.Logger
	// NewID returns the correlation id for a call. Defaults to UUIDv7.
	NewID func() string
}

// Request describes one outbound call.
type Request struct {
	Operation string
	Method    string
	URL       string
	// Body is serialized with MarshalCanonical when non-nil.
	Body   Object
	Header http.Header
}

// Response is the status and body of a completed call.
type Response struct {
	Status  int
	Body    []byte
	CallID  string
	Elapsed time.Duration
}

// NewCallID returns a time-ordered UUID, falling back to a random one.
func NewCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Do sends req. Transport and body-read failures are returned as errors;
// any HTTP status is a successful call.
func (c *Caller) Do(ctx context.Context, req Request) (Response, error) {
	newID := c.NewID
	if newID == nil {
		newID = NewCallID
	}
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	resp := Response{CallID: newID()}
	log := logger.With("operation", req.Operation, "call_id", resp.CallID)

	var body io.Reader
	if req.Body != nil {
		payload, err := MarshalCanonical(req.Body)
		if err != nil {
			return resp, fmt.Errorf("%s: encode body: %w", req.Operation, err)
		}
		log.Debug("request payload", "body", string(payload))
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return resp, fmt.Errorf("%s: build request: %w", req.Operation, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderRequestID, resp.CallID)

	log.Debug("sending request", "method", req.Method, "url", req.URL)
	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		resp.Elapsed = time.Since(start)
		return resp, fmt.Errorf("%s: %w", req.Operation, err)
	}
	defer httpResp.Body.Close()

	resp.Status = httpResp.StatusCode
	resp.Body, err = io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseBytes))
	resp.Elapsed = time.Since(start)
	if err != nil {
		return resp, fmt.Errorf("%s: read body: %w", req.Operation, err)
	}

	log.Debug("received response", "status", resp.Status, "elapsed", resp.Elapsed)
	return resp, nil
}
