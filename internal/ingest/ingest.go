// Package ingest turns install-referrer payloads and deep-link URIs into
// referral stores.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// Param is the query parameter that carries the referral.
const Param = "insertAffiliate"

// InstallReferrerValue scans a query-string shaped referrer payload for the
// first "insertAffiliate=" parameter. The value is returned verbatim, without
// unescaping.
func InstallReferrerValue(raw string) (string, bool) {
	prefix := Param + "="
	for _, part := range strings.Split(raw, "&") {
		if value, ok := strings.CutPrefix(part, prefix); ok {
			return value, value != ""
		}
	}
	return "", false
}

// DeepLinkValue returns the first insertAffiliate query parameter of uri.
// Percent escapes are decoded but '+' stays literal, as on Android.
func DeepLinkValue(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	for _, part := range strings.Split(u.RawQuery, "&") {
		key, raw, _ := strings.Cut(part, "=")
		if unescapeQuery(key) != Param {
			continue
		}
		value := unescapeQuery(raw)
		return value, value != ""
	}
	return "", false
}

// unescapeQuery decodes percent escapes only. Malformed input is returned as is.
func unescapeQuery(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Target receives extracted referral values.
type Target interface {
	SetIdentifierFromLink(ctx context.Context, raw string) (string, error)
}

// ReferrerSource provides the platform install-referrer payload.
type ReferrerSource interface {
	InstallReferrer(ctx context.Context) (string, error)
}

// StaticReferrer is a fixed install-referrer payload.
type StaticReferrer string

func (s StaticReferrer) InstallReferrer(context.Context) (string, error) {
	return string(s), nil
}

// Ingestor feeds referral values into a Target. Payloads without a value
// are ignored.
type Ingestor struct {
	Target Target
	Logger *slog.Logger
}

// InstallReferrer handles an install-referrer payload. It reports whether a
// value was found and stored.
func (i Ingestor) InstallReferrer(ctx context.Context, raw string) bool {
	value, ok := InstallReferrerValue(raw)
	if !ok {
		i.logger().Debug("install referrer has no affiliate parameter", "referrer", raw)
		return false
	}
	return i.store(ctx, "install_referrer", value)
}

// DeepLink handles a deep-link URI. It reports whether a value was found
// and stored.
func (i Ingestor) DeepLink(ctx context.Context, uri string) bool {
	value, ok := DeepLinkValue(uri)
	if !ok {
		i.logger().Debug("deep link has no affiliate parameter", "uri", uri)
		return false
	}
	return i.store(ctx, "deep_link", value)
}

// Capture reads the install referrer from src once and handles it.
func (i Ingestor) Capture(ctx context.Context, src ReferrerSource) bool {
	raw, err := src.InstallReferrer(ctx)
	if err != nil {
		i.logger().Warn("install referrer unavailable", "error", err)
		return false
	}
	return i.InstallReferrer(ctx, raw)
}

func (i Ingestor) store(ctx context.Context, source, value string) bool {
	stored, err := i.Target.SetIdentifierFromLink(ctx, value)
	if err != nil {
		i.logger().Error("store referral", "source", source, "value", value, "error", err)
		return false
	}
	i.logger().Info("referral captured", "source", source, "stored", stored)
	return true
}

func (i Ingestor) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return i.Logger
}
