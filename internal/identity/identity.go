// Package identity owns the short per-device identifier that forms the
// suffix of every affiliate identifier.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/roach88/reflink/internal/store"
)

// Length is the maximum length of a device identity.
const Length = 6

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Source provides a platform device identifier. An empty result with a nil
// error means the platform has none.
type Source interface {
	DeviceID(ctx context.Context) (string, error)
}

// StaticSource returns a fixed identifier.
type StaticSource string

func (s StaticSource) DeviceID(context.Context) (string, error) {
	return string(s), nil
}

// MachineIDSource reads the identifier from a file such as /etc/machine-id.
// A missing file is treated as no identifier.
type MachineIDSource struct {
	Path string
}

func (s MachineIDSource) DeviceID(context.Context) (string, error) {
	if s.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Store creates and reads the persisted device identity.
type Store struct {
	kv     store.KV
	source Source
	random io.Reader
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSource sets the platform identifier source.
func WithSource(src Source) Option {
	return func(s *Store) { s.source = src }
}

// WithRandom replaces crypto/rand as the entropy source for generated identities.
func WithRandom(r io.Reader) Option {
	return func(s *Store) { s.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an identity store over kv.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		random: rand.Reader,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Get returns the stored identity, if any.
func (s *Store) Get(ctx context.Context) (string, bool, error) {
	id, ok, err := s.kv.GetString(ctx, store.KeyDeviceID)
	if err != nil {
		return "", false, fmt.Errorf("get device identity: %w", err)
	}
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// Ensure returns the stored identity, creating and persisting one first if
// none exists. An existing identity is never replaced.
func (s *Store) Ensure(ctx context.Context) (string, error) {
	if id, ok, err := s.Get(ctx); err != nil || ok {
		return id, err
	}

	id, err := s.platformID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = s.generate()
		if err != nil {
			return "", err
		}
		s.logger.Debug("generated device identity", "device_id", id)
	} else {
		s.logger.Debug("using platform device identity", "device_id", id)
	}

	if err := s.kv.SetString(ctx, store.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("store device identity: %w", err)
	}
	return id, nil
}

func (s *Store) platformID(ctx context.Context) (string, error) {
	if s.source == nil {
		return "", nil
	}
	raw, err := s.source.DeviceID(ctx)
	if err != nil {
		s.logger.Warn("platform device id unavailable", "error", err)
		return "", nil
	}
	id := sanitize(raw)
	if id == "" && raw != "" {
		s.logger.Warn("platform device id has no usable characters", "raw_length", len(raw))
	}
	return id, nil
}

// sanitize keeps the ASCII letters and digits of raw, up to Length of them.
func sanitize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if b.Len() == Length {
			break
		}
		if r < utf8.RuneSelf && strings.IndexByte(alphabet, byte(r)) >= 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Store) generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	for i := 0; i < Length; i++ {
		n, err := rand.Int(s.random, max)
		if err != nil {
			return "", fmt.Errorf("generate device identity: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
