package store

import (
	"context"
	"errors"
	"fmt"
)

// DefaultProfile is the namespace used when none is configured.
const DefaultProfile = "InsertAffiliate"

// Persisted keys. The names match the preference keys of the mobile SDK so
// a store exported from a device can be read back unchanged.
const (
	KeyDeviceID    = "shortUniqueDeviceID"
	KeyReferral    = "referring_link"
	KeyReferralSet = "affiliate_stored_date"
	KeyOfferCode   = "offer_code"
)

// ErrWrongKind is returned when a key is read with the accessor of the other type.
var ErrWrongKind = errors.New("value has a different type")

// KV is a profile-scoped key/value store.
// Missing keys report ok=false with a nil error.
type KV interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	GetInt64(ctx context.Context, key string) (int64, bool, error)
	SetInt64(ctx context.Context, key string, value int64) error
}

// Entry is one stored value, as returned by the Dump helpers.
type Entry struct {
	Key   string
	Kind  string
	Value string
}

const (
	kindString = "string"
	kindInt    = "int"
)

func wrongKind(key, want, got string) error {
	return fmt.Errorf("%q holds %s, read as %s: %w", key, got, want, ErrWrongKind)
}
