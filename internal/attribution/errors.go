package attribution

import "errors"

// Precondition failures. They are returned before any network call is made.
var (
	ErrNotInitialized      = errors.New("company code is not set")
	ErrCompanyCodeRequired = errors.New("company code is required")
	ErrNoIdentifier        = errors.New("no affiliate identifier found")
	ErrEmptyLink           = errors.New("referral link is empty")
	ErrInvalidShortCode    = errors.New("invalid short code")
	ErrAffiliateNotFound   = errors.New("affiliate not found")
)
