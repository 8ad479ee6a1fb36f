// Package shortcode classifies referral values.
//
// A short code is a 3 to 25 character alphanumeric affiliate code. Its
// canonical form is upper case. Anything else handed to the SDK as a referral
// (a campaign URL, an opaque link) is a deep link and may need server-side
// shortening before it is stored.
package shortcode
