// Package harness runs attribution scenarios end to end.
//
// A scenario drives a reflink client against the fake backends with an
// in-memory store and a frozen clock, step by step, and then checks the
// notifications, backend requests and stored values it produced.
//
// # Scenario Format
//
//	name: short_code_stored
//	description: "A confirmed short code is stored uppercased"
//	company_code: ACME
//	device_id: dev123
//	seed:
//	  affiliates:
//	    - code: ABC123XYZ9
//	      name: Jane Doe
//	steps:
//	  - action: initialize
//	  - action: set_short_code
//	    args: { code: abc123XYZ9 }
//	    expect: { ok: true }
//	  - action: resolve
//	    expect: { present: true, value: ABC123XYZ9-dev123 }
//	assertions:
//	  - type: notifications
//	    values: [ABC123XYZ9-dev123]
//	  - type: request_count
//	    route: check_affiliate
//	    count: 1
//	  - type: stored_value
//	    key: referring_link
//	    value: ABC123XYZ9
//
// # Steps
//
//   - initialize: args company_code (defaults to the scenario's), active_time_seconds
//   - reset
//   - set_link: args link; result value, ok
//   - set_short_code: args code; result ok
//   - resolve: args ignore_timeout; result present, value
//   - advance: args seconds; moves the fake clock
//   - track_event: args event; result status, code
//   - store_transaction: args token; result status, code
//   - validate_purchase: args subscription_id, purchase_id, token, app_name, secret_key
//   - offer_code: args link; result present, value
//   - affiliate_details: args code; result ok, value (the affiliate name)
//   - install_referrer: args referrer
//   - deep_link: args uri
//   - force_status: args route, status (0 restores the route)
//   - drop_connections: args route, drop
//
// # Assertion Types
//
//   - notifications: the exact identifiers the observer received, in order
//   - request_count: how many requests a backend route received
//   - stored_value: a persisted key's value, or absent: true
//
// Every step waits for its callback, offer-code refresh and notifications
// before the next one starts, so traces are deterministic and can be
// compared against golden files.
package harness
