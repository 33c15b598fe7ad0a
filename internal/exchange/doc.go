// Package exchange wraps the trading-account REST API.
//
// Each method is a synchronous request/response call failing with a
// transport error or *APIError; the package performs no business retries.
// Only GETs retry, on 5xx/429 with jittered exponential backoff. Order
// placements never retry: a transient placement failure surfaces to the
// worker, which rejects the local reference.
//
// Session tokens (CST / X-SECURITY-TOKEN) are harvested from the session
// endpoint's response headers and attached to every subsequent request.
// Login may be called repeatedly to rebuild a dead session.
package exchange
