// Package telemetry provides anonymous usage reporting for parley.
//
// Events are dispatched best-effort to a remote collection endpoint and never
// block or fail the caller: every veto or delivery failure is absorbed at the
// dispatch boundary and reduced to a local log entry. Reporting respects the
// user's privacy opt-out on every single call, enforces a per-event-name
// cooldown, and only ever transmits one-way hashed identifiers.
//
// The system does NOT collect:
// - Message contents or stanzas
// - Raw account or server identifiers
// - Credentials of any kind
//
// Files in this package:
// - client.go: Dispatcher construction and the prefixed logger
// - dispatch.go: the Record gating pipeline and failure absorption
// - ratelimit.go: per-event-name cooldown reservations
// - anonymize.go: identifier hashing
// - http.go: delivery to the collection endpoint
// - types.go: event names and payload structures
// - context.go: context carrier helpers
package telemetry
