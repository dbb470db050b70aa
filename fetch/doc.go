// Package fetch is a resilient HTTP fetch layer for dashboards that poll
// alerting backends.
//
// Client
//   - Get retries transport failures with exponential backoff between
//     RetryConfig.MinTimeout and MaxTimeout (defaults: 9 retries, 2s, 5s).
//   - HTTP error statuses are responses, never retried.
//   - The last attempt is always sent with mode no-cors.
//   - Delete and Do send a single attempt.
//
// Stateful fetchers
//   - Getter, Deleter and AnyGetter run calls in the background and expose a
//     Snapshot. A new call, Cancel or Close makes the previous call stale; a
//     stale call never changes the snapshot.
//   - Poller drives a Getter on an interval.
//
// Outcome
//   - Resolve turns a response into a body or an ErrorValue: JSON is decoded
//     when the Content-Type says so, non-2xx statuses become errors carrying
//     the server payload or "<code> <status text>".
//
// Browser semantics
//   - HTTPFetcher emulates fetch credentials, mode and redirect handling on
//     behalf of a configured origin. Without an origin every request is
//     same-origin.
package fetch
