// Package frigate provides a read-only HTTP client for the Frigate NVR events API.
//
// # Overview
//
// The client lists detection events, discovers cameras, probes the server
// version, and resolves a playable clip URL for an event. It never mutates
// server state.
//
// # Architecture
//
//   - client.go: resty-based transport, query encoding, endpoint methods
//   - decode.go: multi-strategy payload decoding into []Event
//   - version.go: version parsing and the cached, single-flight VersionProbe
//   - media.go: clip candidate URLs, HEAD probing, and Playback cycling
//   - breaker.go: circuit breaker shared by every request
//   - errors.go: error kinds and APIError
//   - types.go: the normalized Event model
//
// # Client Usage
//
//	client, err := frigate.NewClient("http://127.0.0.1:5000")
//	if err != nil {
//		return err
//	}
//	live, err := client.FetchEvents(ctx, frigate.EventQuery{InProgress: true})
//
// # Payload Shapes
//
// Servers across releases return the events listing as a bare array, as an
// object wrapping the array under "events", "data", or "results", or as an
// array whose elements use camelCase keys and loosely typed values. Decode
// tries each strategy in that order and returns the first success. Loose
// decoding drops individual malformed elements instead of failing the page.
//
// # Version Detection
//
// GET /api/version is called at most once per probe lifetime. Concurrent first
// callers share a single request. When the endpoint is unreachable or its body
// cannot be parsed the probe settles on DefaultVersion.
//
// # Error Handling
//
// Every error returned by the client matches exactly one of ErrInvalidURL,
// ErrNetwork, ErrDecoding, or ErrInvalidResponse under errors.Is. Non-2xx
// responses additionally carry an *APIError with the status code.
//
// # Thread Safety
//
// Client and VersionProbe are safe for concurrent use. Playback is not; each
// viewer owns its own.
package frigate
