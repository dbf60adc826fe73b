// Package state holds the polling state shared between the poller and the UI.
//
// # Overview
//
// Store keeps the latest in-progress list, full event list, camera list,
// resolved server version, and error bookkeeping. Settings keeps the filter
// set that the UI edits and the poller reads.
//
// # Concurrency Model
//
// Each fetch publishes its result with a single setter call that replaces
// the whole slice under a write lock. Fetches that overlap write disjoint
// fields, so no coordination beyond the lock is needed. Snapshot copies every
// slice before returning, so callers may keep or mutate the result.
//
// # Error Bookkeeping
//
//	store.RecordFailure(err, now, visible)
//	→ LastErrorAt = now
//	→ ConsecutiveFailures++
//	→ LastError = err (only when visible)
//
//	store.SetEvents(events, now)
//	→ LastErrorAt, LastError cleared
//	→ ConsecutiveFailures = 0
//
// Background failures (in-progress and camera polls, reconciliation) pass
// visible=false so they are timestamped without raising the error banner.
//
// The zero Store is ready to use.
package state
