// Package logtail reads the tail of vigil's own log file and renders zerolog
// JSON lines for the logs view.
//
// Read keeps a ring buffer of the last maxLines lines, so memory use is bound
// by the requested window rather than the file size. Parse decodes a JSON line
// into an Entry; Format prints it the way zerolog's console writer would:
//
//	21:01:05 INF events listed count=12 endpoint=events
//
// Non-JSON lines are passed through unchanged.
package logtail
