// Package ui implements vigil's terminal interface on Bubble Tea.
//
// The model renders snapshots from state.Store: in-progress events first,
// then finished ones, both narrowed by the shared filter settings. Key
// presses request poller refreshes, cycle filters (persisted to prefs),
// resolve clip URLs through frigate.Playback, and tail vigil's own log file.
package ui
