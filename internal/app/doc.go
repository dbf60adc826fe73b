// Package app is the composition root for vigil's watch mode.
//
// # Overview
//
// Run loads configuration and preferences, builds the Frigate client, and
// connects the poller, the optional MQTT feed, the optional metrics endpoint,
// and either the TUI or the headless change logger around one shared
// state.Store.
//
// # Components
//
//   - app.go: Run and logging setup
//   - poller.go: fast and slow polling loops, manual refresh, and triggers
//   - reconcile.go: re-fetches the full list after in-progress events finish
//   - headless.go: logs started and finished events without a terminal UI
//   - clock.go: injectable time source for deterministic tests
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │ Initialize everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()        Read ~/.config/vigil/config.toml
//	       ├─────> frigate.NewClient()  HTTP client with breaker
//	       ├─────> state.Store{}        Shared snapshot
//	       ├─────> Poller.Run()         Fast, slow, and trigger loops
//	       ├─────> mqttfeed.Run()       Push triggers (optional)
//	       ├─────> metrics.Serve()      /metrics (optional)
//	       └─────> ui.Run()             TUI (blocks)
//
// # Polling Behavior
//
// The fast loop (default 2s) fetches in-progress events and hands events that
// dropped out of that list to the Reconciler, which waits briefly and
// re-fetches the full list until the finished events appear (two attempts at
// most). The slow loop (default 30s) fetches the full list, the camera list,
// and the server version. Both loops poll once immediately.
//
// Manual refresh (the r key, retry, filter changes) goes through Trigger so
// the UI never blocks on the network. Full-list failures are shown to the
// user; in-progress, camera, and reconciliation failures are only logged.
package app
