// Package config loads vigil's TOML configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/vigil/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// # Keys
//
//	base_url = "http://127.0.0.1:5000"
//	timezone = "UTC"
//	limit = 50
//	fast_poll_seconds = 2
//	slow_poll_seconds = 30
//	refresh_delay_seconds = 0.5
//	reconcile_first_delay_seconds = 0.5
//	reconcile_second_delay_seconds = 1.0
//	request_timeout_seconds = 10
//	log_level = "info"
//	log_file = "~/.local/state/vigil/vigil.log"
//	metrics_addr = ""
//
//	[mqtt]
//	broker = ""
//	topic = "frigate/events"
//	client_id = "vigil"
//
// Poll intervals and the request timeout must be positive; zero or negative
// values fall back to the defaults. The three delay keys accept zero, which
// disables the delay. Paths starting with ~ are expanded against $HOME.
package config
