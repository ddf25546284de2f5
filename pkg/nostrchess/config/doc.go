/*
Package config loads client settings.

Settings are layered: built-in defaults, then an optional YAML or JSON
file, then NOSTRCHESS_* environment variables.

	relay_url: wss://relay.example.com
	private_key: 5f1c...
	database: ./games.db
	game_kind: 30
	chat_kind: 1
	backoff:
	  step: 1s
	  max: 30s
	connect_timeout: 10s
	healthy_dwell: 3s
	keepalive: 30s
	write_timeout: 10s
	log_level: info
	otel:
	  enabled: true
	  endpoint: http://localhost:4318

Durations accept Go duration strings or a number of seconds.
*/
package config
