// Package infra holds the adapters behind the core ports: the zerolog
// logger, the JSON and SQLite stores, the metrics sinks and the MQTT relay.
// Packages here import core, never the other way round.
package infra
