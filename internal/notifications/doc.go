// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover the
// daemon lifecycle, failed jobs and admission pressure so the scheduler and
// daemon can alert operators without duplicating HTTP glue. Users are never
// reached through this package; their messages go through the orchestrator.
package notifications
