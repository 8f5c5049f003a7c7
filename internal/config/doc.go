// Package config loads, normalizes, and validates fetchbot configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// TELEGRAM_BOT_TOKEN and MAX_CONCURRENT_JOBS. The Config type centralizes every
// knob the daemon and CLI need, so storage quotas, stage deadlines, and the
// retry policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
