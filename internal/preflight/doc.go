// Package preflight provides readiness checks for the filesystem, external
// binaries and the Telegram Bot API that fetchbot depends on.
//
// The daemon runs RunAll before it starts accepting messages and refuses to
// start when a check fails. The CLI status command reuses the individual
// checks to display health.
package preflight
