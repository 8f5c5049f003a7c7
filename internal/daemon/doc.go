// Package daemon coordinates the long-running fetchbot process.
//
// It owns the single-instance flock, starts the scheduler, the session
// sweeper, the ephemeral sweep loop and the Telegram poller in order, and
// tears them down in reverse. The IPC server and the CLI read status,
// history and sweep results through the daemon rather than reaching into the
// individual components.
package daemon
