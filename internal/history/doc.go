// Package history records terminal job outcomes and per-user preferences in
// SQLite.
//
// The store is write-mostly: the scheduler appends one row per finished job
// and the CLI reads recent rows back for operators. Preferences (naming
// template, video-as-document) are the only state the bot reads on behalf of
// users. Nothing in here is used to resume jobs after a restart.
package history
