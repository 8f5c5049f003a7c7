// Package ephemeral manages the temporary on-disk space used by in-flight
// jobs.
//
// Each job owns a directory named job-<id> under the configured root. Writers
// reserve bytes against a process-wide quota before they start, and the
// reservation travels with a Token whose Release is safe to call any number of
// times. ReleaseJob drops every outstanding reservation of a job together with
// its directory and is invoked on every terminal path. Sweep reclaims
// directories left behind by crashes or stages that outlived their deadline.
package ephemeral
