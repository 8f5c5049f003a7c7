// Package download streams a chosen rendition into ephemeral storage.
//
// The executor issues a plain HTTP GET against the direct stream URL reported
// by the resolver, writes through a size-limited writer, checks for
// cancellation on every buffer and reports byte progress. Network resets,
// 5xx and 429 responses are retried with the shared backoff policy; other
// client errors and size-limit violations fail immediately. A failed attempt
// never leaves a partial file behind.
package download
