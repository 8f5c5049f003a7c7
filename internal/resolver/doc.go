// Package resolver turns a user-submitted URL into the list of renditions the
// user can choose from.
//
// Resolution validates the URL against the scheme allowlist before any
// network activity, consults a process-wide LRU cache keyed by the normalized
// URL, and otherwise asks the extraction collaborator (yt-dlp by default).
// Concurrent requests for the same key share one extractor call. Raw formats
// are reduced to progressive video and audio-only options, deduplicated by
// kind and resolution or bitrate, and ordered best first.
package resolver
