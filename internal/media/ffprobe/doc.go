// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The transcode stage uses it to learn a source's duration when the extractor
// did not report one, and to confirm that a finished output still carries the
// streams its kind requires.
package ffprobe
