// Package language normalizes the audio language tags reported by the
// extractor and turns them into English display names for format labels.
package language
