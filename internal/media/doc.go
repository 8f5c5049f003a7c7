// Package media holds the value types that flow from URL resolution into the
// job pipeline: the selectable renditions of a source and its descriptive
// metadata.
package media
