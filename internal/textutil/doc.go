// Package textutil provides filename sanitation and the naming templates used
// to title delivered files.
//
// Sanitation normalizes Unicode to NFC, drops control characters, removes the
// decorative suffixes and brackets commonly found in video titles, and replaces
// filesystem-unsafe characters, so names are safe both in ephemeral storage and
// as upload filenames.
package textutil
