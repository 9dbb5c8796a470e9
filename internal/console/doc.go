// Package console renders live transcripts and translations with ANSI
// colors, matching the operator-facing terminal output of the service.
package console
