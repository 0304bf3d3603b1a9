package room

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowercaser = cases.Lower(language.Und)

// normalizeName lowercases a player name using Unicode case folding rather
// than byte-wise ASCII lowering, since player names are free-form user
// input. The empty-seat sentinel is passed through untouched.
func normalizeName(name string) string {
	if name == "" || name == EmptySeatSentinel {
		return name
	}
	return lowercaser.String(name)
}

// EmptySeatSentinel re-exports the seat-layout placeholder for callers in
// this package that don't want to import types directly.
const EmptySeatSentinel = "empty"
