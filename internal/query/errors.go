package query

import "errors"

// ErrNegativeBalance is returned when folding the generated/spent event
// streams for a script would drive its running balance below zero,
// which implies an invariant violation in the committed state rather
// than a bug in the read path (spec.md §7: "surfaces as a read error,
// not a crash").
var ErrNegativeBalance = errors.New("query: computed balance went negative")
