// Package ordering computes fractional order values for cards within a list
// and lists within a board.
//
// Siblings carry a float64 order. New positions are derived from neighbours
// instead of renumbering the whole sequence:
//
//	top:    min(order) - Gap
//	bottom: max(order) + Gap
//	middle: (prev + next) / 2
//
// When two neighbours are closer than MinGap, the sequence is normalized to
// evenly spaced values ((i+1) * Step) before inserting. Callers persist the
// renumbered siblings in the same transaction as the move that triggered it.
//
// Everything in this package is pure: no I/O, no locking. Serialisation of
// concurrent moves on the same list is the caller's job.
package ordering
