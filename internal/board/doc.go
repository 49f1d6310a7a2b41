// Package board stores the cards, lists, label assignments and member
// assignments that automation reads and repositions.
//
// General CRUD for boards lives elsewhere; this package exposes the narrow
// surface the rule engine and the move endpoints need. Every reposition
// goes through MoveCard or MoveList, which compute the new order value with
// the ordering package, write any normalized siblings in the same
// transaction, and hold an in-process lock on the affected lists so two
// moves into one list cannot interleave.
package board
