package board

import "errors"

var (
	// ErrCardNotFound is returned when a card ID does not exist.
	ErrCardNotFound = errors.New("board: card not found")

	// ErrListNotFound is returned when a list ID does not exist.
	ErrListNotFound = errors.New("board: list not found")

	// ErrBoardNotFound is returned when a board ID does not exist.
	ErrBoardNotFound = errors.New("board: board not found")

	// ErrExists is returned when inserting a row whose ID is taken.
	ErrExists = errors.New("board: already exists")

	// ErrConcurrentMove is returned when a card kept changing list while
	// MoveCard tried to lock it.
	ErrConcurrentMove = errors.New("board: card moved concurrently")

	// ErrEmptyUpdate is returned by UpdateCard when no field is set.
	ErrEmptyUpdate = errors.New("board: empty update")
)
