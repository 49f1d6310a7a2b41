package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/boardflow-core/internal/infrastructure/database"
	"github.com/nerrad567/boardflow-core/internal/ordering"
)

// CardRepository reads and repositions cards.
type CardRepository interface {
	GetCard(ctx context.Context, id string) (*Card, error)
	UpdateCard(ctx context.Context, filter CardFilter, update CardUpdate) error
	ListCardSiblings(ctx context.Context, listID, excludeCardID string) ([]ordering.Item, error)
	MoveCard(ctx context.Context, req MoveCardRequest) (*MoveCardResult, error)
}

// ListRepository reads and repositions lists.
type ListRepository interface {
	GetList(ctx context.Context, id string) (*List, error)
	GetAdjacentListIds(ctx context.Context, listID, boardID string) (AdjacentLists, error)
	MoveList(ctx context.Context, req MoveListRequest) (*MoveListResult, error)
}

// LabelRepository reads label assignments.
type LabelRepository interface {
	GetAssignedLabels(ctx context.Context, workspaceID, cardID string) ([]string, error)
}

// MemberRepository reads card membership.
type MemberRepository interface {
	GetMembersByCard(ctx context.Context, cardID string) ([]string, error)
}

const cardColumns = `id, workspace_id, board_id, list_id, name, description,
			order_value, is_completed, custom_fields, created_at`

// SQLiteRepository implements the board repositories on SQLite.
type SQLiteRepository struct {
	db    *sql.DB
	locks *keyLock

	// beforeLock, when set, runs between MoveCard's unlocked read and the
	// lock. Tests use it to interleave a competing move.
	beforeLock func(cardID string)
}

// NewSQLiteRepository creates a SQLite-backed board repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, locks: newKeyLock()}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ─── Cards ──────────────────────────────────────────────────────────────────

// GetCard retrieves a card by ID.
func (r *SQLiteRepository) GetCard(ctx context.Context, id string) (*Card, error) {
	return getCard(ctx, r.db, id)
}

// UpdateCard writes the non-nil fields of update to the card selected by filter.
func (r *SQLiteRepository) UpdateCard(ctx context.Context, filter CardFilter, update CardUpdate) error {
	if filter.ID == "" {
		return fmt.Errorf("%w: card id is required", ErrCardNotFound)
	}
	return updateCard(ctx, r.db, filter, update)
}

// ListCardSiblings returns the cards in listID, excluding excludeCardID.
func (r *SQLiteRepository) ListCardSiblings(ctx context.Context, listID, excludeCardID string) ([]ordering.Item, error) {
	return cardSiblings(ctx, r.db, listID, excludeCardID)
}

// maxMoveAttempts bounds how often MoveCard re-locks when the card changes
// list between the unlocked read and the lock.
const maxMoveAttempts = 5

// MoveCard places a card at req.Position in req.ToListID or, when
// ToListID is empty, in the list the card is in at the time of the move.
//
// Parameters:
//   - ctx: bounds the reads and the transaction
//   - req: card, optional target list and position
//
// Returns:
//   - *MoveCardResult: the card before and after; Moved is false for a no-op
//   - error: ErrCardNotFound, ErrListNotFound, ordering.ErrInvalidPosition,
//     ErrConcurrentMove, or a wrapped database error
//
// Thread Safety:
//
//	The source and target lists are locked for the duration and the card
//	plus any renumbered siblings are written in one transaction. The lock
//	keys come from an unlocked read, so the card is re-read under the lock;
//	if another move changed its list in between, the locks are released and
//	the move starts over.
func (r *SQLiteRepository) MoveCard(ctx context.Context, req MoveCardRequest) (*MoveCardResult, error) {
	for range maxMoveAttempts {
		current, err := r.GetCard(ctx, req.CardID)
		if err != nil {
			return nil, err
		}
		if r.beforeLock != nil {
			r.beforeLock(req.CardID)
		}

		result, err := r.moveCardLocked(ctx, req, current.ListID)
		if errors.Is(err, errListChanged) {
			continue
		}
		return result, err
	}
	return nil, fmt.Errorf("%w: card %s", ErrConcurrentMove, req.CardID)
}

// errListChanged reports that the card left sourceListID before the lock
// was taken.
var errListChanged = errors.New("board: card changed list")

func (r *SQLiteRepository) moveCardLocked(ctx context.Context, req MoveCardRequest, sourceListID string) (*MoveCardResult, error) {
	targetListID := req.ToListID
	if targetListID == "" {
		targetListID = sourceListID
	}

	unlock := r.locks.Lock(sourceListID, targetListID)
	defer unlock()

	var result *MoveCardResult
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		card, err := getCard(ctx, tx, req.CardID)
		if err != nil {
			return err
		}
		if card.ListID != sourceListID {
			return errListChanged
		}
		target, err := getList(ctx, tx, targetListID)
		if err != nil {
			return err
		}

		siblings, err := cardSiblings(ctx, tx, target.ID, card.ID)
		if err != nil {
			return err
		}

		result = &MoveCardResult{Card: *card, Previous: *card}
		if target.ID == card.ListID && req.Position.Kind == ordering.PositionIndex {
			all := append(slices.Clone(siblings), ordering.Item{ID: card.ID, Order: card.Order})
			if ordering.IndexOf(all, card.ID) == clampIndex(req.Position.Index, len(all)) {
				return nil
			}
		}

		placement, err := ordering.Place(siblings, req.Position)
		if err != nil {
			return err
		}
		for _, item := range placement.Renumbered {
			if err := setCardOrder(ctx, tx, item.ID, item.Order); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE cards SET list_id = ?, board_id = ?, order_value = ? WHERE id = ?`,
			target.ID, target.BoardID, placement.Order, card.ID,
		); err != nil {
			return fmt.Errorf("moving card: %w", err)
		}

		result.Card.ListID = target.ID
		result.Card.BoardID = target.BoardID
		result.Card.Order = placement.Order
		result.Moved = true
		result.Renumbered = len(placement.Renumbered)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateCard inserts a card. Order defaults to the bottom of its list when zero.
func (r *SQLiteRepository) CreateCard(ctx context.Context, card *Card) error {
	list, err := r.GetList(ctx, card.ListID)
	if err != nil {
		return err
	}
	card.BoardID = list.BoardID

	unlock := r.locks.Lock(card.ListID)
	defer unlock()

	if card.Order == 0 {
		siblings, err := cardSiblings(ctx, r.db, card.ListID, "")
		if err != nil {
			return err
		}
		card.Order = ordering.BottomOrder(siblings)
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}

	fieldsJSON, err := json.Marshal(card.CustomFields)
	if err != nil {
		return fmt.Errorf("marshalling custom fields: %w", err)
	}
	if card.CustomFields == nil {
		fieldsJSON = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID,
		card.WorkspaceID,
		card.BoardID,
		card.ListID,
		card.Name,
		card.Description,
		card.Order,
		boolToInt(card.IsCompleted),
		string(fieldsJSON),
		card.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting card: %w", err)
	}
	return nil
}

// ─── Lists ──────────────────────────────────────────────────────────────────

// GetList retrieves a list by ID.
func (r *SQLiteRepository) GetList(ctx context.Context, id string) (*List, error) {
	return getList(ctx, r.db, id)
}

// GetAdjacentListIds returns the lists immediately before and after listID
// on boardID, ordered by order value then ID.
func (r *SQLiteRepository) GetAdjacentListIds(ctx context.Context, listID, boardID string) (AdjacentLists, error) {
	siblings, err := listSiblings(ctx, r.db, boardID, "")
	if err != nil {
		return AdjacentLists{}, err
	}

	sorted := ordering.Sorted(siblings)
	idx := ordering.IndexOf(sorted, listID)
	if idx < 0 {
		return AdjacentLists{}, fmt.Errorf("%w: %s on board %s", ErrListNotFound, listID, boardID)
	}

	var adj AdjacentLists
	if idx > 0 {
		adj.Prev = sorted[idx-1].ID
	}
	if idx < len(sorted)-1 {
		adj.Next = sorted[idx+1].ID
	}
	return adj, nil
}

// MoveList repositions a list among the other lists on its board.
func (r *SQLiteRepository) MoveList(ctx context.Context, req MoveListRequest) (*MoveListResult, error) {
	current, err := r.GetList(ctx, req.ListID)
	if err != nil {
		return nil, err
	}

	// Lists are ordered per board; lock the board's list sequence.
	unlock := r.locks.Lock("board:" + current.BoardID)
	defer unlock()

	var result *MoveListResult
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		list, err := getList(ctx, tx, req.ListID)
		if err != nil {
			return err
		}
		siblings, err := listSiblings(ctx, tx, list.BoardID, list.ID)
		if err != nil {
			return err
		}

		result = &MoveListResult{List: *list, Previous: *list}
		if req.Position.Kind == ordering.PositionIndex {
			all := append(slices.Clone(siblings), ordering.Item{ID: list.ID, Order: list.Order})
			if ordering.IndexOf(all, list.ID) == clampIndex(req.Position.Index, len(all)) {
				return nil
			}
		}

		placement, err := ordering.Place(siblings, req.Position)
		if err != nil {
			return err
		}
		for _, item := range placement.Renumbered {
			if _, err := tx.ExecContext(ctx, `UPDATE lists SET order_value = ? WHERE id = ?`, item.Order, item.ID); err != nil {
				return fmt.Errorf("renumbering list %s: %w", item.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE lists SET order_value = ? WHERE id = ?`, placement.Order, list.ID); err != nil {
			return fmt.Errorf("moving list: %w", err)
		}

		result.List.Order = placement.Order
		result.Moved = true
		result.Renumbered = len(placement.Renumbered)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateBoard inserts a board.
func (r *SQLiteRepository) CreateBoard(ctx context.Context, b *Board) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO boards (id, workspace_id, name, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.WorkspaceID, b.Name, b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting board: %w", err)
	}
	return nil
}

// GetBoard retrieves a board by ID.
func (r *SQLiteRepository) GetBoard(ctx context.Context, id string) (*Board, error) {
	var b Board
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, name, created_at FROM boards WHERE id = ?`, id,
	).Scan(&b.ID, &b.WorkspaceID, &b.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("querying board: %w", err)
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		b.CreatedAt = t
	}
	return &b, nil
}

// CreateList inserts a list. Order defaults to the end of the board when zero.
func (r *SQLiteRepository) CreateList(ctx context.Context, l *List) error {
	if l.Order == 0 {
		siblings, err := listSiblings(ctx, r.db, l.BoardID, "")
		if err != nil {
			return err
		}
		l.Order = ordering.BottomOrder(siblings)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lists (id, board_id, name, order_value) VALUES (?, ?, ?, ?)`,
		l.ID, l.BoardID, l.Name, l.Order,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		if isForeignKeyError(err) {
			return ErrBoardNotFound
		}
		return fmt.Errorf("inserting list: %w", err)
	}
	return nil
}

// ─── Labels and members ─────────────────────────────────────────────────────

// GetAssignedLabels returns the label IDs assigned to a card.
func (r *SQLiteRepository) GetAssignedLabels(ctx context.Context, workspaceID, cardID string) ([]string, error) {
	return r.queryIDs(ctx,
		`SELECT label_id FROM card_labels WHERE workspace_id = ? AND card_id = ? ORDER BY label_id`,
		workspaceID, cardID)
}

// AssignLabel attaches a label to a card. Assigning twice is a no-op.
func (r *SQLiteRepository) AssignLabel(ctx context.Context, workspaceID, cardID, labelID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO card_labels (workspace_id, card_id, label_id) VALUES (?, ?, ?)`,
		workspaceID, cardID, labelID)
	if err != nil {
		return fmt.Errorf("assigning label: %w", err)
	}
	return nil
}

// GetMembersByCard returns the user IDs assigned to a card.
func (r *SQLiteRepository) GetMembersByCard(ctx context.Context, cardID string) ([]string, error) {
	return r.queryIDs(ctx,
		`SELECT user_id FROM card_members WHERE card_id = ? ORDER BY user_id`, cardID)
}

// AddMember assigns a user to a card. Adding twice is a no-op.
func (r *SQLiteRepository) AddMember(ctx context.Context, cardID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO card_members (card_id, user_id) VALUES (?, ?)`, cardID, userID)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

// ─── Shared queries (usable inside a transaction) ───────────────────────────

func getCard(ctx context.Context, q querier, id string) (*Card, error) {
	row := q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		return nil, fmt.Errorf("querying card: %w", err)
	}
	return card, nil
}

func getList(ctx context.Context, q querier, id string) (*List, error) {
	var l List
	err := q.QueryRowContext(ctx,
		`SELECT id, board_id, name, order_value FROM lists WHERE id = ?`, id,
	).Scan(&l.ID, &l.BoardID, &l.Name, &l.Order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrListNotFound, id)
		}
		return nil, fmt.Errorf("querying list: %w", err)
	}
	return &l, nil
}

func cardSiblings(ctx context.Context, q querier, listID, excludeID string) ([]ordering.Item, error) {
	return queryItems(ctx, q,
		`SELECT id, order_value FROM cards WHERE list_id = ? AND id != ? ORDER BY order_value, id`,
		listID, excludeID)
}

func listSiblings(ctx context.Context, q querier, boardID, excludeID string) ([]ordering.Item, error) {
	return queryItems(ctx, q,
		`SELECT id, order_value FROM lists WHERE board_id = ? AND id != ? ORDER BY order_value, id`,
		boardID, excludeID)
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]ordering.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying siblings: %w", err)
	}
	defer rows.Close()

	var items []ordering.Item
	for rows.Next() {
		var item ordering.Item
		if err := rows.Scan(&item.ID, &item.Order); err != nil {
			return nil, fmt.Errorf("scanning sibling: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating siblings: %w", err)
	}
	return items, nil
}

func setCardOrder(ctx context.Context, q querier, id string, order float64) error {
	if _, err := q.ExecContext(ctx, `UPDATE cards SET order_value = ? WHERE id = ?`, order, id); err != nil {
		return fmt.Errorf("renumbering card %s: %w", id, err)
	}
	return nil
}

func updateCard(ctx context.Context, q querier, filter CardFilter, update CardUpdate) error {
	var sets []string
	var args []any
	if update.Order != nil {
		sets = append(sets, "order_value = ?")
		args = append(args, *update.Order)
	}
	if update.ListID != nil {
		sets = append(sets, "list_id = ?", "board_id = (SELECT board_id FROM lists WHERE id = ?)")
		args = append(args, *update.ListID, *update.ListID)
	}
	if len(sets) == 0 {
		return ErrEmptyUpdate
	}

	query := `UPDATE cards SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, filter.ID)
	if filter.WorkspaceID != "" {
		query += ` AND workspace_id = ?`
		args = append(args, filter.WorkspaceID)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if update.ListID != nil && (isNotNullError(err) || isForeignKeyError(err)) {
			return fmt.Errorf("%w: %s", ErrListNotFound, *update.ListID)
		}
		return fmt.Errorf("updating card: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrCardNotFound, filter.ID)
	}
	return nil
}

// ─── Row scanning ───────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(scanner rowScanner) (*Card, error) {
	var c Card
	var completed int
	var fieldsJSON, createdAt string

	err := scanner.Scan(
		&c.ID,
		&c.WorkspaceID,
		&c.BoardID,
		&c.ListID,
		&c.Name,
		&c.Description,
		&c.Order,
		&completed,
		&fieldsJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.IsCompleted = completed != 0
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		c.CreatedAt = t
	}
	if fieldsJSON != "" && fieldsJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(fieldsJSON), &c.CustomFields); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling custom fields: %w", jsonErr)
		}
	}
	return &c, nil
}

// ─── SQL helpers ────────────────────────────────────────────────────────────

// clampIndex maps a requested index onto the slot the card would occupy
// in a sequence of n items.
func clampIndex(idx, n int) int {
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func isNotNullError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not null constraint")
}
