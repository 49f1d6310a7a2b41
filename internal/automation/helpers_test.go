package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/database"
	_ "github.com/nerrad567/boardflow-core/migrations"
)

// setupTestDB opens a migrated in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// setupBoard seeds board B1 with lists L0, L1, L2 (in that order) and
// returns the board repository.
func setupBoard(t *testing.T, db *sql.DB) *board.SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	boards := board.NewSQLiteRepository(db)
	if err := boards.CreateBoard(ctx, &board.Board{ID: "B1", WorkspaceID: "W1", Name: "Sprint"}); err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	for _, l := range []board.List{
		{ID: "L0", BoardID: "B1", Name: "Todo", Order: 1000},
		{ID: "L1", BoardID: "B1", Name: "Doing", Order: 11000},
		{ID: "L2", BoardID: "B1", Name: "Done", Order: 21000},
	} {
		if err := boards.CreateList(ctx, &l); err != nil {
			t.Fatalf("CreateList(%s): %v", l.ID, err)
		}
	}
	return boards
}

func seedCard(t *testing.T, boards *board.SQLiteRepository, id, listID string, order float64) *board.Card {
	t.Helper()
	card := &board.Card{ID: id, WorkspaceID: "W1", ListID: listID, Name: "card " + id, Order: order}
	if err := boards.CreateCard(context.Background(), card); err != nil {
		t.Fatalf("CreateCard(%s): %v", id, err)
	}
	return card
}

func getCard(t *testing.T, boards *board.SQLiteRepository, id string) *board.Card {
	t.Helper()
	card, err := boards.GetCard(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCard(%s): %v", id, err)
	}
	return card
}

// listRule builds an enabled card_in_list rule for W1 firing when a card is
// added to listID.
func listRule(id, listID string, actions ...RuleAction) *Rule {
	return &Rule{
		ID:          id,
		WorkspaceID: "W1",
		GroupType:   GroupCardMove,
		Type:        TypeCardInList,
		Condition:   json.RawMessage(`{"list_id":"` + listID + `","by":"anyone","action":"added"}`),
		Enabled:     true,
		CreatedBy:   "U1",
		Actions:     actions,
	}
}

func moveAction(pos ActionPosition) RuleAction {
	return RuleAction{Condition: ActionCondition{Action: ActionMove, Position: pos}}
}
