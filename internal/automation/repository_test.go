package automation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCreateAndGetRule(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rule := listRule("", "L1",
		moveAction(NamedPosition(PositionTopOfList)),
		RuleAction{SortOrder: 1, Condition: ActionCondition{Action: ActionMove, Position: IndexPosition(2)}},
	)
	rule.Filters = []Filter{{Type: FilterListInclusion, Condition: json.RawMessage(`{"inclusion":"in","list":["L1"]}`)}}

	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if rule.ID == "" {
		t.Fatal("CreateRule() did not assign an ID")
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Type != TypeCardInList || got.GroupType != GroupCardMove || !got.Enabled || got.CreatedBy != "U1" {
		t.Errorf("GetRule() = %+v", got)
	}
	if len(got.Filters) != 1 || got.Filters[0].Type != FilterListInclusion {
		t.Errorf("Filters = %+v", got.Filters)
	}
	if len(got.Actions) != 2 {
		t.Fatalf("len(Actions) = %d, want 2", len(got.Actions))
	}
	if got.Actions[0].Condition.Position != NamedPosition(PositionTopOfList) {
		t.Errorf("Actions[0].Position = %v", got.Actions[0].Condition.Position)
	}
	if got.Actions[1].Condition.Position != IndexPosition(2) {
		t.Errorf("Actions[1].Position = %v", got.Actions[1].Condition.Position)
	}
	if got.Actions[0].Type != ActionTypeCard || got.Actions[0].RuleID != rule.ID {
		t.Errorf("Actions[0] = %+v", got.Actions[0])
	}

	if err := repo.CreateRule(ctx, listRule(rule.ID, "L1")); !errors.Is(err, ErrRuleExists) {
		t.Errorf("CreateRule(duplicate) error = %v, want ErrRuleExists", err)
	}
	if _, err := repo.GetRule(ctx, "missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule(missing) error = %v, want ErrRuleNotFound", err)
	}
}

func TestCreateRuleRollsBackOnActionFailure(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	dup := moveAction(NamedPosition(PositionTopOfList))
	dup.ID = "A1"
	rule := listRule("R1", "L1", dup, dup)

	if err := repo.CreateRule(ctx, rule); !errors.Is(err, ErrRuleExists) {
		t.Fatalf("CreateRule() error = %v, want ErrRuleExists", err)
	}
	if _, err := repo.GetRule(ctx, "R1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("rule persisted despite failed actions: %v", err)
	}
}

func TestGetRuleListAndMatchRules(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rules := []*Rule{
		listRule("R1", "L1", moveAction(NamedPosition(PositionTopOfList))),
		listRule("R2", "L2"),
		{ID: "R3", WorkspaceID: "W1", GroupType: GroupCardChanges, Type: TypeCardMarkedComplete,
			Condition: json.RawMessage(`{"by":"anyone","action":"complete"}`), Enabled: true},
		{ID: "R4", WorkspaceID: "W2", GroupType: GroupCardMove, Type: TypeCardInList,
			Condition: json.RawMessage(`{"list_id":"L1","by":"anyone","action":"added"}`), Enabled: true},
	}
	rules[1].Enabled = false
	for i, r := range rules {
		r.CreatedAt = time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC)
		if err := repo.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) error = %v", r.ID, err)
		}
	}

	tests := []struct {
		name    string
		filter  RuleFilter
		match   bool
		wantIDs []string
	}{
		{"all", RuleFilter{}, false, []string{"R1", "R2", "R3", "R4"}},
		{"workspace", RuleFilter{WorkspaceID: "W1"}, false, []string{"R1", "R2", "R3"}},
		{"group", RuleFilter{WorkspaceID: "W1", GroupType: GroupCardChanges}, false, []string{"R3"}},
		{"types", RuleFilter{WorkspaceID: "W1", Types: []RuleType{TypeCardInList, TypeCardInBoard}}, false, []string{"R1", "R2"}},
		{"match skips disabled", RuleFilter{WorkspaceID: "W1", Types: []RuleType{TypeCardInList}}, true, []string{"R1"}},
		{"no rules", RuleFilter{WorkspaceID: "W9"}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Rule
			var err error
			if tt.match {
				got, err = repo.MatchRules(ctx, tt.filter)
			} else {
				got, err = repo.GetRuleList(ctx, tt.filter)
			}
			if err != nil {
				t.Fatalf("query error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d rules, want %v", len(got), tt.wantIDs)
			}
			for i, r := range got {
				if r.ID != tt.wantIDs[i] {
					t.Errorf("rule[%d] = %s, want %s", i, r.ID, tt.wantIDs[i])
				}
			}
		})
	}

	all, err := repo.GetRuleList(ctx, RuleFilter{WorkspaceID: "W1"})
	if err != nil {
		t.Fatalf("GetRuleList() error = %v", err)
	}
	if len(all[0].Actions) != 1 || len(all[1].Actions) != 0 {
		t.Errorf("actions not attached per rule: %d, %d", len(all[0].Actions), len(all[1].Actions))
	}
}

func TestBulkCreateActions(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateRule(ctx, listRule("R1", "L1")); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	actions := []RuleAction{
		{SortOrder: 2, Condition: ActionCondition{Action: ActionMove, Position: NamedPosition(PositionBottomOfList)}},
		{SortOrder: 1, Condition: ActionCondition{Action: ActionCopy}},
	}
	if err := repo.BulkCreateActions(ctx, "R1", actions); err != nil {
		t.Fatalf("BulkCreateActions() error = %v", err)
	}

	got, err := repo.GetActionsByRuleId(ctx, "R1")
	if err != nil {
		t.Fatalf("GetActionsByRuleId() error = %v", err)
	}
	if len(got) != 2 || got[0].Condition.Action != ActionCopy || got[1].Condition.Action != ActionMove {
		t.Errorf("GetActionsByRuleId() = %+v, want copy then move", got)
	}

	if err := repo.BulkCreateActions(ctx, "missing", actions[:1]); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("BulkCreateActions(missing) error = %v, want ErrRuleNotFound", err)
	}
}

func TestUpdateAndDeleteRule(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rule := listRule("R1", "L1", moveAction(NamedPosition(PositionTopOfList)))
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	rule.Enabled = false
	rule.Condition = json.RawMessage(`{"list_id":"L2","by":"anyone","action":"added"}`)
	if err := repo.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("UpdateRule() error = %v", err)
	}
	got, err := repo.GetRule(ctx, "R1")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Enabled || string(got.Condition) != string(rule.Condition) || len(got.Actions) != 1 {
		t.Errorf("GetRule() after update = %+v", got)
	}

	if err := repo.DeleteRule(ctx, "R1"); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if err := repo.DeleteRule(ctx, "R1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("DeleteRule(again) error = %v, want ErrRuleNotFound", err)
	}
	if err := repo.UpdateRule(ctx, rule); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("UpdateRule(deleted) error = %v, want ErrRuleNotFound", err)
	}
}

func TestExecutions(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateRule(ctx, listRule("R1", "L1")); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Minute)
		completed := started.Add(time.Second)
		ms := 1000
		exec := &RuleExecution{
			RuleID:       "R1",
			WorkspaceID:  "W1",
			EventID:      "E" + string(rune('1'+i)),
			EventType:    "card.moved",
			Status:       StatusCompleted,
			ActionsTotal: 1,
			StartedAt:    started,
			CompletedAt:  &completed,
			DurationMS:   &ms,
		}
		if i == 2 {
			exec.Status = StatusFailed
			exec.ActionsFailed = 1
			exec.Failures = []ActionFailure{{ActionID: "A1", Action: ActionMove, ErrorMsg: "no adjacent list"}}
		}
		if err := repo.CreateExecution(ctx, exec); err != nil {
			t.Fatalf("CreateExecution() error = %v", err)
		}
	}

	got, err := repo.ListExecutions(ctx, "R1", 2)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].EventID != "E3" || got[0].Status != StatusFailed {
		t.Errorf("newest = %+v, want E3 failed", got[0])
	}
	if len(got[0].Failures) != 1 || got[0].Failures[0].ErrorMsg != "no adjacent list" {
		t.Errorf("Failures = %+v", got[0].Failures)
	}
	if got[1].DurationMS == nil || *got[1].DurationMS != 1000 || got[1].CompletedAt == nil {
		t.Errorf("second = %+v", got[1])
	}

	empty, err := repo.ListExecutions(ctx, "R9", 0)
	if err != nil || len(empty) != 0 {
		t.Errorf("ListExecutions(unknown) = %v, %v", empty, err)
	}
}
