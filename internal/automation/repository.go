package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/boardflow-core/internal/infrastructure/database"
)

// RuleRepository defines rule persistence.
type RuleRepository interface {
	// Rules
	GetRuleList(ctx context.Context, filter RuleFilter) ([]Rule, error)
	MatchRules(ctx context.Context, filter RuleFilter) ([]Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id string) error

	// Actions
	BulkCreateActions(ctx context.Context, ruleID string, actions []RuleAction) error
	GetActionsByRuleId(ctx context.Context, ruleID string) ([]RuleAction, error)

	// Execution logging
	CreateExecution(ctx context.Context, exec *RuleExecution) error
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]RuleExecution, error)
}

const ruleColumns = `id, workspace_id, group_type, type, condition, filters,
			created_by, enabled, created_at, updated_at`

const actionColumns = `id, rule_id, type, condition, sort_order`

const executionColumns = `id, rule_id, workspace_id, event_id, event_type, status,
			actions_total, actions_failed, failures, started_at, completed_at, duration_ms`

// SQLiteRepository implements RuleRepository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed rule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetRuleList returns every rule matching filter, with actions attached,
// ordered by creation time.
func (r *SQLiteRepository) GetRuleList(ctx context.Context, filter RuleFilter) ([]Rule, error) {
	return r.queryRules(ctx, filter, false)
}

// MatchRules is GetRuleList restricted to enabled rules.
func (r *SQLiteRepository) MatchRules(ctx context.Context, filter RuleFilter) ([]Rule, error) {
	return r.queryRules(ctx, filter, true)
}

// GetRule retrieves a rule and its actions by ID.
func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by id: %w", err)
	}

	actions, err := r.GetActionsByRuleId(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Actions = actions
	return rule, nil
}

// CreateRule inserts a rule and its actions in one transaction. Missing IDs
// are generated.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	conditionJSON, filtersJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO automation_rules (
				id, workspace_id, group_type, type, condition, filters,
				created_by, enabled, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID,
			rule.WorkspaceID,
			string(rule.GroupType),
			string(rule.Type),
			conditionJSON,
			filtersJSON,
			rule.CreatedBy,
			boolToInt(rule.Enabled),
			rule.CreatedAt.Format(time.RFC3339),
			rule.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrRuleExists
			}
			return fmt.Errorf("inserting rule: %w", err)
		}
		return insertActions(ctx, tx, rule.ID, rule.Actions)
	})
}

// UpdateRule rewrites a rule's condition, filters and enabled flag.
// Actions are not touched.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule *Rule) error {
	conditionJSON, filtersJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules SET
			group_type = ?, type = ?, condition = ?, filters = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		string(rule.GroupType),
		string(rule.Type),
		conditionJSON,
		filtersJSON,
		boolToInt(rule.Enabled),
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	return expectOneRow(result, ErrRuleNotFound)
}

// DeleteRule removes a rule; its actions and executions cascade.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return expectOneRow(result, ErrRuleNotFound)
}

// BulkCreateActions inserts actions for an existing rule in one transaction.
func (r *SQLiteRepository) BulkCreateActions(ctx context.Context, ruleID string, actions []RuleAction) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM automation_rules WHERE id = ?`, ruleID).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRuleNotFound
			}
			return fmt.Errorf("checking rule: %w", err)
		}
		return insertActions(ctx, tx, ruleID, actions)
	})
}

// GetActionsByRuleId returns a rule's actions ordered by sort_order.
func (r *SQLiteRepository) GetActionsByRuleId(ctx context.Context, ruleID string) ([]RuleAction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM automation_rule_actions WHERE rule_id = ? ORDER BY sort_order, id`,
		ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	actions := []RuleAction{}
	for rows.Next() {
		a, scanErr := scanAction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning action: %w", scanErr)
		}
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

// CreateExecution inserts a completed execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *RuleExecution) error {
	if exec.ID == "" {
		exec.ID = GenerateID()
	}
	failuresJSON, err := marshalFailures(exec.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rule_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.RuleID,
		exec.WorkspaceID,
		exec.EventID,
		exec.EventType,
		string(exec.Status),
		exec.ActionsTotal,
		exec.ActionsFailed,
		failuresJSON,
		exec.StartedAt.Format(time.RFC3339),
		nullableTime(exec.CompletedAt),
		exec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// ListExecutions retrieves recent executions for a rule, newest first.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, ruleID string, limit int) ([]RuleExecution, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM rule_executions
		WHERE rule_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	executions := []RuleExecution{}
	for rows.Next() {
		exec, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		executions = append(executions, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return executions, nil
}

// queryRules loads rules matching filter and attaches their actions with a
// second query over the same predicate.
func (r *SQLiteRepository) queryRules(ctx context.Context, filter RuleFilter, enabledOnly bool) ([]Rule, error) {
	where, args := ruleWhere(filter, enabledOnly)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	index := make(map[string]int)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning rule: %w", scanErr)
		}
		index[rule.ID] = len(rules)
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	if len(rules) == 0 {
		return rules, nil
	}

	actionRows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.rule_id, a.type, a.condition, a.sort_order
		FROM automation_rule_actions a
		JOIN automation_rules ON automation_rules.id = a.rule_id`+where+`
		ORDER BY a.rule_id, a.sort_order, a.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rule actions: %w", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		a, scanErr := scanAction(actionRows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning action: %w", scanErr)
		}
		if i, ok := index[a.RuleID]; ok {
			rules[i].Actions = append(rules[i].Actions, *a)
		}
	}
	if err := actionRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule actions: %w", err)
	}
	return rules, nil
}

// ruleWhere builds the WHERE clause for a RuleFilter. Columns are qualified
// so the clause works in the action join.
func ruleWhere(filter RuleFilter, enabledOnly bool) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.WorkspaceID != "" {
		clauses = append(clauses, "automation_rules.workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.GroupType != "" {
		clauses = append(clauses, "automation_rules.group_type = ?")
		args = append(args, string(filter.GroupType))
	}
	if len(filter.Types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Types)), ", ")
		clauses = append(clauses, "automation_rules.type IN ("+placeholders+")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if enabledOnly {
		clauses = append(clauses, "automation_rules.enabled = 1")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func insertActions(ctx context.Context, tx execer, ruleID string, actions []RuleAction) error {
	for i := range actions {
		a := &actions[i]
		if a.ID == "" {
			a.ID = GenerateID()
		}
		if a.Type == "" {
			a.Type = ActionTypeCard
		}
		a.RuleID = ruleID

		conditionJSON, err := json.Marshal(a.Condition)
		if err != nil {
			return fmt.Errorf("marshalling action condition: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO automation_rule_actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.RuleID, a.Type, string(conditionJSON), a.SortOrder,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: action %s", ErrRuleExists, a.ID)
			}
			return fmt.Errorf("inserting action: %w", err)
		}
	}
	return nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(scanner rowScanner) (*Rule, error) {
	var rule Rule
	var groupType, ruleType, conditionJSON, filtersJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rule.ID,
		&rule.WorkspaceID,
		&groupType,
		&ruleType,
		&conditionJSON,
		&filtersJSON,
		&rule.CreatedBy,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.GroupType = GroupType(groupType)
	rule.Type = RuleType(ruleType)
	rule.Condition = json.RawMessage(conditionJSON)
	rule.Enabled = enabled != 0

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		rule.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		rule.UpdatedAt = t
	}

	if filtersJSON != "" && filtersJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(filtersJSON), &rule.Filters); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling filters: %w", jsonErr)
		}
	}
	if rule.Filters == nil {
		rule.Filters = []Filter{}
	}
	rule.Actions = []RuleAction{}
	return &rule, nil
}

func scanAction(scanner rowScanner) (*RuleAction, error) {
	var a RuleAction
	var conditionJSON string
	if err := scanner.Scan(&a.ID, &a.RuleID, &a.Type, &conditionJSON, &a.SortOrder); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conditionJSON), &a.Condition); err != nil {
		return nil, fmt.Errorf("unmarshalling action condition: %w", err)
	}
	return &a, nil
}

func scanExecution(scanner rowScanner) (*RuleExecution, error) {
	var e RuleExecution
	var status, startedAt string
	var completedAt, failuresJSON sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&e.ID,
		&e.RuleID,
		&e.WorkspaceID,
		&e.EventID,
		&e.EventType,
		&status,
		&e.ActionsTotal,
		&e.ActionsFailed,
		&failuresJSON,
		&startedAt,
		&completedAt,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	e.Status = ExecutionStatus(status)
	if t, parseErr := time.Parse(time.RFC3339, startedAt); parseErr == nil {
		e.StartedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			e.CompletedAt = &t
		}
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		e.DurationMS = &d
	}
	if failuresJSON.Valid && failuresJSON.String != "" && failuresJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(failuresJSON.String), &e.Failures); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", jsonErr)
		}
	}
	return &e, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func marshalRuleJSON(rule *Rule) (condition, filters string, err error) {
	cond := rule.Condition
	if len(cond) == 0 {
		cond = json.RawMessage("{}")
	}
	f := rule.Filters
	if f == nil {
		f = []Filter{}
	}
	filtersJSON, err := json.Marshal(f)
	if err != nil {
		return "", "", fmt.Errorf("marshalling filters: %w", err)
	}
	return string(cond), string(filtersJSON), nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalFailures(failures []ActionFailure) (sql.NullString, error) {
	if len(failures) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
