package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boardflow-core/internal/audit"
	"github.com/nerrad567/boardflow-core/internal/automation"
)

// maxQueryParamLen limits path and query parameter length.
const maxQueryParamLen = 100

// ruleRequest is the body of a rule create.
type ruleRequest struct {
	ID        string                  `json:"id"`
	GroupType automation.GroupType    `json:"group_type"`
	Type      automation.RuleType     `json:"type"`
	Condition json.RawMessage         `json:"condition"`
	Filters   []automation.Filter     `json:"filters"`
	Actions   []automation.RuleAction `json:"actions"`
	Enabled   *bool                   `json:"enabled"`
	CreatedBy string                  `json:"created_by"`
}

// ruleUpdate is the body of a rule update. Omitted fields keep their value.
type ruleUpdate struct {
	GroupType automation.GroupType `json:"group_type"`
	Type      automation.RuleType  `json:"type"`
	Condition json.RawMessage      `json:"condition"`
	Filters   []automation.Filter  `json:"filters"`
	Enabled   *bool                `json:"enabled"`
}

// pathID reads and bounds-checks a URL parameter.
func pathID(r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	return id, id != "" && len(id) <= maxQueryParamLen
}

// handleListRules returns a workspace's rules.
//
// Query parameters:
//   - group_type: card_move, card_changes or field
//   - type: comma-separated rule types
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := pathID(r, "workspaceID")
	if !ok {
		writeBadRequest(w, "invalid workspace ID")
		return
	}

	filter := automation.RuleFilter{WorkspaceID: workspaceID}
	q := r.URL.Query()
	if g := q.Get("group_type"); g != "" {
		if len(g) > maxQueryParamLen {
			writeBadRequest(w, "group_type exceeds maximum length")
			return
		}
		filter.GroupType = automation.GroupType(g)
	}
	if types := q.Get("type"); types != "" {
		if len(types) > maxQueryParamLen {
			writeBadRequest(w, "type exceeds maximum length")
			return
		}
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, automation.RuleType(t))
			}
		}
	}

	rules, err := s.rules.ListRules(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing rules failed", "workspace_id", workspaceID, "error", err)
		writeInternalError(w, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleCreateRule creates a rule, with its actions, in a workspace.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := pathID(r, "workspaceID")
	if !ok {
		writeBadRequest(w, "invalid workspace ID")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rule := &automation.Rule{
		ID:          req.ID,
		WorkspaceID: workspaceID,
		GroupType:   req.GroupType,
		Type:        req.Type,
		Condition:   req.Condition,
		Filters:     req.Filters,
		Actions:     req.Actions,
		CreatedBy:   req.CreatedBy,
		Enabled:     true,
	}
	if u := userID(r); u != "" {
		rule.CreatedBy = u
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := s.rules.CreateRule(r.Context(), rule); err != nil {
		if !writeServiceError(w, err, "failed to create rule") {
			s.logger.Error("creating rule failed", "workspace_id", workspaceID, "error", err)
		}
		return
	}
	s.recordAudit(r, audit.Entry{
		WorkspaceID: workspaceID,
		Action:      audit.ActionCreate,
		EntityType:  audit.EntityRule,
		EntityID:    rule.ID,
		Details: map[string]any{
			"type":    rule.Type,
			"actions": len(rule.Actions),
			"enabled": rule.Enabled,
		},
	})
	writeJSON(w, http.StatusCreated, rule)
}

// handleGetRule returns a rule with its actions.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if !writeServiceError(w, err, "failed to get rule") {
			s.logger.Error("getting rule failed", "rule_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateRule replaces a rule's trigger, filters or enabled flag.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	var req ruleUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	current, err := s.rules.GetRule(ctx, id)
	if err != nil {
		if !writeServiceError(w, err, "failed to get rule") {
			s.logger.Error("getting rule failed", "rule_id", id, "error", err)
		}
		return
	}

	rule := current.DeepCopy()
	if req.Type != "" {
		rule.Type = req.Type
		rule.GroupType = req.GroupType
	} else if req.GroupType != "" {
		rule.GroupType = req.GroupType
	}
	if req.Condition != nil {
		rule.Condition = req.Condition
	}
	if req.Filters != nil {
		rule.Filters = req.Filters
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		if !writeServiceError(w, err, "failed to update rule") {
			s.logger.Error("updating rule failed", "rule_id", id, "error", err)
		}
		return
	}

	s.recordAudit(r, audit.Entry{
		WorkspaceID: rule.WorkspaceID,
		Action:      audit.ActionUpdate,
		EntityType:  audit.EntityRule,
		EntityID:    id,
		Details:     updateDetails(current, rule),
	})

	updated, err := s.rules.GetRule(ctx, id)
	if err != nil {
		writeInternalError(w, "failed to get rule")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRule removes a rule and its actions.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	ctx := r.Context()
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		if !writeServiceError(w, err, "failed to get rule") {
			s.logger.Error("getting rule failed", "rule_id", id, "error", err)
		}
		return
	}

	if err := s.rules.DeleteRule(ctx, id); err != nil {
		if !writeServiceError(w, err, "failed to delete rule") {
			s.logger.Error("deleting rule failed", "rule_id", id, "error", err)
		}
		return
	}
	s.recordAudit(r, audit.Entry{
		WorkspaceID: rule.WorkspaceID,
		Action:      audit.ActionDelete,
		EntityType:  audit.EntityRule,
		EntityID:    id,
		Details:     map[string]any{"type": rule.Type},
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleListActions returns a rule's actions in sort order.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	actions, err := s.rules.GetActions(r.Context(), id)
	if err != nil {
		if !writeServiceError(w, err, "failed to list actions") {
			s.logger.Error("listing actions failed", "rule_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "count": len(actions)})
}

// handleAddActions appends actions to a rule. The body is either a single
// action object or an array.
func (s *Server) handleAddActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	var actions []automation.RuleAction
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &actions); err != nil {
			writeBadRequest(w, "invalid actions: "+err.Error())
			return
		}
	} else {
		var one automation.RuleAction
		if err := json.Unmarshal(raw, &one); err != nil {
			writeBadRequest(w, "invalid action: "+err.Error())
			return
		}
		actions = []automation.RuleAction{one}
	}
	if len(actions) == 0 {
		writeBadRequest(w, "at least one action is required")
		return
	}

	ctx := r.Context()
	if err := s.rules.AddActions(ctx, id, actions); err != nil {
		if !writeServiceError(w, err, "failed to add actions") {
			s.logger.Error("adding actions failed", "rule_id", id, "error", err)
		}
		return
	}
	if rule, err := s.rules.GetRule(ctx, id); err == nil {
		s.recordAudit(r, audit.Entry{
			WorkspaceID: rule.WorkspaceID,
			Action:      audit.ActionAddActions,
			EntityType:  audit.EntityRule,
			EntityID:    id,
			Details:     map[string]any{"added": len(actions), "actions": len(rule.Actions)},
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"actions": actions, "count": len(actions)})
}

// handleListExecutions returns a rule's most recent runs.
//
// Query parameters:
//   - limit: 1-100, default 10
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid rule ID")
		return
	}
	if s.executions == nil {
		writeJSON(w, http.StatusOK, map[string]any{"executions": []automation.RuleExecution{}, "count": 0})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx := r.Context()
	if _, err := s.rules.GetRule(ctx, id); err != nil {
		if !writeServiceError(w, err, "failed to get rule") {
			s.logger.Error("getting rule failed", "rule_id", id, "error", err)
		}
		return
	}

	execs, err := s.executions.ListExecutions(ctx, id, limit)
	if err != nil {
		s.logger.Error("listing executions failed", "rule_id", id, "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []automation.RuleExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

// updateDetails lists the fields an update changed.
func updateDetails(before, after *automation.Rule) map[string]any {
	changed := []string{}
	if before.Type != after.Type || before.GroupType != after.GroupType {
		changed = append(changed, "type")
	}
	if string(before.Condition) != string(after.Condition) {
		changed = append(changed, "condition")
	}
	if !sameFilters(before.Filters, after.Filters) {
		changed = append(changed, "filters")
	}
	if before.Enabled != after.Enabled {
		changed = append(changed, "enabled")
	}
	return map[string]any{"changed": changed}
}

func sameFilters(a, b []automation.Filter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || string(a[i].Condition) != string(b[i].Condition) {
			return false
		}
	}
	return true
}
