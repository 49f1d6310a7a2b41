package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/boardflow-core/internal/audit"
)

// recordAudit writes an authoring entry. Failures are logged; the change
// itself has already been applied.
func (s *Server) recordAudit(r *http.Request, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	entry.UserID = userID(r)
	entry.Source = audit.SourceAPI
	if err := s.audit.Create(context.WithoutCancel(r.Context()), &entry); err != nil {
		s.logger.Error("recording audit entry failed",
			"workspace_id", entry.WorkspaceID,
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// handleListAudit returns a workspace's authoring history, newest first.
//
// Query parameters:
//   - action: create, update, delete or add_actions
//   - entity_id: a rule ID
//   - limit: 1-200, default 50
//   - offset: non-negative
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := pathID(r, "workspaceID")
	if !ok {
		writeBadRequest(w, "invalid workspace ID")
		return
	}
	if s.audit == nil {
		writeJSON(w, http.StatusOK, audit.Page{Entries: []audit.Entry{}, Limit: audit.DefaultLimit})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		WorkspaceID: workspaceID,
		Action:      q.Get("action"),
		EntityID:    q.Get("entity_id"),
	}
	if len(filter.Action) > maxQueryParamLen || len(filter.EntityID) > maxQueryParamLen {
		writeBadRequest(w, "query parameter exceeds maximum length")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "workspace_id", workspaceID, "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
