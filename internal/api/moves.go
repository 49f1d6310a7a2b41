package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/ordering"
)

var errBadPosition = errors.New(`position must be "top", "bottom" or a non-negative index`)

// moveRequest is the body of a card or list move.
type moveRequest struct {
	// ToListID moves a card to another list. Ignored for list moves.
	ToListID string          `json:"to_list_id"`
	Position json.RawMessage `json:"position"`
}

// parsePosition accepts "top", "bottom" (or their _of_list forms) and
// zero-based integer indexes.
func parsePosition(raw json.RawMessage) (ordering.Position, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ordering.Position{}, errBadPosition
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "top", "top_of_list":
			return ordering.Top(), nil
		case "bottom", "bottom_of_list":
			return ordering.Bottom(), nil
		}
		return ordering.Position{}, fmt.Errorf("%w: got %q", errBadPosition, name)
	}

	var idx int
	if err := json.Unmarshal(raw, &idx); err != nil || idx < 0 {
		return ordering.Position{}, errBadPosition
	}
	return ordering.AtIndex(idx), nil
}

func decodeMove(w http.ResponseWriter, r *http.Request) (moveRequest, ordering.Position, bool) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return req, ordering.Position{}, false
	}
	pos, err := parsePosition(req.Position)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return req, ordering.Position{}, false
	}
	return req, pos, true
}

// handleMoveCard repositions a card within its list or into another list
// on a board of the same workspace, then publishes the move events.
func (s *Server) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid card ID")
		return
	}
	req, pos, ok := decodeMove(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	card, err := s.boards.GetCard(ctx, id)
	if err != nil {
		if !writeServiceError(w, err, "failed to get card") {
			s.logger.Error("getting card failed", "card_id", id, "error", err)
		}
		return
	}

	if req.ToListID != "" && req.ToListID != card.ListID {
		ws, err := s.listWorkspace(r, req.ToListID)
		if err != nil {
			if !writeServiceError(w, err, "failed to get target list") {
				s.logger.Error("getting target list failed", "list_id", req.ToListID, "error", err)
			}
			return
		}
		if ws != card.WorkspaceID {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "target list belongs to another workspace")
			return
		}
	}

	result, err := s.boards.MoveCard(ctx, board.MoveCardRequest{CardID: id, ToListID: req.ToListID, Position: pos})
	if err != nil {
		if !writeServiceError(w, err, "failed to move card") {
			s.logger.Error("moving card failed", "card_id", id, "error", err)
		}
		return
	}

	events := result.Events(card.WorkspaceID, userID(r))
	s.publish(r, events)

	writeJSON(w, http.StatusOK, map[string]any{
		"card":       result.Card,
		"moved":      result.Moved,
		"renumbered": result.Renumbered,
		"events":     eventTypes(events),
	})
}

// handleMoveList repositions a list on its board and publishes list.moved.
func (s *Server) handleMoveList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, "invalid list ID")
		return
	}
	_, pos, ok := decodeMove(w, r)
	if !ok {
		return
	}

	ws, err := s.listWorkspace(r, id)
	if err != nil {
		if !writeServiceError(w, err, "failed to get list") {
			s.logger.Error("getting list failed", "list_id", id, "error", err)
		}
		return
	}

	result, err := s.boards.MoveList(r.Context(), board.MoveListRequest{ListID: id, Position: pos})
	if err != nil {
		if !writeServiceError(w, err, "failed to move list") {
			s.logger.Error("moving list failed", "list_id", id, "error", err)
		}
		return
	}

	var events []event.DomainEvent
	if ev, ok := result.Event(ws, userID(r)); ok {
		events = append(events, ev)
	}
	s.publish(r, events)

	writeJSON(w, http.StatusOK, map[string]any{
		"list":       result.List,
		"moved":      result.Moved,
		"renumbered": result.Renumbered,
		"events":     eventTypes(events),
	})
}

// listWorkspace resolves the workspace a list belongs to through its board.
func (s *Server) listWorkspace(r *http.Request, listID string) (string, error) {
	list, err := s.boards.GetList(r.Context(), listID)
	if err != nil {
		return "", err
	}
	b, err := s.boards.GetBoard(r.Context(), list.BoardID)
	if err != nil {
		return "", err
	}
	return b.WorkspaceID, nil
}

// publish hands events to the transport. The mutation already committed, so
// publishing outlives the request.
func (s *Server) publish(r *http.Request, events []event.DomainEvent) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.PublishAll(context.WithoutCancel(r.Context()), events)
}

func eventTypes(events []event.DomainEvent) []event.Type {
	types := make([]event.Type, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
