package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// createProjectRequest is the body of POST /sheet/projects.
type createProjectRequest struct {
	ID      string   `json:"id"`
	Columns []string `json:"columns"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.Projects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.store.CreateProject(r.Context(), req.ID, req.Columns); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Columns(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	cols := make([]wire.Column, len(names))
	for i, n := range names {
		cols[i] = wire.Column{Name: n}
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	var req wire.AddColumnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.store.AddColumn(r.Context(), project, req.Name); err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(r, project, wire.Event{Kind: wire.KindColumnAdded, Column: req.Name})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveColumn(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	name := chi.URLParam(r, "name")
	if err := s.store.RemoveColumn(r.Context(), project, name); err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(r, project, wire.Event{Kind: wire.KindColumnRemoved, Column: name})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Rows(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows := make([]wire.Row, len(records))
	for i, rec := range records {
		rows[i] = wire.Row{Identity: rec.Identity, Fields: rec.Fields}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	var req wire.AddRowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	identity := s.newID()
	if err := s.store.AddRow(r.Context(), project, identity, req.Fields); err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(r, project, wire.Event{Kind: wire.KindRowAdded, Identities: []string{identity}})
	writeJSON(w, http.StatusOK, wire.AddRowResponse{Identity: identity})
}

func (s *Server) handleRemoveRows(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	var req wire.RemoveRowsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	removed, err := s.store.RemoveRows(r.Context(), project, req.Identities)
	if err != nil {
		writeError(w, err)
		return
	}
	if removed > 0 {
		s.broadcast(r, project, wire.Event{Kind: wire.KindRowsRemoved, Identities: req.Identities})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	var req wire.SetCellRequest
	if !decodeBody(w, r, &req) {
		return
	}

	old, err := s.store.SetCell(r.Context(), project, req.Identity, req.Field, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(r, project, wire.Event{
		Kind: wire.KindCellsChanged,
		Cells: []wire.CellChange{{
			Identity: req.Identity,
			Field:    req.Field,
			OldValue: old,
			NewValue: req.Value,
		}},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.store.Styles(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	styles := make([]wire.CellStyle, 0, len(overrides))
	for key, payload := range overrides {
		styles = append(styles, wire.CellStyle{
			Identity:   key.Identity,
			Field:      key.Header,
			Color:      payload.Color,
			Background: payload.Background,
			Bold:       payload.Bold,
			Italic:     payload.Italic,
		})
	}
	writeJSON(w, http.StatusOK, styles)
}

func (s *Server) handleSetStyle(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	var req wire.SetStyleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	style := sheet.StylePayload{
		Color:      req.Color,
		Background: req.Background,
		Bold:       req.Bold,
		Italic:     req.Italic,
	}
	if err := s.store.SetStyle(r.Context(), project, req.Identity, req.Field, style); err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(r, project, wire.Event{
		Kind: wire.KindStyleChanged,
		Style: &wire.StyleChange{
			Identity:   req.Identity,
			Field:      req.Field,
			Color:      req.Color,
			Background: req.Background,
			Bold:       req.Bold,
			Italic:     req.Italic,
		},
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades to a websocket and forwards the project's
// deltas until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "projectID")
	websocket.Handler(func(conn *websocket.Conn) {
		defer conn.Close()

		ch := s.hub.Subscribe(project)
		defer s.hub.Unsubscribe(project, ch)

		slog.Debug("stream attached", "project", project)
		for ev := range ch {
			if err := websocket.JSON.Send(conn, ev); err != nil {
				slog.Debug("stream detached", "project", project, "error", err)
				return
			}
		}
	}).ServeHTTP(w, r)
}

// broadcast stamps the project's stream sequence on an event and fans
// it out. Sequence failures are logged, not surfaced: the mutation
// already committed.
func (s *Server) broadcast(r *http.Request, project string, ev wire.Event) {
	seq, err := s.store.NextSeq(r.Context(), project)
	if err != nil {
		slog.Error("stream sequence failed", "project", project, "error", err)
		return
	}
	ev.Seq = seq
	ev.Project = project
	s.hub.Broadcast(project, ev)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}

// writeError maps the shared error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case sheet.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case sheet.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case sheet.IsInvariant(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
