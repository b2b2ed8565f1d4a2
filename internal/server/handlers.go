package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/source"
)

type columnJSON struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Type  string `json:"type"`
}

type modelJSON struct {
	Source  string       `json:"source"`
	URI     string       `json:"uri"`
	Kind    source.Kind  `json:"kind"`
	Table   string       `json:"table"`
	Columns []columnJSON `json:"columns"`
	Key     []string     `json:"key"`
}

type rowsJSON struct {
	Source    string       `json:"source"`
	Columns   []string     `json:"columns"`
	Rows      []source.Row `json:"rows"`
	LastIndex int64        `json:"last_index"`
	Truncated bool         `json:"truncated"`
}

type errorJSON struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"sources": s.cat.Names()})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	src, err := s.cat.Open(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := src.Model(r.Context())
	s.closeSource(r, src)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := modelJSON{
		Source:  name,
		URI:     src.URI(),
		Kind:    src.Kind(),
		Table:   m.Name(),
		Columns: make([]columnJSON, 0, m.Width()),
		Key:     m.KeyColumnNames(),
	}
	for _, c := range m.Columns() {
		out.Columns = append(out.Columns, columnJSON{Name: c.Name, Index: c.Index, Type: c.Type.String()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit, err := s.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	src, err := s.cat.Open(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := src.Open(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	defer s.closeSource(r, src)

	m, err := src.Model(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := rowsJSON{Source: name, Columns: m.ColumnNames(), Rows: make([]source.Row, 0, min(limit, DefaultLimit))}
	for {
		row, err := src.NextRow()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if row == nil {
			break
		}
		if len(out.Rows) == limit {
			out.Truncated = true
			break
		}
		out.Rows = append(out.Rows, row)
		out.LastIndex = src.LastIndex()
	}
	if len(out.Rows) == 0 {
		out.LastIndex = -1
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) parseLimit(raw string) (int, error) {
	if raw == "" {
		if s.cfg.MaxRows > 0 {
			return min(DefaultLimit, s.cfg.MaxRows), nil
		}
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "limit must be a non-negative integer, got %q", raw)
	}
	if s.cfg.MaxRows > 0 && n > s.cfg.MaxRows {
		n = s.cfg.MaxRows
	}
	return n, nil
}

// closeSource closes only sources that reached the open state.
func (s *Server) closeSource(r *http.Request, src source.RowSource) {
	if st, ok := src.(interface{ State() source.State }); ok && st.State() != source.StateOpen {
		return
	}
	if err := src.Close(); err != nil {
		logger.FromContext(r.Context()).WarnWith("close source", err, map[string]any{"uri": src.URI()})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WarnWith("encode response", err, nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]any{"status": status})
	}
	s.writeJSON(w, status, errorJSON{Error: err.Error(), Kind: errs.KindOf(err).String()})
}

// statusOf maps an error kind to the HTTP status reported for it.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput, errs.ErrKindUnsupported:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindShapeMismatch, errs.ErrKindParse, errs.ErrKindResourceFailed:
		return http.StatusUnprocessableEntity
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
