package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/inkport/internal/filter"
	"github.com/dgallion1/inkport/internal/session"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

type boundsRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	req := boundsRequest{Width: s.cfg.DefaultHostWidth, Height: s.cfg.DefaultHostHeight}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Width < 0 || req.Height < 0 {
		jsonError(w, "width and height must not be negative", http.StatusBadRequest)
		return
	}

	sess := s.sessions.Create(surface.Bounds{Width: req.Width, Height: req.Height})
	s.log.Info().Str("session_id", sess.ID).Float64("width", req.Width).Float64("height", req.Height).Msg("session created")
	writeJSON(w, http.StatusCreated, sess.Summary())
}

// session resolves the {sessionID} URL parameter, answering 404 itself
// when the session does not exist.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
	}
	return sess
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.Delete(id) {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSVG serves the committed tree with the session's filter applied.
func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	view := sess.View()
	if view == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := svgtree.Marshal(view)
	if err != nil {
		jsonError(w, "encode svg: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var sel filter.Selection
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&sel); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	sess.SetSelection(sel)
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handleResize changes the host bounds used by later imports. The committed
// drawing keeps the size it was fitted to.
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req boundsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Width < 0 || req.Height < 0 {
		jsonError(w, "width and height must not be negative", http.StatusBadRequest)
		return
	}
	sess.Surface().Resize(surface.Bounds{Width: req.Width, Height: req.Height})
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handleClearImport removes the committed drawing. Imports still in flight
// for the session are discarded when they finish.
func (s *Server) handleClearImport(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	sess.Surface().Clear()
	writeJSON(w, http.StatusOK, sess.Summary())
}
