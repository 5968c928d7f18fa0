package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/inkport/internal/classify"
	"github.com/dgallion1/inkport/internal/surface"
	"github.com/dgallion1/inkport/internal/svgtree"
)

// handleAnalyse sends the committed tree to the analysis service, commits
// the cleaned tree it returns and stores its classes on the session.
func (s *Server) handleAnalyse(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if !s.classifier.Configured() {
		jsonError(w, classify.ErrNotConfigured.Error(), http.StatusServiceUnavailable)
		return
	}

	surf := sess.Surface()
	// A claim taken before the call lets an import submitted meanwhile win.
	claim := surf.Claim()
	tree := surf.Current()
	if tree == nil {
		jsonError(w, "nothing imported", http.StatusConflict)
		return
	}
	vp, ok := surface.CommittedViewport(tree)
	if !ok {
		jsonError(w, "committed drawing has no viewBox", http.StatusConflict)
		return
	}
	svg, err := svgtree.Marshal(tree)
	if err != nil {
		jsonError(w, "encode svg: "+err.Error(), http.StatusInternalServerError)
		return
	}

	log := s.log.With().Str("session_id", sess.ID).Logger()
	analysis, err := s.classifier.Analyse(r.Context(), string(svg))
	if err != nil {
		log.Error().Err(err).Msg("analysis failed")
		jsonError(w, "analysis failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	cleaned, err := svgtree.ParseString(analysis.SVG)
	if err == nil && cleaned.Tag != "svg" {
		err = errors.New("root element is <" + cleaned.Tag + ">")
	}
	if err != nil {
		log.Error().Err(err).Msg("analysis returned unusable svg")
		jsonError(w, "analysis returned unusable svg: "+err.Error(), http.StatusBadGateway)
		return
	}

	scale, err := surface.Commit(claim, cleaned, vp)
	if errors.Is(err, surface.ErrStaleImport) {
		jsonError(w, "a newer import replaced the drawing during analysis", http.StatusConflict)
		return
	}
	if err != nil {
		jsonError(w, "commit: "+err.Error(), http.StatusInternalServerError)
		return
	}
	version := surf.Version()
	sess.SetClasses(analysis.Classes, version)
	log.Info().Int("tags", len(analysis.Classes.Tags)).Int("strokes", len(analysis.Classes.StrokesPx)).Msg("analysis committed")

	resp := map[string]any{
		"session_id": sess.ID,
		"version":    version,
		"scale":      scale,
		"classes":    analysis.Classes,
	}
	if len(analysis.Stats) > 0 {
		resp["stats"] = json.RawMessage(analysis.Stats)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClassifyStats(w http.ResponseWriter, r *http.Request) {
	if !s.classifier.Configured() {
		jsonError(w, "classification stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": s.classifier.Stats(),
	})
}
