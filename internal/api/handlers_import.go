package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/inkport/internal/pipeline"
	"github.com/dgallion1/inkport/internal/route"
)

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	filename := sanitizeFilename(header.Filename)

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusBadRequest)
		return
	}

	if src := route.Detect(data, filename); src.Kind == route.KindUnknown {
		msg := "unsupported file type: " + filepath.Ext(filename)
		switch {
		case src.MIME != "":
			msg = "unsupported file type: " + src.MIME
		case route.IsSupportedExtension(filename):
			msg = "file content does not match its " + filepath.Ext(filename) + " extension"
		}
		jsonError(w, msg, http.StatusUnsupportedMediaType)
		return
	}

	page := 0
	if v := r.FormValue("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		page = n
	}

	// The claim is taken now so that the newest upload wins the surface.
	job := pipeline.NewJob(sess.ID, filename, data, page, sess.Surface().Claim())
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if wait, _ := strconv.ParseBool(r.FormValue("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ImportTimeout)
		defer cancel()
		snap, err := job.Wait(ctx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			// Client went away; the job keeps running.
			return
		}
		code := http.StatusOK
		if !snap.Status.Terminal() {
			code = http.StatusAccepted
		}
		writeJSON(w, code, snap)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"session_id": sess.ID,
		"status":     pipeline.StatusQueued,
		"poll_url":   fmt.Sprintf("/api/imports/%s/status", job.ID),
	})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
