package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/normalize"
	"github.com/project-reconciler/internal/types"
)

// UpsertResponse is returned for a single ingested payload.
type UpsertResponse struct {
	ProjectUID     string              `json:"project_uid"`
	Action         models.UpsertAction `json:"action"`
	PreferIncoming bool                `json:"prefer_incoming"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// PreviewResponse shows the record before and after a would-be upsert.
type PreviewResponse struct {
	Before         *models.Project `json:"before"`
	After          *models.Project `json:"after"`
	PreferIncoming bool            `json:"prefer_incoming"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// handleUpsertProject handles POST /api/sources/{source}/projects
func (s *Server) handleUpsertProject(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]

	var payload types.Document
	if err := s.decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Request body must be a JSON object", map[string]interface{}{
			"reason": err.Error(),
		})
		return
	}

	res, err := s.projects.UpsertWithResult(r.Context(), payload, source)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if res.Action == models.UpsertInserted {
		status = http.StatusCreated
	}
	respondJSON(w, status, UpsertResponse{
		ProjectUID:     res.Project.UID,
		Action:         res.Action,
		PreferIncoming: res.PreferIncoming,
		Warnings:       warningStrings(res.Warnings),
	})
}

// handleBulkUpsert handles POST /api/sources/{source}/projects:bulk
func (s *Server) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]

	var payloads []types.Document
	if err := s.decodeBody(w, r, &payloads); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Request body must be a JSON array of objects", map[string]interface{}{
			"reason": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, s.projects.BulkUpsert(r.Context(), payloads, source))
}

// handlePreview handles POST /api/sources/{source}/projects:preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]

	var payload types.Document
	if err := s.decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Request body must be a JSON object", map[string]interface{}{
			"reason": err.Error(),
		})
		return
	}

	preview, err := s.projects.Preview(r.Context(), payload, source)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PreviewResponse{
		Before:         preview.Before,
		After:          preview.After,
		PreferIncoming: preview.PreferIncoming,
		Warnings:       warningStrings(preview.Warnings),
	})
}

// decodeBody parses a JSON body of bounded size into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func warningStrings(warnings []normalize.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}
