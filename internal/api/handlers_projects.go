package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
)

// ProjectListResponse wraps a list of records.
type ProjectListResponse struct {
	Projects []*models.Project `json:"projects"`
	Count    int               `json:"count"`
}

// handleGetProject handles GET /api/projects/{uid}
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	p, err := s.projects.GetByUID(r.Context(), uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if p == nil {
		respondServiceError(w, apperrors.NewNotFoundError("project", uid))
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleGetByName handles GET /api/projects?name=...
func (s *Server) handleGetByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondServiceError(w, apperrors.NewInvalidParameterError("name", "is required"))
		return
	}

	p, err := s.projects.GetByName(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if p == nil {
		respondServiceError(w, apperrors.NewNotFoundError("project", name))
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleListBySource handles GET /api/sources/{source}/projects
func (s *Server) handleListBySource(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.GetBySource(r.Context(), mux.Vars(r)["source"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProjectListResponse{Projects: projects, Count: len(projects)})
}

// handleListByCategory handles GET /api/categories/{tag}/projects
func (s *Server) handleListByCategory(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.GetByCategory(r.Context(), mux.Vars(r)["tag"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProjectListResponse{Projects: projects, Count: len(projects)})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.projects.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleDuplicates handles GET /api/reports/duplicates?exclude=a,b
func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	var exclude []string
	for _, raw := range r.URL.Query()["exclude"] {
		for _, field := range strings.Split(raw, ",") {
			if field = strings.TrimSpace(field); field != "" {
				exclude = append(exclude, field)
			}
		}
	}

	groups, err := s.projects.DuplicatesByTicker(r.Context(), exclude)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"duplicates": groups,
		"count":      len(groups),
	})
}
