package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sigilhq/sigil/internal/deploy"
	"github.com/sigilhq/sigil/internal/disclaimer"
	"github.com/sigilhq/sigil/internal/signature"
)

// DeploymentRecipient is one target mailbox in a deployment request.
type DeploymentRecipient struct {
	Email      string                  `json:"email"`
	Provider   string                  `json:"provider"`
	Context    signature.RenderContext `json:"context"`
	Disclaimer *disclaimer.Request     `json:"disclaimer,omitempty"`
}

// DeploymentCreateRequest is the request body for POST /deployments.
// The template is compiled once per recipient against that recipient's
// render context, then each result is queued independently.
type DeploymentCreateRequest struct {
	TemplateID string                `json:"template_id"`
	OrgID      string                `json:"org_id"`
	Recipients []DeploymentRecipient `json:"recipients"`
}

// DeploymentCreateResponse is the response for POST /deployments
type DeploymentCreateResponse struct {
	Deployments []*deploy.Deployment `json:"deployments"`
	Warnings    []string             `json:"warnings,omitempty"`
	Queued      int                  `json:"queued"`
}

// DeploymentListResponse is the response for GET /deployments
type DeploymentListResponse struct {
	Deployments []*deploy.Deployment `json:"deployments"`
	Total       int                  `json:"total"`
}

// handleDeploymentCreate handles POST /api/v1/deployments
func (s *Server) handleDeploymentCreate(w http.ResponseWriter, r *http.Request) {
	var req DeploymentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TemplateID == "" {
		s.sendError(w, http.StatusBadRequest, "template_id is required")
		return
	}
	if len(req.Recipients) == 0 {
		s.sendError(w, http.StatusBadRequest, "recipients is required")
		return
	}
	for _, rcpt := range req.Recipients {
		if rcpt.Email == "" || rcpt.Provider == "" {
			s.sendError(w, http.StatusBadRequest, "each recipient requires email and provider")
			return
		}
	}

	tmpl, err := s.templates.Get(r.Context(), req.TemplateID)
	if err != nil {
		s.logger.Error("failed to get template", "id", req.TemplateID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	orgID := req.OrgID
	if orgID == "" {
		orgID = tmpl.OrgID
	}

	resp := DeploymentCreateResponse{}
	now := time.Now()

	for _, rcpt := range req.Recipients {
		result := s.compile(r.Context(), tmpl.Blocks, rcpt.Context, nil, rcpt.Disclaimer, orgID)
		for _, warning := range result.Warnings {
			resp.Warnings = append(resp.Warnings, rcpt.Email+": "+warning)
		}

		d := &deploy.Deployment{
			ID:         uuid.New().String(),
			OrgID:      orgID,
			TemplateID: tmpl.ID,
			UserEmail:  rcpt.Email,
			Provider:   rcpt.Provider,
			HTML:       result.HTML,
			Status:     deploy.StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := s.queue.Enqueue(r.Context(), d); err != nil {
			s.logger.Error("failed to enqueue deployment", "email", rcpt.Email, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to enqueue deployment")
			return
		}

		resp.Deployments = append(resp.Deployments, d)
	}

	resp.Queued = len(resp.Deployments)
	s.logger.Info("deployments queued", "org", orgID, "template", tmpl.ID, "count", resp.Queued)
	s.sendJSON(w, http.StatusCreated, resp)
}

// handleDeploymentList handles GET /api/v1/deployments
func (s *Server) handleDeploymentList(w http.ResponseWriter, r *http.Request) {
	filter := deploy.ListFilter{
		OrgID:  r.URL.Query().Get("org"),
		Status: deploy.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	deployments, err := s.queue.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list deployments", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list deployments")
		return
	}

	s.sendJSON(w, http.StatusOK, DeploymentListResponse{
		Deployments: deployments,
		Total:       len(deployments),
	})
}

// handleDeploymentStats handles GET /api/v1/deployments/stats
func (s *Server) handleDeploymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get queue stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}

// handleDeploymentGet handles GET /api/v1/deployments/{id}
func (s *Server) handleDeploymentGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get deployment", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get deployment")
		return
	}
	if d == nil {
		s.sendError(w, http.StatusNotFound, "Deployment not found")
		return
	}

	s.sendJSON(w, http.StatusOK, d)
}

// handleDeploymentDelete handles DELETE /api/v1/deployments/{id}
func (s *Server) handleDeploymentDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.queue.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete deployment", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete deployment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
