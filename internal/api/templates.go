package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sigilhq/sigil/internal/disclaimer"
	"github.com/sigilhq/sigil/internal/signature"
)

// TemplateRequest is the request body for creating or updating a template
type TemplateRequest struct {
	OrgID       string            `json:"org_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Blocks      []signature.Block `json:"blocks"`
}

// TemplateListResponse is the response for GET /templates
type TemplateListResponse struct {
	Templates []*signature.Template `json:"templates"`
	Total     int                   `json:"total"`
}

// PreviewRequest is the request body for POST /templates/{id}/preview
type PreviewRequest struct {
	Context    signature.RenderContext `json:"context"`
	At         *time.Time              `json:"at,omitempty"`
	Disclaimer *disclaimer.Request     `json:"disclaimer,omitempty"`
}

// SendPreviewRequest is the request body for POST /templates/{id}/send-preview
type SendPreviewRequest struct {
	To         string                  `json:"to"`
	Subject    string                  `json:"subject,omitempty"`
	Context    signature.RenderContext `json:"context"`
	Disclaimer *disclaimer.Request     `json:"disclaimer,omitempty"`
}

// handleTemplateCreate handles POST /api/v1/templates
func (s *Server) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl := &signature.Template{
		OrgID:       req.OrgID,
		Name:        req.Name,
		Description: req.Description,
		Blocks:      req.Blocks,
	}

	if err := s.templates.Create(r.Context(), tmpl); err != nil {
		s.logger.Warn("failed to create template", "name", req.Name, "error", err)
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("template created", "id", tmpl.ID, "org", tmpl.OrgID, "name", tmpl.Name)
	s.sendJSON(w, http.StatusCreated, tmpl)
}

// handleTemplateList handles GET /api/v1/templates
func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	filter := signature.ListFilter{
		OrgID:  r.URL.Query().Get("org"),
		Search: r.URL.Query().Get("search"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	templates, err := s.templates.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, TemplateListResponse{
		Templates: templates,
		Total:     len(templates),
	})
}

// handleTemplateGet handles GET /api/v1/templates/{id}. With an org
// query parameter the path segment may also be a template name.
func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tmpl, err := s.templates.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if tmpl == nil {
		if org := r.URL.Query().Get("org"); org != "" {
			tmpl, err = s.templates.GetByName(r.Context(), org, id)
			if err != nil {
				s.logger.Error("failed to get template by name", "name", id, "error", err)
				s.sendError(w, http.StatusInternalServerError, "Failed to get template")
				return
			}
		}
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

// handleTemplateUpdate handles PUT /api/v1/templates/{id}
func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.templateByID(w, r)
	if tmpl == nil {
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		tmpl.Name = req.Name
	}
	if req.Description != "" {
		tmpl.Description = req.Description
	}
	if req.Blocks != nil {
		tmpl.Blocks = req.Blocks
	}

	if err := s.templates.Update(r.Context(), tmpl); err != nil {
		s.logger.Warn("failed to update template", "id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

// handleTemplateDelete handles DELETE /api/v1/templates/{id}
func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.sendError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.templates.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTemplatePreview handles POST /api/v1/templates/{id}/preview
func (s *Server) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	tmpl := s.templateByID(w, r)
	if tmpl == nil {
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result := s.compile(r.Context(), tmpl.Blocks, req.Context, req.At, req.Disclaimer, tmpl.OrgID)

	s.sendJSON(w, http.StatusOK, CompileResponse{
		HTML:     result.HTML,
		Warnings: result.Warnings,
	})
}

// handleTemplateSendPreview handles POST /api/v1/templates/{id}/send-preview
func (s *Server) handleTemplateSendPreview(w http.ResponseWriter, r *http.Request) {
	if s.mailer == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Preview delivery is not configured")
		return
	}

	tmpl := s.templateByID(w, r)
	if tmpl == nil {
		return
	}

	var req SendPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.To == "" {
		s.sendError(w, http.StatusBadRequest, "to is required")
		return
	}

	result := s.compile(r.Context(), tmpl.Blocks, req.Context, nil, req.Disclaimer, tmpl.OrgID)

	subject := req.Subject
	if subject == "" {
		subject = "Signature preview: " + tmpl.Name
	}

	if err := s.mailer.Send(r.Context(), req.To, subject, result.HTML); err != nil {
		s.logger.Error("failed to send preview", "to", req.To, "error", err)
		s.sendError(w, http.StatusBadGateway, "Failed to send preview")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "sent",
		"to":       req.To,
		"warnings": result.Warnings,
	})
}

// templateByID loads the template named by the path parameter, writing
// the error response itself when the template cannot be served.
func (s *Server) templateByID(w http.ResponseWriter, r *http.Request) *signature.Template {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.sendError(w, http.StatusBadRequest, "id is required")
		return nil
	}

	tmpl, err := s.templates.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return nil
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return nil
	}

	return tmpl
}
