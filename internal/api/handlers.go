package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sigilhq/sigil/internal/deploy"
	"github.com/sigilhq/sigil/internal/disclaimer"
	"github.com/sigilhq/sigil/internal/metrics"
	"github.com/sigilhq/sigil/internal/signature"
)

// CompileRequest is the request body for POST /compile
type CompileRequest struct {
	Blocks  []signature.Block       `json:"blocks"`
	Context signature.RenderContext `json:"context"`

	// At pins the reference instant for banner windows. Zero means now.
	At *time.Time `json:"at,omitempty"`

	// Disclaimer identifies the recipient for disclaimer resolution.
	// Omitted means no disclaimer lookup.
	Disclaimer *disclaimer.Request `json:"disclaimer,omitempty"`

	// OrgID labels compile metrics; optional.
	OrgID string `json:"orgId,omitempty"`
}

// CompileResponse is the response for POST /compile
type CompileResponse struct {
	HTML     string   `json:"html"`
	Warnings []string `json:"warnings"`
}

// ValidateRequest is the request body for POST /validate
type ValidateRequest struct {
	HTML string `json:"html"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string             `json:"status"`
	Version   string             `json:"version"`
	Uptime    string             `json:"uptime"`
	Templates *signature.Stats   `json:"templates,omitempty"`
	Queue     *deploy.QueueStats `json:"queue,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleCompile handles POST /api/v1/compile
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Blocks) == 0 {
		s.sendError(w, http.StatusBadRequest, "blocks is required")
		return
	}

	result := s.compile(r.Context(), req.Blocks, req.Context, req.At, req.Disclaimer, req.OrgID)

	s.sendJSON(w, http.StatusOK, CompileResponse{
		HTML:     result.HTML,
		Warnings: result.Warnings,
	})
}

// compile runs one compilation and appends the resolved disclaimer
// fragment. Disclaimer failures degrade to a warning; the signature
// body is always produced.
func (s *Server) compile(ctx context.Context, blocks []signature.Block, renderCtx signature.RenderContext, at *time.Time, dreq *disclaimer.Request, orgID string) signature.Result {
	start := time.Now()

	var result signature.Result
	if at != nil {
		result = signature.CompileAt(blocks, renderCtx, *at)
	} else {
		result = signature.Compile(blocks, renderCtx)
	}

	if dreq != nil && s.disclaimers != nil {
		fragment, err := s.disclaimers.Resolve(ctx, *dreq)
		if err != nil {
			s.logger.Warn("disclaimer resolution failed", "error", err)
			result.Warnings = append(result.Warnings, "disclaimer service unavailable, signature compiled without disclaimer")
		} else {
			result.HTML = signature.AppendFragment(result.HTML, fragment)
		}
	}

	if s.collector != nil {
		s.collector.TrackCompile(orgID, len(result.Warnings))
	} else {
		metrics.IncCompiles(orgID)
		metrics.AddCompileWarnings(orgID, len(result.Warnings))
	}
	metrics.ObserveCompileDuration(time.Since(start).Seconds())

	return result
}

// handleValidate handles POST /api/v1/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.HTML == "" {
		s.sendError(w, http.StatusBadRequest, "html is required")
		return
	}

	s.sendJSON(w, http.StatusOK, signature.Validate(req.HTML))
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
		Uptime:  time.Since(s.startTime).String(),
	}

	if s.templates != nil {
		if stats, err := s.templates.Stats(r.Context()); err == nil {
			resp.Templates = stats
		}
	}
	if s.queue != nil {
		if stats, err := s.queue.Stats(r.Context()); err == nil {
			resp.Queue = stats
		}
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		metrics.IncAPIErrors(strconv.Itoa(status))
	}
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
