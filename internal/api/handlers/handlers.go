// Package handlers implements the HTTP handlers for the document reviewer.
// They are thin: each decodes a request, calls the engine, document store
// or agent registry, and writes JSON.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wsmontes/Document-Reviewer/internal/document"
	"github.com/wsmontes/Document-Reviewer/internal/gateway"
	"github.com/wsmontes/Document-Reviewer/internal/metaprompt"
	"github.com/wsmontes/Document-Reviewer/pkg/models"
)

// maxBodyBytes bounds JSON request bodies. Uploads get maxUploadBytes.
const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// ModelStatus reports on the language model server. *gateway.Meter
// implements it.
type ModelStatus interface {
	CheckStatus(ctx context.Context) gateway.Status
	Usage() models.Usage
	RecentResponses() []models.DebugResponse
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine  *metaprompt.Engine
	Docs    *document.Store
	Model   ModelStatus
	Service string
	Release string
}

// New creates a Handlers instance.
func New(engine *metaprompt.Engine, docs *document.Store, model ModelStatus, version string) *Handlers {
	return &Handlers{
		Engine:  engine,
		Docs:    docs,
		Model:   model,
		Service: "docreview",
		Release: version,
	}
}

// ── Health & info ────────────────────────────────────────────

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.Service,
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Release,
		"service": h.Service,
	})
}

type statusResponse struct {
	Server  gateway.Status `json:"server"`
	Usage   models.Usage   `json:"usage"`
	Running []string       `json:"running_queries"`
	Agents  int            `json:"agents"`
}

// Status probes the model server and reports session usage.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		Server:  h.Model.CheckStatus(r.Context()),
		Usage:   h.Model.Usage(),
		Running: h.Engine.Running(),
		Agents:  len(h.Engine.Registry().List()),
	})
}

// DebugResponses lists previews of the most recent raw model responses.
func (h *Handlers) DebugResponses(w http.ResponseWriter, r *http.Request) {
	recent := h.Model.RecentResponses()
	if recent == nil {
		recent = []models.DebugResponse{}
	}
	respondJSON(w, http.StatusOK, recent)
}

// ── Helpers ──────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

// respondFailure maps an orchestration error to a status code and the
// user-facing message.
func respondFailure(w http.ResponseWriter, err error) {
	status, retryable := http.StatusInternalServerError, false
	switch {
	case errors.Is(err, metaprompt.ErrNoDocument):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled):
		status = 499
	case errors.Is(err, context.DeadlineExceeded):
		status, retryable = http.StatusGatewayTimeout, true
	case errors.Is(err, gateway.ErrServerUnavailable):
		status, retryable = http.StatusServiceUnavailable, true
	case errors.Is(err, gateway.ErrUnexpectedFormat):
		status, retryable = http.StatusBadGateway, true
	}
	respondJSON(w, status, errorResponse{
		Error:     metaprompt.UserMessage(err),
		Detail:    err.Error(),
		Retryable: retryable,
	})
}
