package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wsmontes/Document-Reviewer/internal/metaprompt"
	"github.com/wsmontes/Document-Reviewer/internal/segment"
)

type queryRequest struct {
	Query string `json:"query"`
	metaprompt.Options
}

// ProcessQuery answers a question about the current document. The
// request blocks until the run finishes; progress is streamed on the
// event socket.
func (h *Handlers) ProcessQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Determination < 0 || req.Determination > 5 {
		respondError(w, http.StatusBadRequest, "determination must be between 1 and 5")
		return
	}

	res, err := h.Engine.ProcessQuery(r.Context(), req.Query, req.Options)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) RunningQueries(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"running": h.Engine.Running()})
}

func (h *Handlers) CancelQuery(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !h.Engine.Cancel(runID) {
		respondError(w, http.StatusNotFound, "query not running: "+runID)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ── Segments ─────────────────────────────────────────────────

func (h *Handlers) GetSegments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Engine.Navigator().View())
}

// DisplaySegment shows a segment by its zero-based index.
func (h *Handlers) DisplaySegment(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	nav := h.Engine.Navigator()
	if !nav.Display(r.Context(), i) {
		respondError(w, http.StatusNotFound, "segment index out of range")
		return
	}
	respondJSON(w, http.StatusOK, nav.View())
}

func (h *Handlers) NextSegment(w http.ResponseWriter, r *http.Request) {
	h.moveSegment(w, r, (*segment.Navigator).Next)
}

func (h *Handlers) PrevSegment(w http.ResponseWriter, r *http.Request) {
	h.moveSegment(w, r, (*segment.Navigator).Prev)
}

// moveSegment answers with the view either way; an impossible move leaves
// it unchanged.
func (h *Handlers) moveSegment(w http.ResponseWriter, r *http.Request, move func(*segment.Navigator, context.Context) bool) {
	nav := h.Engine.Navigator()
	move(nav, r.Context())
	respondJSON(w, http.StatusOK, nav.View())
}

func (h *Handlers) ToggleSegments(w http.ResponseWriter, r *http.Request) {
	nav := h.Engine.Navigator()
	nav.ToggleCombinedView()
	respondJSON(w, http.StatusOK, nav.View())
}
