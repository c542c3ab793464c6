package web

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/app"
	"github.com/hpungsan/facet/internal/chat"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/ops"
	"github.com/hpungsan/facet/internal/persona"
)

// Handlers contains the HTTP route handlers.
type Handlers struct {
	svc     app.Services
	dev     bool
	version string
	logger  *zap.Logger
}

// personaBody is the request body of save and update.
type personaBody struct {
	Persona *persona.Persona `json:"persona"`
}

// chatBody is the request body of chat; the persona comes from the path.
type chatBody struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderSuccess(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleExtract handles POST /api/personas/extract.
func (h *Handlers) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var body persona.Input
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderError(w, r, err)
		return
	}

	result, err := h.svc.Extractor.Extract(r.Context(), persona.NewInput(body.TextBlocks, body.Links))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, result)
}

// HandleSave handles POST /api/personas.
func (h *Handlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	var body personaBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderError(w, r, err)
		return
	}

	out, err := h.svc.Personas.Save(r.Context(), body.Persona)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/personas/"+out.PersonaID)
	renderSuccess(w, http.StatusCreated, out)
}

// HandleList handles GET /api/personas.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", ops.DefaultListLimit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	out, err := h.svc.Personas.List(r.Context(), ops.ListInput{Limit: limit, Offset: offset})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, out)
}

// HandleGet handles GET /api/personas/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Personas.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, p)
}

// HandleMetadata handles GET /api/personas/{id}/metadata.
func (h *Handlers) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.Personas.GetMetadata(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, meta)
}

// HandleUpdate handles PUT /api/personas/{id}.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var body personaBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderError(w, r, err)
		return
	}

	out, err := h.svc.Personas.Update(r.Context(), r.PathValue("id"), body.Persona)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /api/personas/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Personas.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, out)
}

// HandleChat handles POST /api/personas/{id}/chat.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderError(w, r, err)
		return
	}

	reply, err := h.svc.Chat.Reply(r.Context(), chat.Request{
		PersonaID: r.PathValue("id"),
		Message:   body.Message,
		History:   body.History,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderSuccess(w, http.StatusOK, reply)
}

// HandleCacheStats handles GET /api/cache.
func (h *Handlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Cache.Stats(r.Context())
	if err != nil {
		h.renderError(w, r, errors.NewStorage("failed to read cache stats", err))
		return
	}
	renderSuccess(w, http.StatusOK, stats)
}

// HandleCacheClear handles DELETE /api/cache.
func (h *Handlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cache.Clear(r.Context()); err != nil {
		h.renderError(w, r, errors.NewStorage("failed to clear cache", err))
		return
	}
	h.logger.Info("cache cleared", zap.String("request_id", RequestID(r.Context())))
	renderSuccess(w, http.StatusOK, map[string]bool{"cleared": true})
}

// parseIntParam reads a non-negative integer query parameter. A missing
// parameter yields def; anything else that is not a number is rejected.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.NewValidation(fmt.Sprintf("%s must be a non-negative integer", name),
			errors.FieldError{Field: name, Message: "must be a non-negative integer"})
	}
	return n, nil
}
