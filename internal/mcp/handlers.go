package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/app"
	"github.com/hpungsan/facet/internal/chat"
	"github.com/hpungsan/facet/internal/config"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/ops"
	"github.com/hpungsan/facet/internal/persona"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc    app.Services
	dev    bool
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc app.Services, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, dev: cfg.IsDevelopment(), logger: logger}
}

// Request types for each tool

// ExtractRequest represents the arguments for persona_extract.
type ExtractRequest struct {
	TextBlocks []string `json:"text_blocks,omitempty"`
	Links      []string `json:"links,omitempty"`
}

// PersonaRequest represents the arguments for persona_save and persona_update.
type PersonaRequest struct {
	ID      string           `json:"id,omitempty"`
	Persona *persona.Persona `json:"persona"`
}

// IDRequest represents the arguments for tools addressing one persona.
type IDRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for persona_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ExportRequest represents the arguments for persona_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for persona_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleExtract handles the persona_extract tool call.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExtractRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Extractor.Extract(ctx, persona.NewInput(input.TextBlocks, input.Links))
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleSave handles the persona_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PersonaRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.Save(ctx, input.Persona)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleGet handles the persona_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.Get(ctx, input.ID)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleMetadata handles the persona_metadata tool call.
func (h *Handlers) HandleMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.GetMetadata(ctx, input.ID)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the persona_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.List(ctx, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleUpdate handles the persona_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PersonaRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.Update(ctx, input.ID, input.Persona)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the persona_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.Delete(ctx, input.ID)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleChat handles the persona_chat tool call.
func (h *Handlers) HandleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[chat.Request](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Chat.Reply(ctx, input)
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the persona_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Personas.Export(ctx, ops.ExportInput{Path: input.Path})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the persona_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return h.errorResult(errors.NewValidation(err.Error())), nil
	}

	mode := ops.ImportModeError
	if input.Mode != "" {
		mode = ops.ImportMode(input.Mode)
	}

	result, err := h.svc.Personas.Import(ctx, ops.ImportInput{Path: input.Path, Mode: mode})
	if err != nil {
		return h.errorResult(err), nil
	}
	return successResult(result)
}

// HandleCacheStats handles the cache_stats tool call.
func (h *Handlers) HandleCacheStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.svc.Cache.Stats(ctx)
	if err != nil {
		return h.errorResult(errors.NewStorage("failed to read cache stats", err)), nil
	}
	return successResult(stats)
}

// HandleCacheClear handles the cache_clear tool call.
func (h *Handlers) HandleCacheClear(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.svc.Cache.Clear(ctx); err != nil {
		return h.errorResult(errors.NewStorage("failed to clear cache", err)), nil
	}
	h.logger.Info("cache cleared")
	return successResult(map[string]bool{"cleared": true})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Details are only included in development. Outside development INTERNAL
// messages are replaced with a generic one.
func (h *Handlers) errorResult(err error) *mcp.CallToolResult {
	fErr, ok := errors.As(err)
	if !ok {
		fErr = errors.NewInternal(err)
	}

	errorObj := map[string]any{
		"code":    fErr.Code,
		"message": fErr.Message,
		"status":  fErr.Status,
	}
	if fErr.Code == errors.ErrInternal && !h.dev {
		errorObj["message"] = "an internal error occurred"
	}
	if h.dev && fErr.Details != nil {
		errorObj["details"] = fErr.Details
	}
	if fErr.Status >= 500 {
		h.logger.Error("tool call failed", zap.String("code", string(fErr.Code)), zap.Error(err))
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
