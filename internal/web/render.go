package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/errors"
)

// genericInternalMessage replaces INTERNAL messages outside development.
const genericInternalMessage = "an unexpected error occurred"

// Envelope wraps every response body.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error half of an Envelope.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func renderSuccess(w http.ResponseWriter, status int, data any) {
	renderJSON(w, status, Envelope{Success: true, Data: data})
}

// renderError writes err as an error envelope. Details, and the real message
// of INTERNAL errors, are only shown in development.
func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	fErr := classify(err)

	body := &ErrorBody{
		Code:      string(fErr.Code),
		Message:   fErr.Message,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}
	if h.dev {
		body.Details = fErr.Details
	} else if fErr.Code == errors.ErrInternal {
		body.Message = genericInternalMessage
	}

	if fErr.Status >= 500 {
		h.logger.Error("request failed",
			zap.String("request_id", body.RequestID),
			zap.String("code", body.Code),
			zap.Error(err))
	} else {
		h.logger.Debug("request rejected",
			zap.String("request_id", body.RequestID),
			zap.String("code", body.Code),
			zap.String("message", fErr.Message))
	}

	renderJSON(w, fErr.Status, Envelope{Success: false, Error: body})
}

// classify maps err onto a FacetError. A caller that went away is reported
// as a timeout rather than an internal failure.
func classify(err error) *errors.FacetError {
	if fErr, ok := errors.As(err); ok {
		return fErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.NewTimeout("request was cancelled before it completed", err)
	}
	return errors.NewInternal(err)
}

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooBig):
			return errors.NewValidation(fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
		case stderrors.Is(err, io.EOF):
			return errors.NewValidation("request body is required")
		default:
			return errors.NewValidation(fmt.Sprintf("invalid JSON body: %v", err))
		}
	}
	if dec.More() {
		return errors.NewValidation("request body must contain a single JSON object")
	}
	return nil
}
