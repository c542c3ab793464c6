// Package chat answers a single message in the voice of a saved persona.
// No conversation state is kept; callers send the history they want used.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/inference"
	"github.com/hpungsan/facet/internal/persona"
	"github.com/hpungsan/facet/internal/retry"
)

// Request limits
const (
	MaxMessageLen = 5000
	MaxHistory    = 50
)

// Turn is one earlier message of the conversation.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=5000"`
}

// Request is a chat message addressed to a persona.
type Request struct {
	PersonaID string `json:"persona_id" validate:"required,max=100"`
	Message   string `json:"message" validate:"required,max=5000"`
	History   []Turn `json:"history" validate:"max=50,dive"`
}

// Reply is the persona's answer.
type Reply struct {
	PersonaID        string `json:"persona_id"`
	Response         string `json:"response"`
	TokensUsed       int    `json:"tokens_used"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// PersonaSource loads saved personas.
type PersonaSource interface {
	Get(ctx context.Context, id string) (*persona.Persona, error)
}

// Options tunes a Responder.
type Options struct {
	Temperature float32
	MaxTokens   int
	// HistoryWindow is how many of the most recent turns are sent. 0 sends all.
	HistoryWindow int
	Retry         retry.Config
}

// DefaultOptions returns the chat defaults.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.8,
		MaxTokens:     500,
		HistoryWindow: 10,
		Retry:         retry.DefaultConfig(),
	}
}

// Responder produces persona replies.
type Responder struct {
	personas PersonaSource
	backend  inference.Backend
	opts     Options
	logger   *zap.Logger
}

// New creates a Responder.
func New(personas PersonaSource, backend inference.Backend, opts Options, logger *zap.Logger) *Responder {
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger.Named("retry")
	}
	return &Responder{
		personas: personas,
		backend:  backend,
		opts:     opts,
		logger:   logger.Named("chat"),
	}
}

// Validate checks req against the request limits.
func Validate(req Request) error {
	fields := persona.Struct(req)
	if strings.TrimSpace(req.Message) == "" && req.Message != "" {
		fields = append(fields, errors.FieldError{Field: "message", Message: "must not be blank"})
	}
	if len(fields) > 0 {
		return errors.NewValidation("invalid chat request", fields...)
	}
	return nil
}

// Reply loads the persona and asks the backend for its answer to req.Message.
func (r *Responder) Reply(ctx context.Context, req Request) (*Reply, error) {
	start := time.Now()

	if err := Validate(req); err != nil {
		return nil, err
	}

	p, err := r.personas.Get(ctx, req.PersonaID)
	if err != nil {
		return nil, err
	}

	history := req.History
	if w := r.opts.HistoryWindow; w > 0 && len(history) > w {
		history = history[len(history)-w:]
	}

	messages := make([]inference.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, inference.Message{Role: inference.Role(turn.Role), Content: turn.Content})
	}
	messages = append(messages, inference.Message{Role: inference.RoleUser, Content: req.Message})

	completion := inference.Request{
		System:      SystemPrompt(p),
		Messages:    messages,
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	}
	resp, err := retry.Run(ctx, r.opts.Retry, func(ctx context.Context) (*inference.Response, error) {
		return r.backend.Complete(ctx, completion)
	})
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewExtractionFailed(fmt.Sprintf("inference failed: %v", err), nil, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, errors.NewExtractionFailed("empty response from inference backend", nil, nil)
	}

	r.logger.Info("chat reply",
		zap.String("persona_id", req.PersonaID),
		zap.Int("history_turns", len(history)),
		zap.Int("tokens_used", resp.TokensUsed))

	return &Reply{
		PersonaID:        req.PersonaID,
		Response:         text,
		TokensUsed:       resp.TokensUsed,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// SystemPrompt describes p to the model and keeps it in character.
func SystemPrompt(p *persona.Persona) string {
	var b strings.Builder

	intro := "person"
	if p.Occupation != nil && *p.Occupation != "" {
		intro = *p.Occupation
	}
	if p.Age != nil {
		fmt.Fprintf(&b, "You are %s, a %d-year-old %s.\n", p.Name, *p.Age, intro)
	} else {
		fmt.Fprintf(&b, "You are %s, %s.\n", p.Name, withArticle(intro))
	}

	section(&b, "BACKGROUND", orDefault(p.Background, "N/A"))
	section(&b, "PERSONALITY TRAITS", joinOr(p.Traits))
	style := "Natural and conversational"
	if p.CommunicationStyle != nil && *p.CommunicationStyle != "" {
		style = *p.CommunicationStyle
	}
	section(&b, "COMMUNICATION STYLE", style)
	section(&b, "VALUES", joinOr(p.Values))
	section(&b, "INTERESTS", joinOr(p.Interests))
	section(&b, "SKILLS", joinOr(p.Skills))

	fmt.Fprintf(&b, "\nStay in character as %s. Draw on the background, traits and communication style above "+
		"and stay consistent with the conversation so far. Respond in the first person as %s would, "+
		"not as an AI assistant, and do not break character.", p.Name, p.Name)

	return b.String()
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "\n%s:\n%s\n", title, body)
}

func joinOr(items []string) string {
	if len(items) == 0 {
		return "N/A"
	}
	return strings.Join(items, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func withArticle(noun string) string {
	if noun == "" {
		return noun
	}
	switch strings.ToLower(noun[:1]) {
	case "a", "e", "i", "o", "u":
		return "an " + noun
	}
	return "a " + noun
}
