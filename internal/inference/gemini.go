package inference

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini completes prompts with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  model,
		logger: logger.Named("gemini"),
	}, nil
}

// Close releases the client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini: at least one message is required")
	}

	// A model handle per call keeps per-request settings off shared state.
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	session := model.StartChat()
	last := len(req.Messages) - 1
	for _, m := range req.Messages[:last] {
		session.History = append(session.History, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	g.logger.Debug("completion request",
		zap.String("model", g.model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("json", req.JSON))

	start := time.Now()
	resp, err := session.SendMessage(ctx, genai.Text(req.Messages[last].Content))
	if err != nil {
		g.logger.Warn("completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, Classify("gemini", geminiStatus(err), err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	g.logger.Debug("completion finished",
		zap.Int("total_tokens", tokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{Text: text.String(), TokensUsed: tokens}, nil
}

func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

func geminiStatus(err error) int {
	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}
