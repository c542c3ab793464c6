package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// jsonInstruction is appended to the system prompt; the Messages API has no
// JSON response mode.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// Anthropic completes prompts with the Anthropic Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropic creates an Anthropic backend. baseURL may be empty.
func NewAnthropic(apiKey, baseURL, model string, logger *zap.Logger) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}

	return &Anthropic{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
		logger: logger.Named("anthropic"),
	}, nil
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	messages := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		content := m.Content
		messages = append(messages, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{{Type: "text", Text: &content}},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temperature := req.Temperature

	a.logger.Debug("completion request",
		zap.String("model", a.model),
		zap.Int("messages", len(messages)),
		zap.Bool("json", req.JSON))

	start := time.Now()
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: &temperature,
	})
	if err != nil {
		a.logger.Warn("completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, Classify("anthropic", 0, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens

	a.logger.Debug("completion finished",
		zap.Int("total_tokens", tokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{Text: text.String(), TokensUsed: tokens}, nil
}
