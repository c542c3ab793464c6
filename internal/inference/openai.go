package inference

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI completes prompts with the OpenAI chat completions API, or any
// endpoint compatible with it.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI backend. baseURL may be empty.
func NewOpenAI(apiKey, baseURL, model string, logger *zap.Logger) (*OpenAI, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("openai"),
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	o.logger.Debug("completion request",
		zap.String("model", o.model),
		zap.Int("messages", len(messages)),
		zap.Bool("json", req.JSON))

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		o.logger.Warn("completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, Classify("openai", openAIStatus(err), err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	o.logger.Debug("completion finished",
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{Text: text, TokensUsed: resp.Usage.TotalTokens}, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
