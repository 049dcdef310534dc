package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/slipstreamco/slipcast/internal/config"
)

var errEmptyCompletion = errors.New("empty completion")

type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAI(cfg config.ProviderConfig) *openaiProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openaiProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               p.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
		Temperature:         openai.Float(req.Temperature),
	})
	if err != nil {
		return "", &Error{Provider: p.Name(), Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &Error{Provider: p.Name(), Err: errEmptyCompletion}
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Provider: p.Name(), Err: errEmptyCompletion}
	}
	return text, nil
}
