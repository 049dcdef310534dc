package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/slipstreamco/slipcast/internal/config"
)

// agentProvider routes completions through an agentsdk-go runtime. The
// runtime's own system prompt stays empty; the per-request system text is
// folded into the prompt because a runtime is built once and styles vary per
// request.
type agentProvider struct {
	runtime *api.Runtime
}

func newAgent(cfg config.ProviderConfig) (*agentProvider, error) {
	factory := &model.AnthropicProvider{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		ModelName: cfg.Model,
	}

	rt, err := api.New(context.Background(), api.Options{
		ModelFactory:  factory,
		MaxIterations: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create agent runtime: %w", err)
	}
	return &agentProvider{runtime: rt}, nil
}

func (p *agentProvider) Name() string { return "agent" }

func (p *agentProvider) Complete(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	resp, err := p.runtime.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: "slipcast",
	})
	if err != nil {
		return "", &Error{Provider: p.Name(), Err: err}
	}
	if resp == nil || resp.Result == nil {
		return "", &Error{Provider: p.Name(), Err: errEmptyCompletion}
	}
	text := strings.TrimSpace(resp.Result.Output)
	if text == "" {
		return "", &Error{Provider: p.Name(), Err: errEmptyCompletion}
	}
	return text, nil
}

func (p *agentProvider) Close() {
	p.runtime.Close()
}
