package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultMaxTokens = 1024

// Generator drafts text for the video and briefing steps.
type Generator struct {
	client    Client
	model     string
	maxTokens int64
}

// NewGenerator returns a Generator using model. A non-positive maxTokens
// selects 1024.
func NewGenerator(client Client, model string, maxTokens int64) *Generator {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Generator{client: client, model: model, maxTokens: maxTokens}
}

// Name identifies the generator in logs and record fields.
func (g *Generator) Name() string { return providerName }

// Generate returns the model's reply to prompt under the system prompt.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.CreateMessage(ctx, MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    system,
		Prompt:    prompt,
	})
	if err != nil {
		return "", err
	}
	zap.L().Debug("anthropic: generated",
		zap.String("model", g.model),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.String("stop_reason", resp.StopReason),
	)
	if resp.Text == "" {
		return "", eris.New("anthropic: empty response")
	}
	return resp.Text, nil
}
