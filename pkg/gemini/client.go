// Package gemini generates short texts with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "gemini"

// Config configures the Gemini generator.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL (for testing).
	BaseURL string
}

// Generator produces plain text from a system and user prompt.
type Generator struct {
	client *genai.Client
	model  string
}

// New creates a Generator backed by the Gemini API.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, eris.New("gemini: model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &Generator{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

// Name identifies the generator in logs and record fields.
func (g *Generator) Name() string { return "gemini" }

// Generate returns the model's text for prompt.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{CandidateCount: 1}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyErr(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("gemini: empty response")
	}
	return text, nil
}

// classifyErr maps API errors onto provider error kinds so callers can tell
// rate limits from rejected keys.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe := resilience.ClassifyStatus(providerName, apiErr.Code, []byte(apiErr.Message))
		if pe == nil {
			pe = &resilience.ProviderError{Provider: providerName, Status: apiErr.Code, Message: apiErr.Message}
		}
		pe.Err = err
		return pe
	}
	return resilience.Wrap(providerName, err)
}
