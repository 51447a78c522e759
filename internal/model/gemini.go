package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiAPIKeyEnv is consulted when no key is configured
const GeminiAPIKeyEnv = "GEMINI_API_KEY"

// Gemini wraps the Google Gemini API
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini client. An empty apiKey falls back to GEMINI_API_KEY.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv(GeminiAPIKeyEnv)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("Gemini API key required.\n\nHint: set model.api_key in the config or export %s", GeminiAPIKeyEnv)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client}, nil
}

// Generate sends a single-turn prompt and returns the reply text
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}
