package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is used when no base URL is configured
const DefaultOllamaURL = "http://localhost:11434"

// Ollama talks to a local or remote Ollama server
type Ollama struct {
	client *api.Client
}

// authTransport adds a bearer token for remote servers that require one
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(clone)
}

// NewOllama creates an Ollama client for baseURL
func NewOllama(baseURL, apiKey string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}

	httpClient := &http.Client{}
	if apiKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: apiKey}
	}

	return &Ollama{client: api.NewClient(u, httpClient)}, nil
}

// Generate runs a non-streaming JSON-mode generation
func (o *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxOutputTokens > 0 {
		options["num_predict"] = req.MaxOutputTokens
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, &api.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: options,
	}, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return sb.String(), nil
}
