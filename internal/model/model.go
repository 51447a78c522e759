package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Request is a single text-generation call
type Request struct {
	Prompt          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// Client generates text from a prompt. Callers bound the call with ctx.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func is a function type that implements Client
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Provider names accepted by New
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Options configures the concrete client built by New
type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// New builds the client for opts.Provider
func New(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "", ProviderGemini:
		return NewGemini(ctx, opts.APIKey)
	case ProviderOllama:
		return NewOllama(opts.BaseURL, opts.APIKey)
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}

// Mock replays scripted replies in order and records every request
type Mock struct {
	mu       sync.Mutex
	replies  []mockReply
	requests []Request
	fallback string
}

type mockReply struct {
	text string
	err  error
	wait bool
}

// NewMock creates a mock that answers fallback once its script is exhausted
func NewMock(fallback string) *Mock {
	return &Mock{fallback: fallback}
}

// Reply queues a text reply
func (m *Mock) Reply(text string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{text: text})
	return m
}

// Fail queues an error reply
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{err: err})
	return m
}

// Hang queues a reply that blocks until the request context ends
func (m *Mock) Hang() *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{wait: true})
	return m
}

func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var next mockReply
	if len(m.replies) > 0 {
		next = m.replies[0]
		m.replies = m.replies[1:]
	} else {
		next = mockReply{text: m.fallback}
	}
	m.mu.Unlock()

	if next.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return next.text, next.err
}

// Requests returns a copy of the recorded requests
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// CallCount returns the number of Generate calls so far
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
