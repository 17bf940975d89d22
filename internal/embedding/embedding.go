// Package embedding generates vector embeddings from memory content for
// semantic recall.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/signet-ai/signet/internal/config"
)

// ErrNoProvider is returned by NoopProvider to signal that no real embedding
// backend is configured. Callers treat this as "skip the vector", not a
// transient failure — writing a memory should never block on it.
var ErrNoProvider = errors.New("embedding: no provider configured (noop)")

// maxResponseBody caps how much of an embedding API response we'll read.
const maxResponseBody = 10 * 1024 * 1024

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewProvider selects a Provider from agent config, auto-detecting Ollama
// when the provider is left at "auto" and falling back to noop when nothing
// is reachable. Credentials (OPENAI_API_KEY) and the Ollama base URL
// (OLLAMA_URL) come from the environment rather than agent.yaml, since
// agent.yaml is checked into a repo in the common case.
func NewProvider(cfg config.AgentConfig, logger *slog.Logger) Provider {
	dims := cfg.Embedding.Dimensions
	if dims <= 0 {
		dims = 1024
	}
	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	openAIKey := os.Getenv("OPENAI_API_KEY")

	switch cfg.Embedding.Provider {
	case "openai":
		if openAIKey == "" {
			logger.Error("embedding: OPENAI_API_KEY required when embedding.provider is openai")
			return NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.Embedding.Model, "dimensions", dims)
		p, err := NewOpenAIProvider(openAIKey, cfg.Embedding.Model, dims)
		if err != nil {
			logger.Error("embedding: openai init failed", "error", err)
			return NewNoopProvider(dims)
		}
		return p
	case "ollama":
		logger.Info("embedding provider: ollama", "url", ollamaURL, "model", cfg.Embedding.Model, "dimensions", dims)
		return NewOllamaProvider(ollamaURL, cfg.Embedding.Model, dims)
	case "none", "noop":
		logger.Info("embedding provider: noop (semantic recall disabled)")
		return NewNoopProvider(dims)
	case "auto", "":
		if ollamaReachable(ollamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", ollamaURL, "model", cfg.Embedding.Model, "dimensions", dims)
			return NewOllamaProvider(ollamaURL, cfg.Embedding.Model, dims)
		}
		if openAIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.Embedding.Model, "dimensions", dims)
			p, err := NewOpenAIProvider(openAIKey, cfg.Embedding.Model, dims)
			if err != nil {
				logger.Error("embedding: openai init failed", "error", err)
				return NewNoopProvider(dims)
			}
			return p
		}
		logger.Warn("embedding: no backend reachable, using noop (semantic recall disabled)")
		return NewNoopProvider(dims)
	default:
		logger.Warn("embedding: unknown provider, using noop", "provider", cfg.Embedding.Provider)
		return NewNoopProvider(dims)
	}
}

func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// OpenAIProvider generates embeddings using the OpenAI API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewOpenAIProvider builds an OpenAI-backed Provider. dimensions should match
// the model's native output size, or the value requested of a model that
// supports a dimensions parameter (e.g. text-embedding-3-small).
func NewOpenAIProvider(apiKey, model string, dimensions int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: openai api key is required")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dimensions: dimensions,
	}, nil
}

func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(openAIRequest{Input: texts, Model: p.model, Dimensions: p.dimensions})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("embedding: openai error (HTTP %d): %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("embedding: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("embedding: unmarshal response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d embeddings but got %d", len(texts), len(result.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: invalid index %d in response", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// NoopProvider returns no vector. Used when no backend is configured —
// memories are still stored, they just aren't semantically searchable.
type NoopProvider struct {
	dims int
}

func NewNoopProvider(dims int) *NoopProvider { return &NoopProvider{dims: dims} }

func (p *NoopProvider) Dimensions() int { return p.dims }

func (p *NoopProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrNoProvider
}

func (p *NoopProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrNoProvider
}
