package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docscope/docscope-backend/internal/platform/envutil"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

// Embedder is the embedding boundary. Any OpenAI-compatible endpoint
// (OpenAI, Azure APIM, Ollama) satisfies it through this client by varying
// the base URL and model.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Dim() int
}

type client struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
}

func NewEmbedder(log *logger.Logger) (Embedder, error) {
	apiKey := strings.TrimSpace(envutil.String("OPENAI_API_KEY", ""))
	baseURL := strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/")
	model := envutil.String("EMBEDDING_MODEL", "text-embedding-3-small")
	dim := envutil.Int("EMBEDDING_DIM", 1536)
	if apiKey == "" && strings.Contains(baseURL, "api.openai.com") {
		return nil, fmt.Errorf("missing env var OPENAI_API_KEY")
	}
	serviceLog := log.With("service", "OpenAIEmbedder")
	serviceLog.Info("Embedding client initialized", "base_url", baseURL, "model", model, "dim", dim)
	return &client{
		log:     serviceLog,
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
	}, nil
}

func (c *client) Dim() int { return c.dim }

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"model": c.model,
		"input": inputs,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", &buf)
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Embeddings request rejected", "status", resp.StatusCode)
		return nil, fmt.Errorf("embeddings request returned status=%d", resp.StatusCode)
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings response count mismatch: want=%d got=%d", len(inputs), len(parsed.Data))
	}

	out := make([][]float32, len(inputs))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embeddings response index out of range: %d", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}
