package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"time"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// hashEmbedder is deterministic and stable across writes and queries of
// one process without calling an external model service — the default
// for tests and for deployments that haven't configured a real model.
type hashEmbedder struct {
	dims int
}

// NewHashEmbedder returns an Embedder that derives a unit vector from
// repeated FNV hashing of the input text, seeded per dimension. It is
// not semantically meaningful; it exists so Query/Add round-trip
// deterministically without network calls.
func NewHashEmbedder(dims int) Embedder {
	return &hashEmbedder{dims: dims}
}

func (h *hashEmbedder) Dimensions() int { return h.dims }

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	var norm float64
	for i := range vec {
		hasher := fnv.New64a()
		fmt.Fprintf(hasher, "%d:%s", i, text)
		sum := hasher.Sum64()
		// Map the hash into [-1, 1].
		v := float64(sum%2000001)/1000000.0 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// httpEmbedder calls an OpenAI/Ollama-shaped embeddings endpoint:
// a single POST with a model name and input text, JSON in, JSON out.
type httpEmbedder struct {
	endpoint string
	model    string
	dims     int
	client   *http.Client
}

// NewHTTPEmbedder returns an Embedder backed by a real model service.
func NewHTTPEmbedder(endpoint, model string, dims int) Embedder {
	return &httpEmbedder{
		endpoint: endpoint,
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *httpEmbedder) Dimensions() int { return h.dims }

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (h *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: h.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectorstore: embed service returned %s", resp.Status)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vectorstore: decode embed response: %w", err)
	}
	return out.Embedding, nil
}
