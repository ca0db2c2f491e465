// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedrt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// httpEmbedder is a generic OpenAI-compatible embeddings-endpoint client,
// shared by the OpenAI, HuggingFace, and OpenRouter backends (all three
// expose an `{input: [...]}` → `{data: [{embedding: [...]}]}` shaped REST
// API). Retries on 429/529 with exponential backoff, matching §4.4's
// retry policy. net/http is used directly: no HTTP client library appears
// in any full example repo in the retrieved pack (only unrelated
// manifest-only listings), so the teacher's own net/http usage in
// cmd/cie/*.go is the closest grounding available.
type httpEmbedder struct {
	endpoint   string
	apiKey     string
	model      string
	provider   string
	dims       int
	retry      RetryPolicy
	httpClient *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder builds an Embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(cfg OpenAIConfig) Embedder {
	return &httpEmbedder{
		endpoint: "https://api.openai.com/v1/embeddings",
		apiKey:   os.Getenv(cfg.APIKeyEnv),
		model:    cfg.Model,
		provider: "openai",
		dims:     cfg.Dimensions,
		retry:    DefaultRetryPolicy,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewHuggingFaceEmbedder builds an Embedder backed by the HuggingFace
// inference API's feature-extraction pipeline, shimmed through the same
// embeddingRequest/Response shape.
func NewHuggingFaceEmbedder(cfg HuggingFaceConfig) Embedder {
	return &httpEmbedder{
		endpoint: fmt.Sprintf("https://api-inference.huggingface.co/pipeline/feature-extraction/%s", cfg.ModelID),
		apiKey:   os.Getenv(cfg.APIKeyEnv),
		model:    cfg.ModelID,
		provider: "huggingface",
		dims:     cfg.Dimensions,
		retry:    DefaultRetryPolicy,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewOpenRouterEmbedder builds an Embedder backed by OpenRouter, honoring
// its per-config retry/backoff/timeout fields. MaxInFlight is not applied:
// concurrent Embed calls are not limited.
func NewOpenRouterEmbedder(cfg OpenRouterConfig) Embedder {
	return &httpEmbedder{
		endpoint: "https://openrouter.ai/api/v1/embeddings",
		apiKey:   os.Getenv(cfg.APIKeyEnv),
		model:    cfg.Model,
		provider: "openrouter",
		dims:     cfg.Dimensions,
		retry: RetryPolicy{
			MaxAttempts:      cfg.MaxAttempts,
			InitialBackoffMs: cfg.InitialBackoffMs,
			MaxBackoffMs:     cfg.MaxBackoffMs,
		},
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
	}
}

func (h *httpEmbedder) Dimensions() int      { return h.dims }
func (h *httpEmbedder) ProviderSlug() string { return h.provider }
func (h *httpEmbedder) ModelID() string      { return h.model }

func (h *httpEmbedder) Embed(ctx context.Context, snippets []string) ([][]float32, error) {
	if len(snippets) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: h.model, Input: snippets})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	var lastErr error
	attempts := h.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.retry.backoff(attempt - 1)):
			}
		}

		resp, err := h.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.retryable {
			lastErr = fmt.Errorf("%s: transient status %d", h.provider, resp.status)
			continue
		}
		if resp.status != http.StatusOK {
			return nil, fmt.Errorf("%s: status %d: %s", h.provider, resp.status, resp.body)
		}

		var parsed embeddingResponse
		if err := json.Unmarshal(resp.body, &parsed); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		out := make([][]float32, len(parsed.Data))
		for i, d := range parsed.Data {
			if h.dims > 0 && len(d.Embedding) != h.dims {
				return nil, &DimensionMismatchError{Expected: h.dims, Actual: len(d.Embedding)}
			}
			out[i] = d.Embedding
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: exhausted %d attempts: %w", h.provider, attempts, lastErr)
}

type httpAttempt struct {
	status    int
	body      []byte
	retryable bool
}

func (h *httpEmbedder) doRequest(ctx context.Context, body []byte) (httpAttempt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return httpAttempt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return httpAttempt{}, err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return httpAttempt{}, err
	}

	retryable := resp.StatusCode == 429 || resp.StatusCode == 529
	return httpAttempt{status: resp.StatusCode, body: buf.Bytes(), retryable: retryable}, nil
}
