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

// Package embedrt is the embedding runtime: it owns the single active
// (EmbeddingSet, Embedder) pair, swaps them atomically across hot-swaps,
// and drives the batch embedding algorithm used by the bulk indexer.
package embedrt

import "time"

// LocalModelConfig configures an on-disk ONNX/GGUF-style local model.
type LocalModelConfig struct {
	ModelPath  string
	Dimensions int
}

// HuggingFaceConfig configures the HuggingFace inference-API backend.
type HuggingFaceConfig struct {
	ModelID    string
	APIKeyEnv  string
	Dimensions int
}

// OpenAIConfig configures the OpenAI embeddings backend.
type OpenAIConfig struct {
	Model      string
	APIKeyEnv  string
	Dimensions int
}

// OpenRouterConfig configures the OpenRouter embeddings backend. Defaults
// below are ported verbatim from the original's provider config table.
type OpenRouterConfig struct {
	Model            string
	APIKeyEnv        string
	Dimensions       int
	MaxInFlight      int
	MaxAttempts      int
	InitialBackoffMs int
	MaxBackoffMs     int
	TimeoutSecs      int
}

// DefaultOpenRouterConfig returns an OpenRouterConfig with the original
// source's pinned defaults.
func DefaultOpenRouterConfig(model, apiKeyEnv string, dimensions int) OpenRouterConfig {
	return OpenRouterConfig{
		Model:            model,
		APIKeyEnv:        apiKeyEnv,
		Dimensions:       dimensions,
		MaxInFlight:      2,
		MaxAttempts:      5,
		InitialBackoffMs: 250,
		MaxBackoffMs:     10000,
		TimeoutSecs:      30,
	}
}

// RetryPolicy parameterizes exponential backoff for provider calls.
type RetryPolicy struct {
	MaxAttempts      int
	InitialBackoffMs int
	MaxBackoffMs     int
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	ms := p.InitialBackoffMs
	for i := 0; i < attempt; i++ {
		ms *= 2
		if ms > p.MaxBackoffMs {
			ms = p.MaxBackoffMs
			break
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// DefaultRetryPolicy matches the OpenRouter provider defaults, used by any
// provider config that doesn't specify its own.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, InitialBackoffMs: 250, MaxBackoffMs: 10000}
