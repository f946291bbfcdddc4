package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// NewEmbedder builds an Embedder from an EmbedderConfig-shaped set of
// fields, reusing the same provider clients the llm package wires to
// chat completions, per the DOMAIN STACK's "embedders reuse the LLM
// providers' HTTP shape" note.
func NewEmbedder(providerType, apiKey, host, model string, dimensions int) (Embedder, error) {
	switch providerType {
	case "openai":
		return &openAIEmbedder{client: openai.NewClientWithConfig(openaiEmbedConfig(apiKey, host)), model: model, dims: dimensions}, nil
	case "ollama", "":
		return &ollamaEmbedder{host: host, model: model, dims: dimensions, httpClient: &http.Client{Timeout: 30 * time.Second}}, nil
	default:
		return nil, fmt.Errorf("kb: unsupported embedder type %q", providerType)
	}
}

func openaiEmbedConfig(apiKey, host string) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if host != "" {
		cfg.BaseURL = host
	}
	return cfg
}

type openAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

func (e *openAIEmbedder) Dimensions() int { return e.dims }

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("kb: openai embedder returned no vectors")
	}
	return out[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("kb: openai embedding request failed: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// ollamaEmbedder talks to Ollama's /api/embeddings endpoint directly,
// mirroring the llm package's Ollama provider's plain-HTTP style since
// go-openai doesn't cover Ollama's native embedding route.
type ollamaEmbedder struct {
	host       string
	model      string
	dims       int
	httpClient *http.Client
}

func (e *ollamaEmbedder) Dimensions() int { return e.dims }

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(map[string]string{"model": e.model, "prompt": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kb: ollama embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kb: ollama embedding request returned status %d", resp.StatusCode)
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("kb: decoding ollama embedding response: %w", err)
	}
	return out.Embedding, nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
