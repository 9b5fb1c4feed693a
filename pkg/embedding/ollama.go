package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// OllamaEmbedder talks to a local Ollama server. Local inference carries no
// per-call monetary cost.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder creates a backend for the given model. baseURL defaults
// to the standard local endpoint.
func NewOllamaEmbedder(baseURL, model string, dimensions int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbeddingRequest{
		Model:  o.model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to marshal embedding request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/api/embeddings", o.baseURL),
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to send embedding request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to read embedding response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithFields(
			errors.New(errors.ProviderFailed, "embedding request rejected"),
			errors.Fields{"status": resp.StatusCode, "body": string(body)})
	}

	var result ollamaEmbeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to decode embedding response")
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OllamaEmbedder) ModelID() string { return o.model }

func (o *OllamaEmbedder) Dimensions() int { return o.dimensions }

func (o *OllamaEmbedder) CostPerCall() float64 { return 0 }
