package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// OpenAIEmbedder talks to any OpenAI-compatible /v1/embeddings endpoint.
// Requests pass through a token-bucket limiter so remote providers see at
// most the configured request rate.
type OpenAIEmbedder struct {
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	costPerCall float64
	limiter     *rate.Limiter
	client      *http.Client
}

type openaiEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates a rate-limited remote backend. requestsPerSecond
// <= 0 disables limiting.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, costPerCall, requestsPerSecond float64) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &OpenAIEmbedder{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		dimensions:  dimensions,
		costPerCall: costPerCall,
		limiter:     limiter,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.RateLimitExceeded, "waiting for embedding rate limit")
		}
	}

	reqBody := openaiEmbeddingRequest{
		Model: o.model,
		Input: []string{text},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to marshal embedding request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/v1/embeddings", o.baseURL),
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

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

	var result openaiEmbeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to decode embedding response")
	}
	if len(result.Data) == 0 {
		return nil, errors.New(errors.ProviderFailed, "embedding response contained no data")
	}

	vec := make([]float32, len(result.Data[0].Embedding))
	for i, v := range result.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAIEmbedder) ModelID() string { return o.model }

func (o *OpenAIEmbedder) Dimensions() int { return o.dimensions }

func (o *OpenAIEmbedder) CostPerCall() float64 { return o.costPerCall }
