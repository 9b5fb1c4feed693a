package evaluation

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
)

// TextGenerator produces a completion for a prompt. Query processors and
// rerankers that need a language model depend on this interface so tests can
// substitute a canned generator.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// CostPerCall reports the approximate dollar cost of one generation,
	// used by the evaluation engine's cost accounting.
	CostPerCall() float64
}

// AnthropicGenerator implements TextGenerator on top of the Anthropic API.
type AnthropicGenerator struct {
	client      *anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	costPerCall float64
}

// NewAnthropicGenerator creates a generator for the given model. A zero
// maxTokens defaults to 512, which is plenty for rewrites and rerank verdicts.
func NewAnthropicGenerator(apiKey string, model anthropic.Model, maxTokens int64, costPerCall float64) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicGenerator{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: 0.0,
		costPerCall: costPerCall,
	}
}

// Generate implements TextGenerator.
func (a *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	logger := logging.GetLogger()

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: a.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return "", errors.WithFields(
			errors.Wrap(err, errors.ProviderFailed, "failed to generate completion"),
			errors.Fields{"model": string(a.model)})
	}
	if message == nil || len(message.Content) == 0 {
		return "", errors.New(errors.ProviderFailed, "received empty response from Anthropic API")
	}

	var text string
	if block := message.Content[0]; block.Type == "text" {
		text = block.Text
	}
	logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	return strings.TrimSpace(text), nil
}

// CostPerCall implements TextGenerator.
func (a *AnthropicGenerator) CostPerCall() float64 { return a.costPerCall }
