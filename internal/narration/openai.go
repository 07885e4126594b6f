package narration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// greedyTemperature stands in for zero, which go-openai omits from the request.
const greedyTemperature = math.SmallestNonzeroFloat32

const (
	errFmtOpenAIRequest = "%w: chat completion: %w"
	errFmtOpenAIEmpty   = "%w: chat completion returned no choices"
	errFmtOpenAIKey     = "%w: OpenAI API key cannot be empty"
	errFmtOpenAICut     = "%w: chat completion stopped early (%s) before the narration was complete"
)

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Template  Template
}

// OpenAIGenerator produces narration with an OpenAI-compatible chat model.
// It authenticates with its own key, so the bearer argument of Generate is unused.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	template  Template
	hasKey    bool
}

// NewOpenAIGenerator applies defaults to cfg and returns a generator.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultParameters().MaxNewTokens
	}

	if cfg.Template.Text() == "" {
		cfg.Template = DefaultTemplate
	}

	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		template:  cfg.Template,
		hasKey:    cfg.APIKey != "",
	}
}

// Generate sends the rendered prompt as a single user message with greedy
// decoding and the same stop sequence as the watsonx request.
func (g *OpenAIGenerator) Generate(
	ctx context.Context,
	text, tone, _ string,
) ([]core.NarrationSegment, error) {
	if text == "" {
		return nil, fmt.Errorf(errFmtTextEmpty, core.ErrInvalidInput)
	}

	if !g.hasKey {
		return nil, fmt.Errorf(errFmtOpenAIKey, core.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: Render(g.template, tone, text),
			},
		},
		MaxTokens:   g.maxTokens,
		Temperature: greedyTemperature,
		Stop:        []string{StopSequence},
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtOpenAIRequest, core.ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf(errFmtOpenAIEmpty, core.ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return nil, fmt.Errorf(errFmtOpenAICut, core.ErrMalformedResponse, choice.FinishReason)
	}

	return ParseSegments(choice.Message.Content, choice.FinishReason == openai.FinishReasonStop)
}
