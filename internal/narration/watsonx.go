package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/echoverse/internal/core"
)

// Defaults for the watsonx.ai text generation endpoint.
const (
	DefaultGenerationURL = "https://eu-de.ml.cloud.ibm.com/ml/v1/text/generation?version=2023-05-29"
	DefaultModelID       = "ibm/granite-3-8b-instruct"
	DefaultTimeout       = 120 * time.Second
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	endpointName        = "text generation endpoint"
)

// Stop reasons reported in results[0].stop_reason.
const (
	stopReasonSequence   = "stop_sequence"
	stopReasonMaxTokens  = "max_tokens"
	stopReasonTokenLimit = "token_limit"
	stopReasonTimeLimit  = "time_limit"
)

// Error messages.
const (
	errFmtMarshalRequest   = "failed to marshal generation request: %w"
	errFmtCreateRequest    = "failed to create generation request: %w"
	errFmtSendRequest      = "%w: generation request to %s: %w"
	errFmtReadResponse     = "%w: reading generation response: %w"
	errFmtRejected         = "%w: %w"
	errFmtDecodeResponse   = "%w: generation response is not JSON: %w"
	errFmtNoResults        = "%w: generation response has no results: %s"
	errFmtOutputCut        = "%w: generation stopped early (%s) before the narration was complete"
	errFmtTextEmpty        = "%w: source text cannot be empty"
	errFmtBearerEmpty      = "%w: bearer token cannot be empty"
	errFmtProjectIDMissing = "%w: project id cannot be empty"
)

// Parameters are the decoding settings sent with every request.
type Parameters struct {
	DecodingMethod    string   `json:"decoding_method"`
	MaxNewTokens      int      `json:"max_new_tokens"`
	MinNewTokens      int      `json:"min_new_tokens"`
	StopSequences     []string `json:"stop_sequences"`
	RepetitionPenalty float64  `json:"repetition_penalty"`
}

// DefaultParameters returns deterministic decoding with a large output budget
// that stops at the end of the JSON array.
func DefaultParameters() Parameters {
	return Parameters{
		DecodingMethod:    "greedy",
		MaxNewTokens:      8192,
		MinNewTokens:      0,
		StopSequences:     []string{StopSequence},
		RepetitionPenalty: 1,
	}
}

// GenerationRequest is the JSON body of a text generation call.
type GenerationRequest struct {
	Input      string     `json:"input"`
	Parameters Parameters `json:"parameters"`
	ModelID    string     `json:"model_id"`
	ProjectID  string     `json:"project_id"`
}

// generationResponse is the subset of the response we read.
type generationResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
		StopReason    string `json:"stop_reason"`
	} `json:"results"`
}

// WatsonxConfig configures a WatsonxGenerator.
type WatsonxConfig struct {
	URL       string
	ModelID   string
	ProjectID string
	MaxTokens int
	Timeout   time.Duration
	Template  Template
}

// WatsonxGenerator calls the watsonx.ai text generation endpoint.
type WatsonxGenerator struct {
	httpClient *http.Client
	url        string
	modelID    string
	projectID  string
	template   Template
	parameters Parameters
}

// NewWatsonxGenerator applies defaults to cfg and returns a generator.
func NewWatsonxGenerator(cfg WatsonxConfig) *WatsonxGenerator {
	if cfg.URL == "" {
		cfg.URL = DefaultGenerationURL
	}

	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Template.Text() == "" {
		cfg.Template = DefaultTemplate
	}

	parameters := DefaultParameters()
	if cfg.MaxTokens > 0 {
		parameters.MaxNewTokens = cfg.MaxTokens
	}

	return &WatsonxGenerator{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:        cfg.URL,
		modelID:    cfg.ModelID,
		projectID:  cfg.ProjectID,
		template:   cfg.Template,
		parameters: parameters,
	}
}

// BuildRequest renders the prompt and returns the request body for text and tone.
func (g *WatsonxGenerator) BuildRequest(text, tone string) GenerationRequest {
	return GenerationRequest{
		Input:      Render(g.template, tone, text),
		Parameters: g.parameters,
		ModelID:    g.modelID,
		ProjectID:  g.projectID,
	}
}

// Generate sends one generation request and parses the reply into segments.
// Non-2xx responses wrap core.ErrGeneration together with a *core.HTTPError
// that carries the raw body. Unparsable output wraps core.ErrMalformedResponse.
func (g *WatsonxGenerator) Generate(
	ctx context.Context,
	text, tone, bearer string,
) ([]core.NarrationSegment, error) {
	validateErr := g.validate(text, bearer)
	if validateErr != nil {
		return nil, validateErr
	}

	requestBody, err := json.Marshal(g.BuildRequest(text, tone))
	if err != nil {
		return nil, fmt.Errorf(errFmtMarshalRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAuthorization, bearer)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, core.ErrTransientNetwork, g.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtReadResponse, core.ErrTransientNetwork, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		httpErr := core.NewHTTPError(endpointName, resp.StatusCode, resp.Status, body)
		httpErr.Detail = string(body)

		return nil, fmt.Errorf(errFmtRejected, core.ErrGeneration, httpErr)
	}

	generated, stopReason, err := extractGeneratedText(body)
	if err != nil {
		return nil, err
	}

	switch stopReason {
	case stopReasonMaxTokens, stopReasonTokenLimit, stopReasonTimeLimit:
		return nil, fmt.Errorf(errFmtOutputCut, core.ErrMalformedResponse, stopReason)
	}

	return ParseSegments(generated, stopReason == stopReasonSequence)
}

func (g *WatsonxGenerator) validate(text, bearer string) error {
	if text == "" {
		return fmt.Errorf(errFmtTextEmpty, core.ErrInvalidInput)
	}

	if bearer == "" {
		return fmt.Errorf(errFmtBearerEmpty, core.ErrInvalidInput)
	}

	if g.projectID == "" {
		return fmt.Errorf(errFmtProjectIDMissing, core.ErrInvalidInput)
	}

	return nil
}

// extractGeneratedText returns results[0].generated_text and its stop reason.
func extractGeneratedText(body []byte) (string, string, error) {
	var payload generationResponse

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return "", "", fmt.Errorf(errFmtDecodeResponse, core.ErrMalformedResponse, err)
	}

	if len(payload.Results) == 0 {
		return "", "", fmt.Errorf(errFmtNoResults, core.ErrMalformedResponse, string(body))
	}

	return payload.Results[0].GeneratedText, payload.Results[0].StopReason, nil
}
