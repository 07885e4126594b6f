// Package tts synthesizes narration segments into speech with the IBM Watson
// Text to Speech service.
//
// Segments are rendered to SSML for expressive voices and to plain text for
// standard voices. A failed synthesis is retried exactly once with plain text
// and a standard voice.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/book-expert/echoverse/internal/core"
)

// DefaultServiceURL is the Watson Text to Speech endpoint used when none is configured.
const DefaultServiceURL = "https://api.eu-de.text-to-speech.watson.cloud.ibm.com"

// DefaultTimeout bounds a single synthesis request.
const DefaultTimeout = 120 * time.Second

// API endpoints and query parameters.
const (
	apiSynthesize = "/v1/synthesize"
	apiVoices     = "/v1/voices"
	queryVoice    = "voice"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	// ContentTypeMP3 is the audio encoding requested from the service.
	ContentTypeMP3 = "audio/mp3"
	endpointName   = "text to speech endpoint"
)

// Error messages.
const (
	errTextCannotBeEmpty   = "text cannot be empty"
	errVoiceCannotBeEmpty  = "voice cannot be empty"
	errReceivedEmptyAudio  = "received empty audio data"
	errFmtMarshalRequest   = "failed to marshal request: %w"
	errFmtCreateRequest    = "failed to create request: %w"
	errFmtSendRequest      = "%w: request to text to speech service at %s: %w"
	errFmtReadAudio        = "%w: failed to read audio data: %w"
	errFmtHealthStatus     = "health check failed with status: %s"
	errFmtHealthDecode     = "health check returned an unreadable voice list: %w"
	errHealthNoVoices      = "health check returned no voices"
	errFmtInvalidInputText = "%w: %s"
)

// SpeechClient is the transport used by the Synthesizer.
type SpeechClient interface {
	Synthesize(ctx context.Context, req SynthesisRequest, bearer string) ([]byte, error)
}

// HTTPClient talks to the Watson Text to Speech REST API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// SynthesisRequest is one synthesis call. Text is SSML or plain text.
type SynthesisRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"-"`
	Accept string `json:"-"`
}

// voiceList is the subset of GET /v1/voices we read.
type voiceList struct {
	Voices []struct {
		Name string `json:"name"`
	} `json:"voices"`
}

// NewHTTPClient creates a client for baseURL (protocol, host and instance path).
// The timeout applies to every request made by this client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// Synthesize posts req and returns the raw audio bytes.
func (c *HTTPClient) Synthesize(ctx context.Context, req SynthesisRequest, bearer string) ([]byte, error) {
	if req.Text == "" {
		return nil, fmt.Errorf(errFmtInvalidInputText, core.ErrInvalidInput, errTextCannotBeEmpty)
	}

	if req.Voice == "" {
		return nil, fmt.Errorf(errFmtInvalidInputText, core.ErrInvalidInput, errVoiceCannotBeEmpty)
	}

	if req.Accept == "" {
		req.Accept = ContentTypeMP3
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtMarshalRequest, err)
	}

	endpoint := c.baseURL + apiSynthesize + "?" + url.Values{queryVoice: []string{req.Voice}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, req.Accept)
	httpReq.Header.Set(headerAuthorization, bearer)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, core.ErrTransientNetwork, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtReadAudio, core.ErrTransientNetwork, err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrMalformedResponse, errReceivedEmptyAudio)
	}

	return audioData, nil
}

// HealthCheck lists the service voices and fails unless at least one is returned.
func (c *HTTPClient) HealthCheck(ctx context.Context, bearer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerAuthorization, bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(errFmtSendRequest, core.ErrTransientNetwork, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtHealthStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf(errFmtHealthDecode, err)
	}

	var voices voiceList

	err = json.Unmarshal(body, &voices)
	if err != nil {
		return fmt.Errorf(errFmtHealthDecode, err)
	}

	if len(voices.Voices) == 0 {
		return errors.New(errHealthNoVoices)
	}

	return nil
}

// parseErrorResponse reads the body of a failed call into a *core.HTTPError,
// decoding it as JSON when possible and keeping the raw text otherwise.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	return core.NewHTTPError(endpointName, resp.StatusCode, resp.Status, body)
}
