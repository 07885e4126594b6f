// Package iam exchanges IBM Cloud API keys for short-lived IAM bearer tokens.
package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/echoverse/internal/core"
	"github.com/golang-jwt/jwt/v4"
)

// DefaultTokenURL is the public IBM Cloud IAM token endpoint.
const DefaultTokenURL = "https://iam.cloud.ibm.com/identity/token"

// DefaultTimeout bounds a single token exchange.
const DefaultTimeout = 15 * time.Second

// Request fields and headers.
const (
	grantTypeAPIKey     = "urn:ibm:params:oauth:grant-type:apikey"
	formFieldGrantType  = "grant_type"
	formFieldAPIKey     = "apikey"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	contentTypeForm     = "application/x-www-form-urlencoded"
	contentTypeJSON     = "application/json"
	authorizationScheme = "Bearer"
	endpointName        = "IAM token endpoint"
)

// Error messages.
const (
	errAPIKeyEmpty           = "IBM Cloud API key must be provided"
	errFmtCreateRequest      = "failed to create token request: %w"
	errFmtSendRequest        = "%w: token request to %s: %w"
	errFmtReadBody           = "%w: reading token response: %w"
	errFmtDecodeBody         = "%w: token response is not JSON: %w"
	errFmtAccessTokenMissing = "%w: access_token missing in IAM response: %v"
)

// Token is an exchanged access token and the moment it stops being valid.
// A zero Expiry means the issuer did not say.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// Header returns the value for an Authorization header.
func (t Token) Header() string {
	return authorizationScheme + " " + t.AccessToken
}

// tokenResponse is the subset of the IAM response we use.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

// Exchanger performs one token exchange per call. It never retries and never caches.
type Exchanger struct {
	httpClient *http.Client
	tokenURL   string
}

// NewExchanger creates an Exchanger for tokenURL. A non-positive timeout uses
// DefaultTimeout and an empty tokenURL uses DefaultTokenURL.
func NewExchanger(tokenURL string, timeout time.Duration) *Exchanger {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Exchanger{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokenURL: tokenURL,
	}
}

// Exchange trades apiKey for an access token and returns "Bearer <token>".
func (e *Exchanger) Exchange(ctx context.Context, apiKey string) (string, error) {
	token, err := e.ExchangeToken(ctx, apiKey)
	if err != nil {
		return "", err
	}

	return token.Header(), nil
}

// ExchangeToken is Exchange with the token expiry exposed.
//
// An empty or whitespace-only key fails with core.ErrInvalidInput before any
// network call. Transport failures wrap core.ErrTransientNetwork, non-2xx
// responses return *core.HTTPError, and a 2xx body without access_token wraps
// core.ErrMissingField.
func (e *Exchanger) ExchangeToken(ctx context.Context, apiKey string) (Token, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Token{}, fmt.Errorf("%w: %s", core.ErrInvalidInput, errAPIKeyEmpty)
	}

	form := url.Values{}
	form.Set(formFieldGrantType, grantTypeAPIKey)
	form.Set(formFieldAPIKey, apiKey)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return Token{}, fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, contentTypeForm)
	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf(errFmtSendRequest, core.ErrTransientNetwork, e.tokenURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf(errFmtReadBody, core.ErrTransientNetwork, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Token{}, core.NewHTTPError(endpointName, resp.StatusCode, resp.Status, body)
	}

	return parseTokenResponse(body, time.Now())
}

func parseTokenResponse(body []byte, now time.Time) (Token, error) {
	var payload tokenResponse

	decodeErr := json.Unmarshal(body, &payload)
	if decodeErr != nil {
		return Token{}, fmt.Errorf(errFmtDecodeBody, core.ErrMalformedResponse, decodeErr)
	}

	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf(errFmtAccessTokenMissing, core.ErrMissingField, core.DecodeDetail(body))
	}

	return Token{
		AccessToken: payload.AccessToken,
		Expiry:      resolveExpiry(payload, now),
	}, nil
}

// resolveExpiry prefers the absolute expiration, then expires_in, then the
// exp claim of the access token itself.
func resolveExpiry(payload tokenResponse, now time.Time) time.Time {
	if payload.Expiration > 0 {
		return time.Unix(payload.Expiration, 0)
	}

	if payload.ExpiresIn > 0 {
		return now.Add(time.Duration(payload.ExpiresIn) * time.Second)
	}

	return expiryFromClaims(payload.AccessToken)
}

func expiryFromClaims(accessToken string) time.Time {
	var claims jwt.RegisteredClaims

	_, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}
