// Package gemini implements the tandem.Generator interface over the Google
// Gemini generateContent API, drawing API keys from a tandem.KeySource.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/narwanda/tandem"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Option configures a Gemini generator.
type Option func(*Gemini)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.httpClient = c }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithTopP sets the nucleus sampling parameter. Default 0.9.
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// Gemini calls the generateContent endpoint. Each call picks a key from the
// key source before the request and reports the outcome after, so quota and
// health accounting stay accurate without the generator holding any lock
// during I/O.
type Gemini struct {
	keys       tandem.KeySource
	model      string
	baseURL    string
	httpClient *http.Client
	topP       float64
}

var _ tandem.Generator = (*Gemini)(nil)

// New creates a Gemini generator for the given model. keys supplies and
// tracks API keys; use a *tandem.KeyManager, or SingleKey for a fixed
// credential.
func New(keys tandem.KeySource, model string, opts ...Option) *Gemini {
	g := &Gemini{
		keys:       keys,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		topP:       0.9,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Generate performs one generateContent call.
func (g *Gemini) Generate(ctx context.Context, req tandem.GenerateRequest) (tandem.GenerateResponse, error) {
	payload, err := json.Marshal(g.buildBody(req))
	if err != nil {
		return tandem.GenerateResponse{}, g.wrapErr("marshal body: " + err.Error())
	}
	size := int64(len(payload))

	key, ok := g.keys.GetAvailableKey(size)
	if !ok {
		wait := g.keys.EstimatedWaitTime()
		return tandem.GenerateResponse{}, g.wrapErr(fmt.Sprintf("no API key available, retry in %s", wait.Round(time.Second)))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		g.keys.ReportError(key, err)
		return tandem.GenerateResponse{}, g.wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.keys.ReportError(key, err)
		return tandem.GenerateResponse{}, g.wrapErr("request failed: " + err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.keys.ReportError(key, err)
		return tandem.GenerateResponse{}, g.wrapErr("read response body: " + err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := newHTTPErr(resp, string(respBody))
		g.keys.ReportError(key, httpErr)
		return tandem.GenerateResponse{}, httpErr
	}

	text, err := extractText(respBody)
	if err != nil {
		g.keys.ReportError(key, err)
		return tandem.GenerateResponse{}, err
	}

	g.keys.ReportSuccess(key, size)
	return tandem.GenerateResponse{Text: text, BytesSent: size}, nil
}

// buildBody constructs the generateContent request body.
func (g *Gemini) buildBody(req tandem.GenerateRequest) map[string]any {
	body := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": req.Prompt},
				},
			},
		},
	}

	if req.SystemInstruction != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{
				{"text": req.SystemInstruction},
			},
		}
	}

	genConfig := map[string]any{
		"topP": g.topP,
	}
	if req.Temperature != nil {
		genConfig["temperature"] = *req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxOutputTokens
	}
	if req.ResponseMIMEType != "" {
		genConfig["responseMimeType"] = req.ResponseMIMEType
		if len(req.ResponseSchema) > 0 {
			genConfig["responseSchema"] = map[string]any(req.ResponseSchema)
		}
	}
	body["generationConfig"] = genConfig

	return body
}

func (g *Gemini) wrapErr(msg string) error {
	return &tandem.ErrLLM{Provider: "gemini", Message: msg}
}

// newHTTPErr builds an ErrHTTP, extracting the retry delay from the
// Retry-After header or from the google.rpc.RetryInfo detail in the JSON
// error body.
func newHTTPErr(resp *http.Response, body string) *tandem.ErrHTTP {
	ra := tandem.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &tandem.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: ra,
	}
}

// parseRetryInfo extracts the retryDelay from an error body containing a
// google.rpc.RetryInfo detail. Returns 0 if not found or unparseable.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}

// extractText concatenates the text parts of the first candidate.
func extractText(respBody []byte) (string, error) {
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text    *string `json:"text,omitempty"`
					Thought bool    `json:"thought,omitempty"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &tandem.ErrLLM{Provider: "gemini", Message: "parse response JSON: " + err.Error()}
	}
	if len(parsed.Candidates) == 0 {
		return "", &tandem.ErrLLM{Provider: "gemini", Message: "response has no candidates"}
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		if p.Text != nil {
			sb.WriteString(*p.Text)
		}
	}
	return sb.String(), nil
}

// singleKey is a KeySource over one fixed credential with no quota tracking.
type singleKey struct {
	key string
}

// SingleKey wraps a fixed API key as a KeySource for callers that do not
// need rotation.
func SingleKey(key string) tandem.KeySource {
	return singleKey{key: key}
}

func (s singleKey) GetAvailableKey(int64) (string, bool) { return s.key, s.key != "" }
func (s singleKey) ReportSuccess(string, int64)          {}
func (s singleKey) ReportError(string, error)            {}
func (s singleKey) EstimatedWaitTime() time.Duration     { return 0 }
