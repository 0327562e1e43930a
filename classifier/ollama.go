// Package classifier maps a FeatureVector onto one of the behavioral archetypes
// using a local Ollama model.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"fakebroker/api/models"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3.2:1b"

	temperature  = 0.2
	systemPrompt = "You are a classifier. Respond with ONLY valid JSON. No explanations, no markdown, no prose."
)

// ClassifierError reports that the model could not produce a usable profile.
type ClassifierError struct {
	Reason string
	Err    error
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier: %s: %v", e.Reason, e.Err)
	}
	return "classifier: " + e.Reason
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// Option configures an Ollama client.
type Option func(*Ollama)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Ollama) { o.client = c }
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(o *Ollama) {
		if model != "" {
			o.model = model
		}
	}
}

// Ollama classifies through the /api/generate endpoint. Timeouts come from
// the caller's context.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

// NewOllama creates a client for the Ollama server at baseURL.
func NewOllama(baseURL string, opts ...Option) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	o := &Ollama{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Classify asks the model for a profile. Any transport, status or parse
// failure is returned as a *ClassifierError.
func (o *Ollama) Classify(ctx context.Context, fv models.FeatureVector) (models.UserProfile, error) {
	prompt, err := BuildPrompt(fv)
	if err != nil {
		return models.UserProfile{}, &ClassifierError{Reason: "encode features", Err: err}
	}
	body, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature},
	})
	if err != nil {
		return models.UserProfile{}, &ClassifierError{Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return models.UserProfile{}, &ClassifierError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return models.UserProfile{}, &ClassifierError{Reason: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return models.UserProfile{}, &ClassifierError{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return models.UserProfile{}, &ClassifierError{Reason: "decode response", Err: err}
	}
	return ParseProfile(gen.Response)
}

// BuildPrompt renders the classification prompt with the features embedded
// as JSON.
func BuildPrompt(fv models.FeatureVector) (string, error) {
	features, err := json.Marshal(fv)
	if err != nil {
		return "", err
	}
	groups, err := json.Marshal(models.ProfileTypes)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "System:\n%s\n\nUser:\n", systemPrompt)
	fmt.Fprintf(&b, "Classify the user into one of %s using ONLY these FEATURES.\n", groups)
	fmt.Fprintf(&b, "If uncertain, choose %q.\n\n", models.ProfileBalanced)
	b.WriteString("RESPONSE FORMAT (exact JSON):\n")
	b.WriteString(`{"profile_type": "string from groups", "confidence": number between 0-1, "signals": ["string", "string"]}`)
	b.WriteString("\n\nFEATURES:\n")
	b.Write(features)
	b.WriteString("\n\nEXAMPLE RESPONSE:\n")
	b.WriteString(`{"profile_type": "Balanced", "confidence": 0.7, "signals": ["moderate activity", "balanced behavior"]}`)
	b.WriteString("\n\nNow output the classification:")
	return b.String(), nil
}

var objectPattern = regexp.MustCompile(`\{[^}]*\}`)

// ParseProfile extracts a profile from raw model output. The whole string is
// tried first, then the first flat {...} object inside it. The archetype
// must be known; confidence is clamped to [0, 1].
func ParseProfile(raw string) (models.UserProfile, error) {
	var p models.UserProfile
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		match := objectPattern.FindString(raw)
		if match == "" {
			return models.UserProfile{}, &ClassifierError{Reason: "no JSON object in response", Err: err}
		}
		p = models.UserProfile{}
		if err := json.Unmarshal([]byte(match), &p); err != nil {
			return models.UserProfile{}, &ClassifierError{Reason: "parse extracted object", Err: err}
		}
	}

	if !models.IsProfileType(p.ProfileType) {
		return models.UserProfile{}, &ClassifierError{Reason: fmt.Sprintf("unknown profile type %q", p.ProfileType)}
	}
	switch {
	case p.Confidence < 0:
		p.Confidence = 0
	case p.Confidence > 1:
		p.Confidence = 1
	}
	if p.Signals == nil {
		p.Signals = []string{}
	}
	return p, nil
}

// IsClassifierError reports whether err came from a classifier.
func IsClassifierError(err error) bool {
	var ce *ClassifierError
	return errors.As(err, &ce)
}
