// Package ai holds the external provider adapters: the moderation
// classifier and the assistant replier. Both are optional capabilities;
// when no API key is configured the disabled variants are wired instead
// and the relay degrades to local moderation and no bot replies.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"stream-chat/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig configures the generative-language endpoint and HTTP
// behavior. Timeouts are enforced by the caller's context.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini implements both contract.Classifier and contract.Replier on top
// of the generateContent REST endpoint.
type Gemini struct {
	cfg GeminiConfig
	log *slog.Logger
}

func NewGemini(cfg GeminiConfig, log *slog.Logger) *Gemini {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Gemini{cfg: cfg, log: log}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type classifierVerdict struct {
	IsAppropriate   *bool  `json:"is_appropriate"`
	Reason          string `json:"reason"`
	SuggestedAction string `json:"suggested_action"`
}

// Classify asks the model for a structured verdict on one chat message.
// Any transport or parse failure is returned to the caller, which treats
// it as an allow.
func (g *Gemini) Classify(ctx context.Context, body, displayName string) (domain.Verdict, error) {
	prompt := fmt.Sprintf(`Analyze this chat message for inappropriate content, spam, or toxicity:

Message: %q
User: %s

Respond with JSON in this format:
{
    "is_appropriate": true/false,
    "reason": "explanation if inappropriate",
    "suggested_action": "allow/warn/timeout/ban"
}

Consider:
- Spam or repetitive content
- Harassment or toxic behavior
- Inappropriate language
- Off-topic promotional content`, body, displayName)

	text, err := g.generate(ctx, prompt, true)
	if err != nil {
		return domain.Verdict{}, err
	}

	var verdict classifierVerdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return domain.Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}

	// A response missing the field defaults to appropriate.
	if verdict.IsAppropriate == nil {
		return domain.Verdict{Appropriate: true}, nil
	}
	return domain.Verdict{Appropriate: *verdict.IsAppropriate, Reason: verdict.Reason}, nil
}

// Reply asks the model for a short assistant answer to a help-seeking
// message. An empty or oversized answer means no reply.
func (g *Gemini) Reply(ctx context.Context, body, streamTitle string) (string, error) {
	prompt := fmt.Sprintf(`You are the assistant bot of a live streaming platform.
A user in the chat asked: %q

Current stream: %s

Provide a helpful, concise response (max 150 characters) about:
- Streaming setup and RTMP configuration
- Platform features and navigation
- Basic troubleshooting
- General support

Keep responses friendly, helpful, and brief for chat format.
If you can't help with the specific question, suggest contacting support.`, body, streamTitle)

	text, err := g.generate(ctx, prompt, false)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(text)
	if reply == "" || utf8.RuneCountInString(reply) > domain.MaxReplyLength {
		return "", nil
	}
	return reply, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string, jsonResponse bool) (string, error) {
	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	if jsonResponse {
		payload.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the log without echoing it all.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		g.log.Warn("Gemini call failed", "status", resp.StatusCode, "body", string(snippet))
		return "", fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
