package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	json "github.com/goccy/go-json"
)

// ============================================================================
// LLM GATEWAY
// Anthropic Messages API, direct completion or SSE streaming. No retries: a
// failed call surfaces immediately.
// ============================================================================

var (
	ErrLLMNotConfigured    = errors.New("ANTHROPIC_API_KEY not set")
	ErrRateLimited         = errors.New("llm rate limited")
	ErrPaymentRequired     = errors.New("llm payment required")
	ErrUpstreamUnavailable = errors.New("llm upstream unavailable")
	ErrLLMFailed           = errors.New("llm request failed")
	ErrEmptyResponse       = errors.New("empty response from llm")
)

// LLMError carries the upstream status; errors.Is matches its category.
type LLMError struct {
	Status   int
	Body     string
	Category error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Body)
}

func (e *LLMError) Unwrap() error { return e.Category }

func categorizeStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusPaymentRequired:
		return ErrPaymentRequired
	case status >= 500:
		return ErrUpstreamUnavailable
	default:
		return ErrLLMFailed
	}
}

// FriendlyLLMError maps a gateway error to the status and text shown to users.
func FriendlyLLMError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "I'm getting a lot of questions right now. Please wait a moment and try again."
	case errors.Is(err, ErrPaymentRequired):
		return http.StatusPaymentRequired, "The AI service is temporarily unavailable. Please try again later."
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway, "The AI service is having trouble right now. Please try again in a few minutes."
	default:
		return http.StatusInternalServerError, "I'm sorry, I couldn't generate a response. Please try again."
	}
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type CompletionRequest struct {
	System      string
	Messages    []models.ChatMessage
	MaxTokens   int
	Temperature *float64
}

// LLMClient is what handlers depend on; tests swap in a stub server.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Stream(ctx context.Context, req CompletionRequest, onChunk func(chunk string) error) (string, error)
}

type LLMGateway struct {
	cfg        LLMConfig
	httpClient *http.Client
}

func NewLLMGateway(cfg LLMConfig) *LLMGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &LLMGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []messagePayload `json:"messages"`
	Temperature float64          `json:"temperature"`
	Stream      bool             `json:"stream,omitempty"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      usage  `json:"usage"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Model string `json:"model"`
		Usage usage  `json:"usage"`
	} `json:"message"`
	Usage usage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete performs one blocking completion.
func (g *LLMGateway) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := g.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrLLMFailed, err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}

	g.logUsage(parsed.Model, parsed.Usage)
	return text.String(), nil
}

// Stream consumes the upstream SSE body incrementally, handing every text
// delta to onChunk, and returns the accumulated text.
func (g *LLMGateway) Stream(ctx context.Context, req CompletionRequest, onChunk func(chunk string) error) (string, error) {
	resp, err := g.send(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var (
		full    strings.Builder
		model   string
		tokens  usage
		scanner = bufio.NewScanner(resp.Body)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Printf("[LLM] ⚠️  Skipping malformed stream line: %v", err)
			continue
		}

		switch ev.Type {
		case "message_start":
			model = ev.Message.Model
			tokens.InputTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Text == "" {
				continue
			}
			full.WriteString(ev.Delta.Text)
			if onChunk != nil {
				if err := onChunk(ev.Delta.Text); err != nil {
					return full.String(), err
				}
			}
		case "message_delta":
			tokens.OutputTokens = ev.Usage.OutputTokens
		case "error":
			return full.String(), fmt.Errorf("%w: %s", ErrLLMFailed, ev.Error.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("%w: stream read failed: %v", ErrLLMFailed, err)
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmptyResponse
	}

	g.logUsage(model, tokens)
	return full.String(), nil
}

func (g *LLMGateway) send(ctx context.Context, req CompletionRequest, stream bool) (*http.Response, error) {
	if g.cfg.APIKey == "" {
		return nil, ErrLLMNotConfigured
	}

	maxTokens := g.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := g.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	body := messagesRequest{
		Model:       g.cfg.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    toAnthropicMessages(req.Messages),
		Temperature: temperature,
		Stream:      stream,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	utils.SafeDebug("[LLM] Request: model=%s stream=%t messages=%d bytes=%d", g.cfg.Model, stream, len(body.Messages), len(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: HTTP request failed: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &LLMError{Status: resp.StatusCode, Body: string(errBody), Category: categorizeStatus(resp.StatusCode)}
	}
	return resp, nil
}

// toAnthropicMessages drops system turns (they belong in the system prompt),
// merges consecutive turns of the same role and makes sure the history opens
// with a user turn, as the Messages API requires.
func toAnthropicMessages(history []models.ChatMessage) []messagePayload {
	out := make([]messagePayload, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role != models.RoleUser && role != models.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, messagePayload{Role: role, Content: m.Content})
	}
	if len(out) > 0 && out[0].Role != models.RoleUser {
		out = append([]messagePayload{{Role: models.RoleUser, Content: "Hi"}}, out...)
	}
	return out
}

// ============================================================================
// COST ESTIMATION
// ============================================================================

// Approximate Sonnet pricing.
const (
	InputTokenPrice  = 0.000003
	OutputTokenPrice = 0.000015
)

func EstimateCost(inputTokens int, outputTokens int) float64 {
	return float64(inputTokens)*InputTokenPrice + float64(outputTokens)*OutputTokenPrice
}

func (g *LLMGateway) logUsage(model string, u usage) {
	if model == "" {
		model = g.cfg.Model
	}
	log.Printf("[LLM] Model: %s | Tokens: In %d / Out %d | Cost: $%.5f",
		model, u.InputTokens, u.OutputTokens, EstimateCost(u.InputTokens, u.OutputTokens))
}
