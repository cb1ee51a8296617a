package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	json "github.com/goccy/go-json"
)

func newTestGateway(url string) *LLMGateway {
	return NewLLMGateway(LLMConfig{APIKey: "test-key", BaseURL: url, Model: "test-model", MaxTokens: 100})
}

func TestLLMGatewayComplete(t *testing.T) {
	var captured messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","model":"test-model","content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}],"usage":{"input_tokens":10,"output_tokens":3}}`)
	}))
	defer server.Close()

	temperature := 0.2
	text, err := newTestGateway(server.URL).Complete(context.Background(), CompletionRequest{
		System:      "be nice",
		Messages:    []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
		Temperature: &temperature,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Hello there" {
		t.Fatalf("text = %q", text)
	}
	if captured.System != "be nice" || captured.Model != "test-model" || captured.MaxTokens != 100 || captured.Temperature != 0.2 || captured.Stream {
		t.Fatalf("request = %+v", captured)
	}
}

func TestLLMGatewayDebugLogsRequestShape(t *testing.T) {
	prev := utils.LogLevel
	utils.LogLevel = utils.LogLevelDebug
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() {
		utils.LogLevel = prev
		log.SetOutput(os.Stderr)
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"msg_1","content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Complete(context.Background(), CompletionRequest{
		System:   "secret system prompt",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	logged := buf.String()
	if !strings.Contains(logged, "[DEBUG] [LLM] Request: model=test-model stream=false messages=1") {
		t.Fatalf("debug log = %q", logged)
	}
	if strings.Contains(logged, "secret system prompt") {
		t.Fatalf("prompt text must not be logged: %q", logged)
	}
}

func TestLLMGatewayStatusMapping(t *testing.T) {
	tests := []struct {
		status     int
		category   error
		userStatus int
	}{
		{http.StatusTooManyRequests, ErrRateLimited, http.StatusTooManyRequests},
		{http.StatusPaymentRequired, ErrPaymentRequired, http.StatusPaymentRequired},
		{http.StatusServiceUnavailable, ErrUpstreamUnavailable, http.StatusBadGateway},
		{http.StatusBadRequest, ErrLLMFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			}))
			defer server.Close()

			_, err := newTestGateway(server.URL).Complete(context.Background(), CompletionRequest{
				Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.category) {
				t.Fatalf("error = %v, want %v", err, tt.category)
			}
			var llmErr *LLMError
			if !errors.As(err, &llmErr) || llmErr.Status != tt.status {
				t.Fatalf("expected LLMError with status %d, got %v", tt.status, err)
			}
			if status, msg := FriendlyLLMError(err); status != tt.userStatus || msg == "" {
				t.Fatalf("FriendlyLLMError = (%d, %q)", status, msg)
			}
		})
	}
}

func TestLLMGatewayEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[{"type":"text","text":"  "}]}`)
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Complete(context.Background(), CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestLLMGatewayNotConfigured(t *testing.T) {
	_, err := NewLLMGateway(LLMConfig{}).Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrLLMNotConfigured) {
		t.Fatalf("expected ErrLLMNotConfigured, got %v", err)
	}
}

func TestLLMGatewayStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`event: message_start`,
			`data: {"type":"message_start","message":{"model":"test-model","usage":{"input_tokens":12}}}`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Your net "}}`,
			``,
			`data: not json`,
			``,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"worth is up."}}`,
			``,
			`data: {"type":"message_delta","usage":{"output_tokens":5}}`,
			``,
			`data: [DONE]`,
		}
		fmt.Fprint(w, strings.Join(events, "\n")+"\n")
	}))
	defer server.Close()

	var chunks []string
	text, err := newTestGateway(server.URL).Stream(context.Background(), CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if text != "Your net worth is up." {
		t.Fatalf("text = %q", text)
	}
	if len(chunks) != 2 || chunks[0] != "Your net " {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestLLMGatewayStreamErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"partial\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer server.Close()

	text, err := newTestGateway(server.URL).Stream(context.Background(), CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	}, nil)
	if !errors.Is(err, ErrLLMFailed) || !strings.Contains(err.Error(), "Overloaded") {
		t.Fatalf("error = %v", err)
	}
	if text != "partial" {
		t.Fatalf("partial text = %q", text)
	}
}

func TestToAnthropicMessages(t *testing.T) {
	got := toAnthropicMessages([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "ignored"},
		{Role: models.RoleAssistant, Content: "Welcome back!"},
		{Role: models.RoleUser, Content: "First"},
		{Role: models.RoleUser, Content: "  "},
		{Role: models.RoleUser, Content: "Second"},
		{Role: models.RoleAssistant, Content: "Answer"},
	})

	want := []messagePayload{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Welcome back!"},
		{Role: models.RoleUser, Content: "First\n\nSecond"},
		{Role: models.RoleAssistant, Content: "Answer"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEstimateCost(t *testing.T) {
	got := EstimateCost(1000, 1000)
	if got < 0.0179 || got > 0.0181 {
		t.Fatalf("EstimateCost = %v, want ~0.018", got)
	}
}
