package models

import (
	"encoding/json"
	"time"
)

// ============================================================================
// IDENTITY
// ============================================================================

// Identity is either an authenticated user or a demo persona. A request with
// neither gets general chat without any financial context.
type Identity struct {
	UserID        string `json:"user_id,omitempty"`
	DemoProfileID string `json:"demo_profile_id,omitempty"`
}

func (i Identity) IsDemo() bool {
	return i.UserID == "" && i.DemoProfileID != ""
}

func (i Identity) Empty() bool {
	return i.UserID == "" && i.DemoProfileID == ""
}

// Key is the cache / broadcast key for the identity.
func (i Identity) Key() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	if i.DemoProfileID != "" {
		return "demo:" + i.DemoProfileID
	}
	return ""
}

// ============================================================================
// CHAT
// ============================================================================

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Silent  bool   `json:"silent,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type FinancialChatRequest struct {
	Messages       []ChatMessage   `json:"messages" binding:"required"`
	ConversationID string          `json:"conversationId,omitempty"`
	ContextType    string          `json:"contextType"`
	ContextData    json.RawMessage `json:"contextData,omitempty"`
	DemoProfileID  string          `json:"demoProfileId,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

type FinancialChatResponse struct {
	Message        string       `json:"message"`
	Summary        string       `json:"summary,omitempty"`
	Suggestions    []Suggestion `json:"suggestions,omitempty"`
	GoalUpdated    bool         `json:"goalUpdated,omitempty"`
	AppliedActions []string     `json:"appliedActions,omitempty"`
	PendingActions []string     `json:"pendingActions,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
}

type SuggestionDecisionRequest struct {
	Suggestion     Suggestion      `json:"suggestion" binding:"required"`
	Decision       DecisionKind    `json:"decision" binding:"required"`
	ContextType    string          `json:"contextType"`
	ContextData    json.RawMessage `json:"contextData,omitempty"`
	DemoProfileID  string          `json:"demoProfileId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
}

type FinancialSummaryRequest struct {
	ViewMode      string `json:"viewMode"`
	DemoProfileID string `json:"demoProfileId,omitempty"`
	ForceRefresh  bool   `json:"forceRefresh,omitempty"`
}

type FinancialSummaryResponse struct {
	Summary     string       `json:"summary"`
	Suggestions []Suggestion `json:"suggestions"`
	Cached      bool         `json:"cached"`
	Stale       bool         `json:"stale"`
}
