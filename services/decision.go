package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/LovationAdmin/advisor-api/models"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ============================================================================
// DECISION HANDLER
// A decision travels as a silent user message with a fixed sentence, so the
// chat endpoint can tell a decision turn from a new question.
// ============================================================================

var decisionPattern = regexp.MustCompile(
	`(?i)^\s*I\s+(approve|decline|deny|want\s+to\s+know\s+more\s+about)\s+the\s+suggestion:\s*["“”'‘’](.+?)["“”'‘’]\s*\.?\s*$`)

// SyntheticDecisionMessage builds the silent user message for a decision.
func SyntheticDecisionMessage(kind models.DecisionKind, title string) (models.ChatMessage, error) {
	var text string
	switch kind {
	case models.DecisionApprove:
		text = fmt.Sprintf("I approve the suggestion: \"%s\"", title)
	case models.DecisionDeny:
		text = fmt.Sprintf("I decline the suggestion: \"%s\"", title)
	case models.DecisionKnowMore:
		text = fmt.Sprintf("I want to know more about the suggestion: \"%s\"", title)
	default:
		return models.ChatMessage{}, models.ErrUnknownDecision
	}
	return models.ChatMessage{Role: models.RoleUser, Content: text, Silent: true}, nil
}

// ParseDecisionMessage recognises the decision sentence.
func ParseDecisionMessage(text string) (models.DecisionKind, string, bool) {
	m := decisionPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	title := strings.TrimSpace(m[2])
	if title == "" {
		return "", "", false
	}

	verb := strings.ToLower(m[1])
	switch {
	case verb == "approve":
		return models.DecisionApprove, title, true
	case verb == "decline" || verb == "deny":
		return models.DecisionDeny, title, true
	default:
		return models.DecisionKnowMore, title, true
	}
}

// decisionContextData is what the client sends alongside a decision turn.
type decisionContextData struct {
	Suggestion  *models.Suggestion  `json:"suggestion,omitempty"`
	Suggestions []models.Suggestion `json:"suggestions,omitempty"`
}

// ResolveSuggestion finds the suggestion a decision refers to. When the client
// sent nothing usable the suggestion is rebuilt from its title. A suggestion
// without an id gets one derived from the identity, the conversation and the
// title, so a repeated approval is caught however it arrives.
func ResolveSuggestion(id models.Identity, title string, contextType string, contextData []byte, conversationID string) models.Suggestion {
	if len(contextData) > 0 {
		var data decisionContextData
		if err := json.Unmarshal(contextData, &data); err == nil {
			if data.Suggestion != nil && (data.Suggestion.Title == "" || strings.EqualFold(data.Suggestion.Title, title)) {
				s := *data.Suggestion
				s.Title = title
				return withStableID(withActionType(s), id, conversationID)
			}
			for _, s := range data.Suggestions {
				if strings.EqualFold(s.Title, title) {
					return withStableID(withActionType(s), id, conversationID)
				}
			}
		}
	}

	s := models.Suggestion{
		Title:       title,
		Status:      models.SuggestionPending,
		ContextType: contextType,
		ActionType:  InferActionType(title),
	}
	return withStableID(s, id, conversationID)
}

func withStableID(s models.Suggestion, id models.Identity, conversationID string) models.Suggestion {
	if s.ID == "" {
		s.ID = StableSuggestionID(id, conversationID, s.Title)
	}
	return s
}

// StableSuggestionID is the id of a suggestion known only by its title.
func StableSuggestionID(id models.Identity, conversationID, title string) string {
	name := id.Key() + "|" + conversationID + "|" + strings.ToLower(strings.TrimSpace(title))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func withActionType(s models.Suggestion) models.Suggestion {
	if !s.ActionType.Valid() {
		s.ActionType = InferActionType(s.Title)
	}
	if s.Status == "" {
		s.Status = models.SuggestionPending
	}
	return s
}

// actionResultBlock is appended to the decision prompt so the model only
// confirms what really happened.
func actionResultBlock(kind models.DecisionKind, s models.Suggestion, effect *EffectResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ACTION RESULT:\nDecision: %s\nSuggestion: %s\n", kind, s.Title)
	if s.Body != "" {
		fmt.Fprintf(&b, "Suggestion details: %s\n", s.Body)
	}
	if effect == nil {
		b.WriteString("No changes were made.\n")
		return b.String()
	}
	b.WriteString("Already done:\n")
	if len(effect.AppliedActions) == 0 {
		b.WriteString("- nothing\n")
	}
	for _, a := range effect.AppliedActions {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	b.WriteString("User must do manually:\n")
	if len(effect.PendingActions) == 0 {
		b.WriteString("- nothing\n")
	}
	for _, p := range effect.PendingActions {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}
