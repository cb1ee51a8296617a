package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/LovationAdmin/advisor-api/models"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ============================================================================
// SUGGESTION PARSER
// Strict JSON first for structured contexts, paragraph heuristics otherwise.
// Never fails: worst case the whole text is the summary.
// ============================================================================

const (
	maxTitleLength = 100
	maxBodyLength  = 500
	maxSuggestions = 2
)

var (
	paragraphSplit   = regexp.MustCompile(`\n[ \t]*\n`)
	listMarker       = regexp.MustCompile(`^(\s*([-*•]|\d+[.)]|#{1,6})\s+)+`)
	boldLead         = regexp.MustCompile(`^\*\*(.+?)\*\*[:.\s-]*(.*)$`)
	decisionControls = regexp.MustCompile(`(?i)\bapprove\b.*\b(deny|decline)\b.*\bknow\s+more\b`)
)

// actionKeywords is checked in order; the first match wins.
var actionKeywords = []struct {
	action   models.ActionType
	keywords []string
}{
	{models.ActionCompleteEmergencyFund, []string{"emergency fund", "emergency"}},
	{models.ActionReallocateDownPayment, []string{"down payment", "downpayment"}},
	{models.ActionAccelerateSofiLoan, []string{"sofi", "accelerate loan", "loan payoff", "pay down loan", "pay off loan", "extra loan payment"}},
}

// InferActionType derives an action from a suggestion title by keyword. It is
// the fallback for LLM output that carries no explicit actionType.
func InferActionType(title string) models.ActionType {
	t := strings.ToLower(title)
	for _, entry := range actionKeywords {
		for _, k := range entry.keywords {
			if strings.Contains(t, k) {
				return entry.action
			}
		}
	}
	return models.ActionNone
}

type rawSuggestionPayload struct {
	Title      *string `json:"title"`
	Body       *string `json:"body"`
	ActionType string  `json:"actionType"`
}

type rawResponsePayload struct {
	Summary     *string                `json:"summary"`
	Suggestions []rawSuggestionPayload `json:"suggestions"`
}

// ParseStructuredResponse extracts a summary and up to two suggestions.
func ParseStructuredResponse(raw string, contextType string) models.ParsedResponse {
	if IsStructuredContext(contextType) {
		if parsed, ok := parseJSONResponse(raw, contextType); ok {
			return parsed
		}
	}
	return parseParagraphs(raw, contextType)
}

func parseJSONResponse(raw string, contextType string) (models.ParsedResponse, bool) {
	block, ok := extractJSONObject(stripCodeFences(raw))
	if !ok {
		return models.ParsedResponse{}, false
	}

	var payload rawResponsePayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return models.ParsedResponse{}, false
	}
	if payload.Summary == nil {
		return models.ParsedResponse{}, false
	}

	parsed := models.ParsedResponse{
		Summary:     stripDecisionControls(*payload.Summary),
		Suggestions: []models.Suggestion{},
	}
	for _, s := range payload.Suggestions {
		if s.Title == nil || s.Body == nil {
			continue
		}
		title := cleanTitle(*s.Title)
		if title == "" {
			continue
		}
		action := models.ActionType(strings.ToUpper(strings.TrimSpace(s.ActionType)))
		if !action.Valid() {
			action = InferActionType(title)
		}
		parsed.Suggestions = append(parsed.Suggestions, newSuggestion(title, stripDecisionControls(*s.Body), contextType, action))
		if len(parsed.Suggestions) == maxSuggestions {
			break
		}
	}
	return parsed, true
}

func parseParagraphs(raw string, contextType string) models.ParsedResponse {
	parsed := models.ParsedResponse{Summary: raw, Suggestions: []models.Suggestion{}}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = stripDecisionControls(text)

	var paragraphs []string
	for _, p := range paragraphSplit.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return parsed
	}

	summary := []string{paragraphs[0]}
	for _, p := range paragraphs[1:] {
		title, body, ok := splitSuggestionParagraph(p)
		if !ok || len(parsed.Suggestions) == maxSuggestions {
			summary = append(summary, p)
			continue
		}
		parsed.Suggestions = append(parsed.Suggestions, newSuggestion(title, body, contextType, InferActionType(title)))
	}
	parsed.Summary = strings.Join(summary, "\n\n")
	return parsed
}

// splitSuggestionParagraph treats the first line as a title when it is bold
// or followed by body lines.
func splitSuggestionParagraph(p string) (string, string, bool) {
	lines := strings.Split(p, "\n")
	first := strings.TrimSpace(listMarker.ReplaceAllString(lines[0], ""))
	rest := strings.TrimSpace(strings.Join(lines[1:], "\n"))

	if m := boldLead.FindStringSubmatch(first); m != nil {
		title := cleanTitle(m[1])
		body := strings.TrimSpace(strings.TrimSpace(m[2]) + "\n" + rest)
		return title, body, title != ""
	}
	if rest == "" {
		return "", "", false
	}
	title := cleanTitle(first)
	return title, rest, title != ""
}

func newSuggestion(title, body, contextType string, action models.ActionType) models.Suggestion {
	return models.Suggestion{
		ID:          uuid.New().String(),
		Title:       truncateRunes(title, maxTitleLength),
		Body:        truncateRunes(strings.TrimSpace(body), maxBodyLength),
		Status:      models.SuggestionPending,
		ContextType: contextType,
		ActionType:  action,
	}
}

func cleanTitle(title string) string {
	t := listMarker.ReplaceAllString(strings.TrimSpace(title), "")
	t = strings.ReplaceAll(t, "**", "")
	t = strings.ReplaceAll(t, "__", "")
	t = strings.TrimSpace(t)
	return strings.TrimSpace(strings.TrimRight(t, ":"))
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced top-level {...} block,
// ignoring braces inside string literals.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func stripDecisionControls(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if decisionControls.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
