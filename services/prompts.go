package services

import (
	"fmt"
	"strings"
)

// ============================================================================
// PROMPT SELECTOR
// Static contextType -> template table. Unknown tags fall back to center-chat.
// ============================================================================

type PromptTemplateID string

const (
	PromptCenterChat        PromptTemplateID = "center-chat"
	PromptGoalCoach         PromptTemplateID = "goal-coach"
	PromptAssetsReview      PromptTemplateID = "assets-review"
	PromptLiabilitiesReview PromptTemplateID = "liabilities-review"
	PromptNetWorthReview    PromptTemplateID = "net-worth-review"
	PromptDashboardSummary  PromptTemplateID = "dashboard-summary"
	PromptDecisionFollowUp  PromptTemplateID = "decision-followup"
)

var promptTable = map[string]PromptTemplateID{
	"general":       PromptCenterChat,
	"center":        PromptCenterChat,
	"goal":          PromptGoalCoach,
	"goal_detail":   PromptGoalCoach,
	"goal_progress": PromptGoalCoach,
	"goal_create":   PromptGoalCoach,
	"assets":        PromptAssetsReview,
	"cash":          PromptAssetsReview,
	"investments":   PromptAssetsReview,
	"allocation":    PromptAssetsReview,
	"liabilities":   PromptLiabilitiesReview,
	"loans":         PromptLiabilitiesReview,
	"debt":          PromptLiabilitiesReview,
	"net_worth":     PromptNetWorthReview,
	"dashboard":     PromptDashboardSummary,
	"summary":       PromptDashboardSummary,
}

func normalizeContextType(contextType string) string {
	ct := strings.ToLower(strings.TrimSpace(contextType))
	return strings.ReplaceAll(ct, "-", "_")
}

// SelectPrompt maps a context type to its instruction template.
func SelectPrompt(contextType string) PromptTemplateID {
	if id, ok := promptTable[normalizeContextType(contextType)]; ok {
		return id
	}
	return PromptCenterChat
}

// IsStructuredContext reports whether the LLM is asked for JSON output.
func IsStructuredContext(contextType string) bool {
	switch SelectPrompt(contextType) {
	case PromptAssetsReview, PromptLiabilitiesReview, PromptNetWorthReview, PromptDashboardSummary:
		return true
	}
	return false
}

const basePersona = `You are a friendly, careful financial guide inside a personal-finance app.
You explain things in plain language, never promise returns, and remind users that you are not a licensed advisor when the stakes are high.
Use the user's real numbers from the FINANCIAL CONTEXT block when it is present. Never invent accounts.`

const structuredOutput = `Respond ONLY with valid JSON (no markdown, no backticks), exact format:
{
  "summary": "2-3 sentence overview of the situation",
  "suggestions": [
    {
      "title": "At most six words",
      "body": "One short paragraph explaining the concrete step and its impact",
      "actionType": "COMPLETE_EMERGENCY_FUND | REALLOCATE_DOWN_PAYMENT | ACCELERATE_SOFI_LOAN | NO_ACTION"
    }
  ]
}
Give at most 2 suggestions. Use NO_ACTION unless the suggestion is exactly one of the other three actions.
Do not add "Approve / Deny / Know More" instructions; the app renders those controls.`

var promptTexts = map[PromptTemplateID]string{
	PromptCenterChat: basePersona + `

Answer the user's question directly. Keep answers under 200 words unless they ask for detail.`,

	PromptGoalCoach: basePersona + `

The user is looking at one savings goal. Comment on progress toward the target, the monthly amount needed to hit it on time, and whether the allocation fits the time horizon.
Write a short summary paragraph, then up to two suggestions. Start each suggestion with a bold title of at most six words on its own line, followed by the explanation.`,

	PromptAssetsReview: basePersona + `

Review the user's assets: cash cushions, investment allocation, idle balances.

` + structuredOutput,

	PromptLiabilitiesReview: basePersona + `

Review the user's debts: interest rates, payoff order (highest rate first), and whether extra payments beat investing.

` + structuredOutput,

	PromptNetWorthReview: basePersona + `

Review the user's overall net worth: balance between assets and liabilities and the single most valuable next step.

` + structuredOutput,

	PromptDashboardSummary: basePersona + `

Write the dashboard briefing the user sees when opening the app.

` + structuredOutput,

	PromptDecisionFollowUp: basePersona + `

The user just responded to one of your suggestions. The ACTION RESULT block lists what the app already did and what the user still has to do by hand.
- If they approved: confirm what was done in one or two sentences, then list the remaining manual steps.
- If they declined: acknowledge it without pushing, and offer one alternative.
- If they want to know more: explain the suggestion in more depth with the numbers from their context.
Never claim an action was completed unless it appears under "Already done".`,
}

// PromptText returns the system instruction for a template.
func PromptText(id PromptTemplateID) string {
	if text, ok := promptTexts[id]; ok {
		return text
	}
	return promptTexts[PromptCenterChat]
}

// BuildSystemPrompt joins the template with the financial context block.
func BuildSystemPrompt(id PromptTemplateID, financialContext string) string {
	prompt := PromptText(id)
	if strings.TrimSpace(financialContext) == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\nFINANCIAL CONTEXT:\n%s", prompt, financialContext)
}
