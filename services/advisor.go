package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	json "github.com/goccy/go-json"
)

// ============================================================================
// ADVISOR SERVICE
// One chat turn: context -> prompt -> LLM -> parse, with decision turns
// running their effect before the model writes the confirmation.
// ============================================================================

var ErrNoMessages = errors.New("at least one message is required")

type AdvisorService struct {
	Assembler     *ContextAssembler
	Stores        StoreSelector
	LLM           LLMClient
	Effects       *EffectApplier
	Cache         SummaryCache
	Conversations ConversationLog
	CacheTTL      time.Duration
}

type ChatTurn struct {
	Identity       models.Identity
	Messages       []models.ChatMessage
	ContextType    string
	ContextData    []byte
	ConversationID string
}

type preparedTurn struct {
	turn           ChatTurn
	request        CompletionRequest
	template       PromptTemplateID
	decision       models.DecisionKind
	suggestion     *models.Suggestion
	effect         *EffectResult
	knowMoreKey    *CacheKey
	cachedReply    string
	conversationID string
}

// Chat answers one turn with a blocking completion.
func (s *AdvisorService) Chat(ctx context.Context, turn ChatTurn) (*models.FinancialChatResponse, error) {
	p, err := s.prepare(ctx, turn)
	if err != nil {
		return nil, err
	}

	reply := p.cachedReply
	if reply == "" {
		reply, err = s.LLM.Complete(ctx, p.request)
		if err != nil {
			return s.recoverDecision(ctx, p, err)
		}
	}
	return s.finish(ctx, p, reply), nil
}

// Stream answers one turn, forwarding every chunk as it arrives.
func (s *AdvisorService) Stream(ctx context.Context, turn ChatTurn, onChunk func(chunk string) error) (*models.FinancialChatResponse, error) {
	p, err := s.prepare(ctx, turn)
	if err != nil {
		return nil, err
	}

	if p.cachedReply != "" {
		if err := onChunk(p.cachedReply); err != nil {
			return nil, err
		}
		return s.finish(ctx, p, p.cachedReply), nil
	}

	sent := false
	reply, err := s.LLM.Stream(ctx, p.request, func(chunk string) error {
		sent = true
		return onChunk(chunk)
	})
	if err != nil {
		resp, recoverErr := s.recoverDecision(ctx, p, err)
		if recoverErr != nil {
			return nil, recoverErr
		}
		// Part of a reply is already on screen; the summary travels only in
		// the final response so it is not glued onto that text.
		if sent {
			return resp, nil
		}
		if chunkErr := onChunk(resp.Message); chunkErr != nil {
			return nil, chunkErr
		}
		return resp, nil
	}
	return s.finish(ctx, p, reply), nil
}

// Decide runs a decision made outside the chat box (a suggestion card) as a
// one-message turn.
func (s *AdvisorService) Decide(ctx context.Context, id models.Identity, req models.SuggestionDecisionRequest) (*models.FinancialChatResponse, error) {
	msg, err := SyntheticDecisionMessage(req.Decision, req.Suggestion.Title)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(decisionContextData{Suggestion: &req.Suggestion})
	if err != nil {
		return nil, fmt.Errorf("failed to encode suggestion: %w", err)
	}
	return s.Chat(ctx, ChatTurn{
		Identity:       id,
		Messages:       []models.ChatMessage{msg},
		ContextType:    req.ContextType,
		ContextData:    data,
		ConversationID: req.ConversationID,
	})
}

// Summary returns the cached briefing for a view, regenerating it when the
// numbers changed. A failed LLM call falls back to an expired entry.
func (s *AdvisorService) Summary(ctx context.Context, id models.Identity, viewMode string, forceRefresh bool) (*models.FinancialSummaryResponse, error) {
	if viewMode == "" {
		viewMode = "dashboard"
	}
	store, err := s.Stores.For(id)
	if err != nil {
		return nil, err
	}
	accounts, err := store.Accounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	key := NewCacheKey(id.Key(), viewMode, ComputeSnapshot(accounts))

	if !forceRefresh {
		cached, err := s.Cache.Get(ctx, key)
		if err != nil {
			utils.SafeWarn("[SummaryCache] ⚠️  Lookup failed: %v", err)
		}
		if cached != nil {
			log.Printf("[SummaryCache] ✅ Cache HIT (%s)", viewMode)
			return &models.FinancialSummaryResponse{Summary: cached.SummaryText, Suggestions: cached.Suggestions, Cached: true}, nil
		}
	}
	log.Printf("[SummaryCache] ⚠️  Cache MISS (%s) - calling LLM...", viewMode)

	financialContext, _, err := s.Assembler.Assemble(ctx, id, viewMode, nil)
	if err != nil {
		return nil, err
	}
	raw, err := s.LLM.Complete(ctx, CompletionRequest{
		System: BuildSystemPrompt(SelectPrompt(viewMode), financialContext),
		Messages: []models.ChatMessage{{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("Give me my %s briefing.", strings.ReplaceAll(viewMode, "_", " ")),
		}},
	})
	if err != nil {
		utils.SafeError("[SummaryCache] ❌ LLM call failed: %v", err)
		stale, cacheErr := s.Cache.GetIncludingExpired(ctx, key)
		if cacheErr == nil && stale != nil {
			return &models.FinancialSummaryResponse{Summary: stale.SummaryText, Suggestions: stale.Suggestions, Cached: true, Stale: true}, nil
		}
		return nil, err
	}

	parsed := ParseStructuredResponse(raw, viewMode)
	if _, err := s.Cache.Set(ctx, key, ComputeSnapshot(accounts), parsed.Summary, parsed.Suggestions, s.CacheTTL); err != nil {
		utils.SafeWarn("[SummaryCache] ⚠️  Failed to save to cache: %v", err)
	}
	return &models.FinancialSummaryResponse{Summary: parsed.Summary, Suggestions: parsed.Suggestions}, nil
}

func (s *AdvisorService) prepare(ctx context.Context, turn ChatTurn) (*preparedTurn, error) {
	if len(turn.Messages) == 0 {
		return nil, ErrNoMessages
	}
	history := append([]models.ChatMessage(nil), turn.Messages...)
	p := &preparedTurn{turn: turn, template: SelectPrompt(turn.ContextType)}

	financialContext, _, err := s.Assembler.Assemble(ctx, turn.Identity, turn.ContextType, turn.ContextData)
	if err != nil {
		// general chat still works without numbers
		utils.SafeWarn("[FinancialChat] ⚠️  Context unavailable: %v", err)
		financialContext = ""
	}

	last := &history[len(history)-1]
	if last.Role == models.RoleUser {
		if kind, title, ok := ParseDecisionMessage(last.Content); ok {
			last.Silent = true
			s.prepareDecision(ctx, p, kind, title)
		}
	}

	system := BuildSystemPrompt(p.template, financialContext)
	if p.decision != "" {
		system += "\n\n" + actionResultBlock(p.decision, *p.suggestion, p.effect)
	}
	p.request = CompletionRequest{System: system, Messages: history}

	s.recordMessage(ctx, p, *last)
	return p, nil
}

func (s *AdvisorService) prepareDecision(ctx context.Context, p *preparedTurn, kind models.DecisionKind, title string) {
	turn := p.turn
	suggestion := ResolveSuggestion(turn.Identity, title, turn.ContextType, turn.ContextData, turn.ConversationID)
	p.decision = kind
	p.template = PromptDecisionFollowUp
	p.suggestion = &suggestion
	utils.LogDecision(turn.Identity.Key(), suggestion.ID, string(kind), string(suggestion.ActionType))

	if err := suggestion.Transition(kind); err != nil {
		p.effect = &EffectResult{AlreadyApplied: true, AppliedActions: []string{"You already responded to this suggestion, so nothing was changed."}}
		return
	}

	switch kind {
	case models.DecisionApprove:
		store, err := s.Stores.For(turn.Identity)
		if err != nil {
			p.effect = &EffectResult{PendingActions: []string{"Sign in or open a demo profile so I can apply this for you. " + manualStepsFor(title)}}
			return
		}
		effect := s.Effects.Apply(ctx, store, turn.Identity, suggestion)
		p.effect = &effect
	case models.DecisionKnowMore:
		p.knowMoreKey, p.cachedReply = s.lookupKnowMore(ctx, turn, suggestion)
	}
}

func (s *AdvisorService) lookupKnowMore(ctx context.Context, turn ChatTurn, suggestion models.Suggestion) (*CacheKey, string) {
	if s.Cache == nil || suggestion.ID == "" {
		return nil, ""
	}
	store, err := s.Stores.For(turn.Identity)
	if err != nil {
		return nil, ""
	}
	accounts, err := store.Accounts(ctx, turn.Identity)
	if err != nil {
		return nil, ""
	}

	viewMode := turn.ContextType
	if viewMode == "" {
		viewMode = "dashboard"
	}
	key := NewCacheKey(turn.Identity.Key(), viewMode, ComputeSnapshot(accounts))
	cached, err := s.Cache.Get(ctx, key)
	if err != nil || cached == nil {
		return &key, ""
	}
	if byAction, ok := cached.SuggestionResponses[suggestion.ID]; ok {
		if text := byAction[suggestion.ActionType]; text != "" {
			log.Printf("[SummaryCache] ✅ Know-more response served from cache")
			return &key, text
		}
	}
	return &key, ""
}

func (s *AdvisorService) finish(ctx context.Context, p *preparedTurn, reply string) *models.FinancialChatResponse {
	resp := &models.FinancialChatResponse{Message: reply, ConversationID: p.conversationID}

	if p.decision == "" && shouldParse(p.turn.ContextType) {
		parsed := ParseStructuredResponse(reply, p.turn.ContextType)
		resp.Message = parsed.Summary
		resp.Summary = parsed.Summary
		resp.Suggestions = parsed.Suggestions
	}

	if p.effect != nil {
		resp.AppliedActions = p.effect.AppliedActions
		resp.PendingActions = p.effect.PendingActions
		resp.GoalUpdated = p.effect.GoalUpdated
	}

	if p.knowMoreKey != nil && p.cachedReply == "" {
		err := s.Cache.SetSuggestionResponse(ctx, *p.knowMoreKey, p.suggestion.ID, p.suggestion.ActionType, reply)
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			utils.SafeWarn("[SummaryCache] ⚠️  Failed to cache know-more response: %v", err)
		}
	}

	s.recordMessage(ctx, p, models.ChatMessage{Role: models.RoleAssistant, Content: reply})
	return resp
}

// recoverDecision keeps a decision turn useful when the model is down: the
// effect already ran, so report it plainly instead of failing the request.
func (s *AdvisorService) recoverDecision(ctx context.Context, p *preparedTurn, llmErr error) (*models.FinancialChatResponse, error) {
	utils.SafeError("[FinancialChat] ❌ LLM call failed: %v", llmErr)
	if p.effect == nil {
		return nil, llmErr
	}

	var b strings.Builder
	if len(p.effect.AppliedActions) > 0 {
		b.WriteString("Done:\n")
		for _, a := range p.effect.AppliedActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	if len(p.effect.PendingActions) > 0 {
		b.WriteString("Still to do on your side:\n")
		for _, a := range p.effect.PendingActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return s.finish(ctx, p, strings.TrimSpace(b.String())), nil
}

func (s *AdvisorService) recordMessage(ctx context.Context, p *preparedTurn, msg models.ChatMessage) {
	userID := p.turn.Identity.UserID
	if s.Conversations == nil || userID == "" {
		return
	}

	if p.conversationID == "" {
		id, err := s.Conversations.Ensure(ctx, userID, p.turn.ConversationID, msg.Content)
		if err != nil {
			utils.SafeWarn("[FinancialChat] ⚠️  %v", err)
			return
		}
		p.conversationID = id
	}
	if err := s.Conversations.Append(ctx, p.conversationID, msg); err != nil {
		utils.SafeWarn("[FinancialChat] ⚠️  %v", err)
	}
}

func shouldParse(contextType string) bool {
	return IsStructuredContext(contextType) || SelectPrompt(contextType) == PromptGoalCoach
}
