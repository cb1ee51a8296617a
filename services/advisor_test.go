package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/LovationAdmin/advisor-api/models"
)

// stubLLM replays scripted replies and records every request.
type stubLLM struct {
	replies  []string
	err      error
	requests []CompletionRequest
}

func (s *stubLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func (s *stubLLM) Stream(ctx context.Context, req CompletionRequest, onChunk func(chunk string) error) (string, error) {
	reply, err := s.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	half := len(reply) / 2
	for _, chunk := range []string{reply[:half], reply[half:]} {
		if err := onChunk(chunk); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// cutOffLLM streams part of a reply and then loses the connection.
type cutOffLLM struct {
	stubLLM
	partial string
}

func (s *cutOffLLM) Stream(ctx context.Context, req CompletionRequest, onChunk func(chunk string) error) (string, error) {
	s.requests = append(s.requests, req)
	if err := onChunk(s.partial); err != nil {
		return "", err
	}
	return "", ErrUpstreamUnavailable
}

func (s *stubLLM) lastSystem() string {
	return s.requests[len(s.requests)-1].System
}

type memoryConversationLog struct {
	created  int
	messages map[string][]models.ChatMessage
}

func (m *memoryConversationLog) Ensure(ctx context.Context, userID, conversationID, firstMessage string) (string, error) {
	if _, ok := m.messages[conversationID]; ok {
		return conversationID, nil
	}
	m.created++
	return "conv-new", nil
}

func (m *memoryConversationLog) Append(ctx context.Context, conversationID string, msg models.ChatMessage) error {
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return nil
}

func (m *memoryConversationLog) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return nil, nil
}

func (m *memoryConversationLog) Messages(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error) {
	return m.messages[conversationID], nil
}

const dashboardReply = `{"summary": "You're close to a full emergency fund.", "suggestions": [{"title": "Finish your emergency fund", "body": "Move $1,500 from Chase into Marcus.", "actionType": "COMPLETE_EMERGENCY_FUND"}]}`

func newTestAdvisor(llm LLMClient) (*AdvisorService, *DemoFinanceStore, *MemorySummaryCache) {
	demo := NewDemoFinanceStore()
	stores := StoreSelector{Demo: demo}
	cache := NewMemorySummaryCache()
	return &AdvisorService{
		Assembler: NewContextAssembler(stores),
		Stores:    stores,
		LLM:       llm,
		Effects:   NewEffectApplier(DefaultDownPaymentAllocation, cache, nil),
		Cache:     cache,
		CacheTTL:  time.Hour,
	}, demo, cache
}

func userSays(text string) []models.ChatMessage {
	return []models.ChatMessage{{Role: models.RoleUser, Content: text}}
}

func TestChatStructuredDemo(t *testing.T) {
	llm := &stubLLM{replies: []string{dashboardReply}}
	advisor, _, _ := newTestAdvisor(llm)

	resp, err := advisor.Chat(context.Background(), ChatTurn{
		Identity:    youngProfessional,
		Messages:    userSays("How am I doing?"),
		ContextType: "dashboard",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.Message != "You're close to a full emergency fund." || resp.Summary != resp.Message {
		t.Fatalf("message = %q", resp.Message)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].ActionType != models.ActionCompleteEmergencyFund {
		t.Fatalf("suggestions = %+v", resp.Suggestions)
	}
	system := llm.lastSystem()
	if !strings.Contains(system, "FINANCIAL CONTEXT:") || !strings.Contains(system, "Net worth: $98,000.00") {
		t.Fatalf("system prompt lacks context:\n%s", system)
	}
}

func TestChatGeneralWithoutIdentity(t *testing.T) {
	llm := &stubLLM{replies: []string{"An index fund tracks a market index."}}
	advisor, _, _ := newTestAdvisor(llm)

	resp, err := advisor.Chat(context.Background(), ChatTurn{Messages: userSays("What is an index fund?")})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Message != "An index fund tracks a market index." || len(resp.Suggestions) != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if strings.Contains(llm.lastSystem(), "FINANCIAL CONTEXT:") {
		t.Fatalf("anonymous chat must not carry a context block")
	}

	if _, err := advisor.Chat(context.Background(), ChatTurn{}); !errors.Is(err, ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}
}

func TestDecideApproveRunsEffectOnce(t *testing.T) {
	llm := &stubLLM{replies: []string{"Done! Your emergency fund is complete."}}
	advisor, demo, _ := newTestAdvisor(llm)
	suggestion := models.Suggestion{
		ID:         "s-1",
		Title:      "Finish your emergency fund",
		Body:       "Move $1,500 from Chase into Marcus.",
		Status:     models.SuggestionPending,
		ActionType: models.ActionCompleteEmergencyFund,
	}
	req := models.SuggestionDecisionRequest{Suggestion: suggestion, Decision: models.DecisionApprove, ContextType: "dashboard"}

	resp, err := advisor.Decide(context.Background(), youngProfessional, req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if resp.Message != "Done! Your emergency fund is complete." {
		t.Fatalf("decision replies are never parsed, got %q", resp.Message)
	}
	if !resp.GoalUpdated || len(resp.AppliedActions) != 2 || len(resp.Suggestions) != 0 {
		t.Fatalf("resp = %+v", resp)
	}

	sent := llm.requests[0]
	if !sent.Messages[0].Silent {
		t.Fatalf("the decision message must be silent")
	}
	if !strings.Contains(sent.System, "ACTION RESULT:") || !strings.Contains(sent.System, "Moved $1,500.00 from Chase Checking") {
		t.Fatalf("system prompt lacks the action result:\n%s", sent.System)
	}

	again, err := advisor.Decide(context.Background(), youngProfessional, req)
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if len(again.AppliedActions) != 1 || !strings.Contains(again.AppliedActions[0], "already applied") {
		t.Fatalf("second approval = %+v", again)
	}
	if got := findTestAccount(t, demo, youngProfessional, "yp-chase").TotalAmount; got != 27000 {
		t.Fatalf("chase = %v, want 27000", got)
	}
}

func TestDecideAlreadyDecidedSuggestion(t *testing.T) {
	llm := &stubLLM{replies: []string{"Nothing changed."}}
	advisor, demo, _ := newTestAdvisor(llm)

	resp, err := advisor.Decide(context.Background(), youngProfessional, models.SuggestionDecisionRequest{
		Suggestion: models.Suggestion{ID: "s-9", Title: "Pay down SoFi", Status: models.SuggestionDenied},
		Decision:   models.DecisionApprove,
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(resp.AppliedActions) != 1 || !strings.Contains(resp.AppliedActions[0], "already responded") {
		t.Fatalf("resp = %+v", resp)
	}
	if got := findTestAccount(t, demo, youngProfessional, "yp-sofi").TotalAmount; got != 18500 {
		t.Fatalf("a decided suggestion must not mutate, sofi = %v", got)
	}
}

func TestDecideReportsEffectWhenLLMFails(t *testing.T) {
	llm := &stubLLM{err: ErrUpstreamUnavailable}
	advisor, _, _ := newTestAdvisor(llm)

	resp, err := advisor.Decide(context.Background(), youngProfessional, models.SuggestionDecisionRequest{
		Suggestion: models.Suggestion{ID: "s-2", Title: "Accelerate SoFi loan", ActionType: models.ActionAccelerateSofiLoan},
		Decision:   models.DecisionApprove,
	})
	if err != nil {
		t.Fatalf("an applied effect should still produce a reply: %v", err)
	}
	if !strings.HasPrefix(resp.Message, "Done:\n- Applied an extra $500.00 payment") {
		t.Fatalf("message = %q", resp.Message)
	}

	// A denial has no effect to report, so the error surfaces.
	_, err = advisor.Decide(context.Background(), youngProfessional, models.SuggestionDecisionRequest{
		Suggestion: models.Suggestion{ID: "s-3", Title: "Something else"},
		Decision:   models.DecisionDeny,
	})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestDecideWithoutIdentityLeavesManualSteps(t *testing.T) {
	llm := &stubLLM{replies: []string{"Here is how to do it yourself."}}
	advisor, _, _ := newTestAdvisor(llm)

	resp, err := advisor.Decide(context.Background(), models.Identity{}, models.SuggestionDecisionRequest{
		Suggestion: models.Suggestion{Title: "Refinance your mortgage"},
		Decision:   models.DecisionApprove,
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(resp.PendingActions) != 1 || !strings.HasPrefix(resp.PendingActions[0], "Sign in or open a demo profile") {
		t.Fatalf("pending = %v", resp.PendingActions)
	}
}

func TestKnowMoreIsCachedPerSuggestion(t *testing.T) {
	llm := &stubLLM{replies: []string{dashboardReply, "A full emergency fund covers six months of costs."}}
	advisor, _, _ := newTestAdvisor(llm)
	ctx := context.Background()

	summary, err := advisor.Summary(ctx, youngProfessional, "dashboard", false)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	req := models.SuggestionDecisionRequest{
		Suggestion:  summary.Suggestions[0],
		Decision:    models.DecisionKnowMore,
		ContextType: "dashboard",
	}

	first, err := advisor.Decide(ctx, youngProfessional, req)
	if err != nil {
		t.Fatalf("first know more: %v", err)
	}
	second, err := advisor.Decide(ctx, youngProfessional, req)
	if err != nil {
		t.Fatalf("second know more: %v", err)
	}

	if len(llm.requests) != 2 {
		t.Fatalf("second know-more should be served from cache, LLM called %d times", len(llm.requests))
	}
	if first.Message != "A full emergency fund covers six months of costs." || second.Message != first.Message {
		t.Fatalf("messages = %q / %q", first.Message, second.Message)
	}
	if len(first.AppliedActions) != 0 {
		t.Fatalf("know more must not apply anything")
	}
}

func TestStreamForwardsChunks(t *testing.T) {
	llm := &stubLLM{replies: []string{"Keep saving steadily."}}
	advisor, _, _ := newTestAdvisor(llm)

	var chunks []string
	resp, err := advisor.Stream(context.Background(), ChatTurn{Messages: userSays("hi")}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(chunks, "") != "Keep saving steadily." || resp.Message != "Keep saving steadily." {
		t.Fatalf("chunks = %v, resp = %+v", chunks, resp)
	}
}

func TestStreamCutOffKeepsEffectSummaryOutOfChunks(t *testing.T) {
	llm := &cutOffLLM{partial: "Great call, I've put an extra"}
	advisor, demo, _ := newTestAdvisor(llm)

	var chunks []string
	resp, err := advisor.Stream(context.Background(), ChatTurn{
		Identity: youngProfessional,
		Messages: userSays(`I approve the suggestion: "Accelerate SoFi Loan"`),
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("an applied effect should still produce a reply: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != llm.partial {
		t.Fatalf("chunks = %q, want only the partial reply", chunks)
	}
	if !strings.HasPrefix(resp.Message, "Done:\n- Applied an extra $500.00 payment") {
		t.Fatalf("message = %q", resp.Message)
	}
	if got := findTestAccount(t, demo, youngProfessional, "yp-sofi").TotalAmount; got != 18000 {
		t.Fatalf("sofi balance = %v, want 18000", got)
	}
}

func TestStreamFailureBeforeAnyChunkSendsSummary(t *testing.T) {
	llm := &stubLLM{err: ErrUpstreamUnavailable}
	advisor, _, _ := newTestAdvisor(llm)

	var chunks []string
	resp, err := advisor.Stream(context.Background(), ChatTurn{
		Identity: youngProfessional,
		Messages: userSays(`I approve the suggestion: "Accelerate SoFi Loan"`),
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != resp.Message {
		t.Fatalf("chunks = %q, want the summary once", chunks)
	}
}

func TestSummaryCacheHitAndStaleFallback(t *testing.T) {
	llm := &stubLLM{replies: []string{dashboardReply}}
	advisor, _, cache := newTestAdvisor(llm)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cache.WithClock(clock.Now)
	ctx := context.Background()

	fresh, err := advisor.Summary(ctx, youngProfessional, "", false)
	if err != nil || fresh.Cached {
		t.Fatalf("first summary = (%+v, %v)", fresh, err)
	}
	hit, err := advisor.Summary(ctx, youngProfessional, "dashboard", false)
	if err != nil || !hit.Cached || hit.Summary != fresh.Summary {
		t.Fatalf("second summary = (%+v, %v)", hit, err)
	}
	if len(llm.requests) != 1 {
		t.Fatalf("cache hit must not call the LLM, got %d calls", len(llm.requests))
	}

	clock.Advance(2 * time.Hour)
	llm.err = ErrRateLimited
	stale, err := advisor.Summary(ctx, youngProfessional, "dashboard", false)
	if err != nil {
		t.Fatalf("stale fallback: %v", err)
	}
	if !stale.Stale || stale.Summary != fresh.Summary {
		t.Fatalf("stale = %+v", stale)
	}

	if _, err := advisor.Summary(ctx, youngProfessional, "assets", true); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("no stale entry for assets, expected the LLM error, got %v", err)
	}
	if _, err := advisor.Summary(ctx, models.Identity{}, "dashboard", false); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestChatRecordsConversation(t *testing.T) {
	llm := &stubLLM{replies: []string{"Sure."}}
	advisor, _, _ := newTestAdvisor(llm)
	log := &memoryConversationLog{messages: map[string][]models.ChatMessage{}}
	advisor.Conversations = log

	resp, err := advisor.Chat(context.Background(), ChatTurn{
		Identity: models.Identity{UserID: "user-1"},
		Messages: userSays("Can you help?"),
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.ConversationID != "conv-new" || log.created != 1 {
		t.Fatalf("conversation = %q, created %d", resp.ConversationID, log.created)
	}
	stored := log.messages["conv-new"]
	if len(stored) != 2 || stored[0].Role != models.RoleUser || stored[1].Content != "Sure." {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestFreeTextApprovalAppliesOnce(t *testing.T) {
	llm := &stubLLM{replies: []string{"Done."}}
	advisor, demo, _ := newTestAdvisor(llm)

	for i := 0; i < 2; i++ {
		_, err := advisor.Chat(context.Background(), ChatTurn{
			Identity: youngProfessional,
			Messages: userSays(`I approve the suggestion: "Accelerate SoFi Loan"`),
		})
		if err != nil {
			t.Fatalf("approval %d: %v", i+1, err)
		}
	}

	if got := findTestAccount(t, demo, youngProfessional, "yp-sofi").TotalAmount; got != 18000 {
		t.Fatalf("sofi after two typed approvals = %v, want 18000", got)
	}
	if !strings.Contains(llm.lastSystem(), "already applied") {
		t.Fatalf("second approval should report the earlier one:\n%s", llm.lastSystem())
	}
}

func TestDecideCardWithoutIDAppliesOnce(t *testing.T) {
	llm := &stubLLM{replies: []string{"Done."}}
	advisor, demo, _ := newTestAdvisor(llm)
	req := models.SuggestionDecisionRequest{
		Suggestion:     models.Suggestion{Title: "Accelerate SoFi loan", ActionType: models.ActionAccelerateSofiLoan},
		Decision:       models.DecisionApprove,
		ContextType:    "liabilities",
		ConversationID: "conv-1",
	}

	if _, err := advisor.Decide(context.Background(), youngProfessional, req); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	again, err := advisor.Decide(context.Background(), youngProfessional, req)
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}

	if len(again.AppliedActions) != 1 || !strings.Contains(again.AppliedActions[0], "already applied") {
		t.Fatalf("second approval = %+v", again)
	}
	if got := findTestAccount(t, demo, youngProfessional, "yp-sofi").TotalAmount; got != 18000 {
		t.Fatalf("sofi after two card approvals = %v, want 18000", got)
	}
}
