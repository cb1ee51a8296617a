package models

import (
	"errors"
	"time"
)

// ============================================================================
// SUGGESTIONS
// ============================================================================

type ActionType string

const (
	ActionCompleteEmergencyFund ActionType = "COMPLETE_EMERGENCY_FUND"
	ActionReallocateDownPayment ActionType = "REALLOCATE_DOWN_PAYMENT"
	ActionAccelerateSofiLoan    ActionType = "ACCELERATE_SOFI_LOAN"
	ActionNone                  ActionType = "NO_ACTION"
)

// Valid reports whether the action type is one the effect applier knows.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCompleteEmergencyFund, ActionReallocateDownPayment, ActionAccelerateSofiLoan, ActionNone:
		return true
	}
	return false
}

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionDenied   SuggestionStatus = "denied"
)

type DecisionKind string

const (
	DecisionApprove  DecisionKind = "approve"
	DecisionDeny     DecisionKind = "deny"
	DecisionKnowMore DecisionKind = "know_more"
)

var (
	ErrSuggestionDecided = errors.New("suggestion already decided")
	ErrUnknownDecision   = errors.New("unknown decision")
)

type Suggestion struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Status      SuggestionStatus `json:"status"`
	ContextType string           `json:"contextType,omitempty"`
	ActionType  ActionType       `json:"actionType"`
}

// Transition applies a decision. approve/deny move a pending suggestion to a
// terminal state exactly once; know_more leaves the status untouched.
func (s *Suggestion) Transition(kind DecisionKind) error {
	switch kind {
	case DecisionKnowMore:
		return nil
	case DecisionApprove, DecisionDeny:
	default:
		return ErrUnknownDecision
	}

	if s.Status != "" && s.Status != SuggestionPending {
		return ErrSuggestionDecided
	}
	if kind == DecisionApprove {
		s.Status = SuggestionApproved
	} else {
		s.Status = SuggestionDenied
	}
	return nil
}

// ParsedResponse is what the parser extracts from raw LLM text.
type ParsedResponse struct {
	Summary     string       `json:"summary"`
	Suggestions []Suggestion `json:"suggestions"`
}

// ============================================================================
// SUMMARY CACHE
// ============================================================================

type CachedSummary struct {
	ID                  string                           `json:"id"`
	Identity            string                           `json:"identity"`
	ViewMode            string                           `json:"view_mode"`
	DataHash            string                           `json:"data_hash"`
	SummaryText         string                           `json:"summary_text"`
	FinancialData       FinancialSnapshot                `json:"financial_data"`
	Suggestions         []Suggestion                     `json:"suggestions"`
	SuggestionResponses map[string]map[ActionType]string `json:"suggestion_responses"`
	CreatedAt           time.Time                        `json:"created_at"`
	ExpiresAt           time.Time                        `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (c *CachedSummary) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
