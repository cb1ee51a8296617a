package services

import (
	"context"
	"errors"

	"github.com/LovationAdmin/advisor-api/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNoIdentity      = errors.New("no user or demo profile in request")
	ErrProfileNotFound = errors.New("profile not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrGoalNotFound    = errors.New("goal not found")
)

type StoreMode string

const (
	StoreModeDemo StoreMode = "demo"
	StoreModeLive StoreMode = "live"
)

// FinanceStore is the single contract behind both the in-memory demo personas
// and the Postgres tables of real users. The effect applier is written once
// against it and branches on Mode() only where real money cannot be moved.
type FinanceStore interface {
	Mode() StoreMode
	Profile(ctx context.Context, id models.Identity) (*models.UserProfile, error)
	Accounts(ctx context.Context, id models.Identity) ([]models.LinkedAccount, error)
	Goals(ctx context.Context, id models.Identity) ([]models.Goal, error)

	Transfer(ctx context.Context, id models.Identity, fromAccountID, toAccountID string, amount decimal.Decimal) error
	AdjustAccountBalance(ctx context.Context, id models.Identity, accountID string, delta decimal.Decimal) error
	UpdateGoalAmount(ctx context.Context, id models.Identity, goalID string, currentAmount float64) error
	SetGoalAllocation(ctx context.Context, id models.Identity, goalID string, alloc models.Allocation) error
	MarkGoalCompleted(ctx context.Context, id models.Identity, goalID string) error

	// ConsumeSuggestion records an approved suggestion. It returns false when
	// the suggestion was already consumed, so effects never run twice.
	ConsumeSuggestion(ctx context.Context, id models.Identity, suggestionID string, action models.ActionType) (bool, error)
	// ReleaseSuggestion drops the record again when the effect changed nothing.
	ReleaseSuggestion(ctx context.Context, id models.Identity, suggestionID string) error
}

// StoreSelector picks the backing store once per request.
type StoreSelector struct {
	Demo *DemoFinanceStore
	Live FinanceStore
}

func (s StoreSelector) For(id models.Identity) (FinanceStore, error) {
	switch {
	case id.UserID != "":
		if s.Live == nil {
			return nil, errors.New("live finance store not configured")
		}
		return s.Live, nil
	case id.DemoProfileID != "":
		if s.Demo == nil {
			return nil, errors.New("demo finance store not configured")
		}
		return s.Demo, nil
	default:
		return nil, ErrNoIdentity
	}
}
