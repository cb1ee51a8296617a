package models

import (
	"fmt"
	"time"
)

// ============================================================================
// PROFILE & ACCOUNTS
// ============================================================================

type UserProfile struct {
	ID                  string    `json:"id"`
	FullName            string    `json:"full_name"`
	Age                 int       `json:"age,omitempty"`
	RiskTolerance       string    `json:"risk_tolerance,omitempty"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	CreatedAt           time.Time `json:"created_at"`
}

type AccountType string

const (
	AccountTypeBank       AccountType = "bank"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeLoan       AccountType = "loan"
)

type LinkedAccount struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id,omitempty"`
	AccountType       AccountType `json:"account_type"`
	ProviderName      string      `json:"provider_name"`
	LastFourDigits    string      `json:"last_four_digits,omitempty"`
	TotalAmount       float64     `json:"total_amount"`
	InterestRate      float64     `json:"interest_rate,omitempty"`
	AllocationSavings float64     `json:"allocation_savings"`
	AllocationStocks  float64     `json:"allocation_stocks"`
	AllocationBonds   float64     `json:"allocation_bonds"`
}

// ValidateAllocation checks that a non-loan account is fully allocated and
// that a loan carries no allocation at all.
func (a LinkedAccount) ValidateAllocation() error {
	sum := a.AllocationSavings + a.AllocationStocks + a.AllocationBonds
	if a.AccountType == AccountTypeLoan {
		if sum != 0 {
			return fmt.Errorf("loan account %s has allocation %.0f, expected 0", a.ID, sum)
		}
		return nil
	}
	if sum != 100 {
		return fmt.Errorf("account %s allocation sums to %.0f, expected 100", a.ID, sum)
	}
	return nil
}

// ============================================================================
// GOALS
// ============================================================================

const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
)

type Goal struct {
	ID                string  `json:"id"`
	UserID            string  `json:"user_id,omitempty"`
	Name              string  `json:"name"`
	TargetAmount      float64 `json:"target_amount"`
	CurrentAmount     float64 `json:"current_amount"`
	TargetAge         *int    `json:"target_age,omitempty"`
	Description       string  `json:"description,omitempty"`
	SavingAccount     string  `json:"saving_account,omitempty"`
	InvestmentAccount string  `json:"investment_account,omitempty"`
	AllocationSavings float64 `json:"allocation_savings"`
	AllocationStocks  float64 `json:"allocation_stocks"`
	AllocationBonds   float64 `json:"allocation_bonds"`
	Status            string  `json:"status,omitempty"`
}

// Allocation is a savings/stocks/bonds percentage mix.
type Allocation struct {
	Savings float64 `json:"savings"`
	Stocks  float64 `json:"stocks"`
	Bonds   float64 `json:"bonds"`
}

func (a Allocation) String() string {
	return fmt.Sprintf("%.0f%% savings / %.0f%% stocks / %.0f%% bonds", a.Savings, a.Stocks, a.Bonds)
}

// ============================================================================
// SNAPSHOT & DEMO FIXTURES
// ============================================================================

// FinancialSnapshot is always derived from the account list, never stored.
type FinancialSnapshot struct {
	NetWorth         float64 `json:"net_worth"`
	AssetsTotal      float64 `json:"assets_total"`
	LiabilitiesTotal float64 `json:"liabilities_total"`
	CashTotal        float64 `json:"cash_total"`
	InvestmentsTotal float64 `json:"investments_total"`
}

type DemoProfile struct {
	ID       string            `json:"id"`
	Profile  UserProfile       `json:"profile"`
	Accounts []LinkedAccount   `json:"accounts"`
	Goals    []Goal            `json:"goals"`
	Snapshot FinancialSnapshot `json:"snapshot"`
}
