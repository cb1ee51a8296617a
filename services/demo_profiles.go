package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/LovationAdmin/advisor-api/models"

	"github.com/shopspring/decimal"
)

// ============================================================================
// DEMO PERSONAS
// Self-contained fixtures mutated in place so the lifecycle can be tried
// without an account.
// ============================================================================

func intPtr(v int) *int { return &v }

func seedDemoProfiles() map[string]*models.DemoProfile {
	profiles := []*models.DemoProfile{
		{
			ID: "young-professional",
			Profile: models.UserProfile{
				ID: "young-professional", FullName: "Alex Rivera", Age: 28,
				RiskTolerance: "moderate", OnboardingCompleted: true,
			},
			Accounts: []models.LinkedAccount{
				{ID: "yp-chase", AccountType: models.AccountTypeBank, ProviderName: "Chase Checking", LastFourDigits: "4821", TotalAmount: 28500, InterestRate: 0.01, AllocationSavings: 100},
				{ID: "yp-marcus", AccountType: models.AccountTypeBank, ProviderName: "Marcus High-Yield Savings", LastFourDigits: "9034", TotalAmount: 15000, InterestRate: 4.4, AllocationSavings: 100},
				{ID: "yp-vanguard", AccountType: models.AccountTypeInvestment, ProviderName: "Vanguard Brokerage", LastFourDigits: "1177", TotalAmount: 42000, AllocationSavings: 10, AllocationStocks: 75, AllocationBonds: 15},
				{ID: "yp-fidelity-401k", AccountType: models.AccountTypeInvestment, ProviderName: "Fidelity 401(k)", LastFourDigits: "5530", TotalAmount: 31000, AllocationStocks: 85, AllocationBonds: 15},
				{ID: "yp-sofi", AccountType: models.AccountTypeLoan, ProviderName: "SoFi Student Loan", LastFourDigits: "2290", TotalAmount: 18500, InterestRate: 6.8},
			},
			Goals: []models.Goal{
				{ID: "yp-emergency", Name: "Emergency Fund", TargetAmount: 30000, CurrentAmount: 28500, Description: "Six months of expenses kept in cash.", SavingAccount: "Marcus High-Yield Savings", AllocationSavings: 100, Status: models.GoalStatusActive},
				{ID: "yp-down-payment", Name: "Down Payment", TargetAmount: 80000, CurrentAmount: 24000, TargetAge: intPtr(32), Description: "20% down on a condo in the city within four years.", SavingAccount: "Marcus High-Yield Savings", InvestmentAccount: "Vanguard Brokerage", AllocationSavings: 20, AllocationStocks: 70, AllocationBonds: 10, Status: models.GoalStatusActive},
				{ID: "yp-retirement", Name: "Retirement", TargetAmount: 1500000, CurrentAmount: 31000, TargetAge: intPtr(62), InvestmentAccount: "Fidelity 401(k)", AllocationStocks: 85, AllocationBonds: 15, Status: models.GoalStatusActive},
			},
		},
		{
			ID: "mid-career-family",
			Profile: models.UserProfile{
				ID: "mid-career-family", FullName: "Jordan Kim", Age: 41,
				RiskTolerance: "moderate", OnboardingCompleted: true,
			},
			Accounts: []models.LinkedAccount{
				{ID: "mc-boa", AccountType: models.AccountTypeBank, ProviderName: "Bank of America Checking", LastFourDigits: "3302", TotalAmount: 12400, InterestRate: 0.01, AllocationSavings: 100},
				{ID: "mc-ally", AccountType: models.AccountTypeBank, ProviderName: "Ally Savings", LastFourDigits: "6618", TotalAmount: 21000, InterestRate: 4.2, AllocationSavings: 100},
				{ID: "mc-schwab", AccountType: models.AccountTypeInvestment, ProviderName: "Schwab Brokerage", LastFourDigits: "8740", TotalAmount: 168000, AllocationSavings: 5, AllocationStocks: 65, AllocationBonds: 30},
				{ID: "mc-mortgage", AccountType: models.AccountTypeLoan, ProviderName: "Wells Fargo Mortgage", LastFourDigits: "1029", TotalAmount: 312000, InterestRate: 3.1},
				{ID: "mc-sofi", AccountType: models.AccountTypeLoan, ProviderName: "SoFi Personal Loan", LastFourDigits: "4471", TotalAmount: 9200, InterestRate: 9.5},
			},
			Goals: []models.Goal{
				{ID: "mc-emergency", Name: "Emergency Fund", TargetAmount: 36000, CurrentAmount: 21000, SavingAccount: "Ally Savings", AllocationSavings: 100, Status: models.GoalStatusActive},
				{ID: "mc-college", Name: "College Fund", TargetAmount: 120000, CurrentAmount: 38000, Description: "Two kids, in-state tuition.", InvestmentAccount: "Schwab Brokerage", AllocationSavings: 10, AllocationStocks: 60, AllocationBonds: 30, Status: models.GoalStatusActive},
			},
		},
		{
			ID: "pre-retiree",
			Profile: models.UserProfile{
				ID: "pre-retiree", FullName: "Pat Morgan", Age: 58,
				RiskTolerance: "conservative", OnboardingCompleted: true,
			},
			Accounts: []models.LinkedAccount{
				{ID: "pr-chase", AccountType: models.AccountTypeBank, ProviderName: "Chase Checking", LastFourDigits: "7710", TotalAmount: 9800, InterestRate: 0.01, AllocationSavings: 100},
				{ID: "pr-marcus", AccountType: models.AccountTypeBank, ProviderName: "Marcus Savings", LastFourDigits: "2214", TotalAmount: 48000, InterestRate: 4.4, AllocationSavings: 100},
				{ID: "pr-vanguard-ira", AccountType: models.AccountTypeInvestment, ProviderName: "Vanguard IRA", LastFourDigits: "6093", TotalAmount: 610000, AllocationSavings: 10, AllocationStocks: 45, AllocationBonds: 45},
			},
			Goals: []models.Goal{
				{ID: "pr-emergency", Name: "Emergency Fund", TargetAmount: 50000, CurrentAmount: 48000, SavingAccount: "Marcus Savings", AllocationSavings: 100, Status: models.GoalStatusActive},
				{ID: "pr-retirement", Name: "Retirement Income", TargetAmount: 900000, CurrentAmount: 610000, TargetAge: intPtr(65), InvestmentAccount: "Vanguard IRA", AllocationSavings: 10, AllocationStocks: 45, AllocationBonds: 45, Status: models.GoalStatusActive},
			},
		},
	}

	byID := make(map[string]*models.DemoProfile, len(profiles))
	for _, p := range profiles {
		p.Snapshot = ComputeSnapshot(p.Accounts)
		byID[p.ID] = p
	}
	return byID
}

// DemoFinanceStore keeps one mutable copy of every persona per process.
type DemoFinanceStore struct {
	mu       sync.Mutex
	profiles map[string]*models.DemoProfile
	consumed map[string]models.ActionType
}

func NewDemoFinanceStore() *DemoFinanceStore {
	return &DemoFinanceStore{
		profiles: seedDemoProfiles(),
		consumed: make(map[string]models.ActionType),
	}
}

func (s *DemoFinanceStore) Mode() StoreMode { return StoreModeDemo }

// DemoProfile returns a copy of the persona with its current snapshot.
func (s *DemoFinanceStore) DemoProfile(profileID string) (*models.DemoProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("demo profile %q: %w", profileID, ErrProfileNotFound)
	}
	return cloneDemoProfile(p), nil
}

// Reset restores one persona to its seeded state.
func (s *DemoFinanceStore) Reset(profileID string) error {
	seed, ok := seedDemoProfiles()[profileID]
	if !ok {
		return fmt.Errorf("demo profile %q: %w", profileID, ErrProfileNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileID] = seed
	for key := range s.consumed {
		if strings.HasPrefix(key, profileID+"|") {
			delete(s.consumed, key)
		}
	}
	return nil
}

func (s *DemoFinanceStore) Profile(ctx context.Context, id models.Identity) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	profile := p.Profile
	return &profile, nil
}

func (s *DemoFinanceStore) Accounts(ctx context.Context, id models.Identity) ([]models.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]models.LinkedAccount(nil), p.Accounts...), nil
}

func (s *DemoFinanceStore) Goals(ctx context.Context, id models.Identity) ([]models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]models.Goal(nil), p.Goals...), nil
}

func (s *DemoFinanceStore) Transfer(ctx context.Context, id models.Identity, fromAccountID, toAccountID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(id)
	if err != nil {
		return err
	}
	from := findAccount(p.Accounts, fromAccountID)
	to := findAccount(p.Accounts, toAccountID)
	if from == nil || to == nil {
		return ErrAccountNotFound
	}

	balance := decimal.NewFromFloat(from.TotalAmount)
	if amount.GreaterThan(balance) {
		return fmt.Errorf("insufficient balance in %s: %s < %s", from.ProviderName, balance, amount)
	}
	from.TotalAmount = toCents(balance.Sub(amount))
	to.TotalAmount = toCents(decimal.NewFromFloat(to.TotalAmount).Add(amount))
	p.Snapshot = ComputeSnapshot(p.Accounts)
	return nil
}

func (s *DemoFinanceStore) AdjustAccountBalance(ctx context.Context, id models.Identity, accountID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(id)
	if err != nil {
		return err
	}
	account := findAccount(p.Accounts, accountID)
	if account == nil {
		return ErrAccountNotFound
	}

	next := decimal.NewFromFloat(account.TotalAmount).Add(delta)
	if next.IsNegative() {
		next = decimal.Zero
	}
	account.TotalAmount = toCents(next)
	p.Snapshot = ComputeSnapshot(p.Accounts)
	return nil
}

func (s *DemoFinanceStore) UpdateGoalAmount(ctx context.Context, id models.Identity, goalID string, currentAmount float64) error {
	return s.mutateGoal(id, goalID, func(g *models.Goal) {
		g.CurrentAmount = currentAmount
	})
}

func (s *DemoFinanceStore) SetGoalAllocation(ctx context.Context, id models.Identity, goalID string, alloc models.Allocation) error {
	return s.mutateGoal(id, goalID, func(g *models.Goal) {
		g.AllocationSavings = alloc.Savings
		g.AllocationStocks = alloc.Stocks
		g.AllocationBonds = alloc.Bonds
	})
}

func (s *DemoFinanceStore) MarkGoalCompleted(ctx context.Context, id models.Identity, goalID string) error {
	return s.mutateGoal(id, goalID, func(g *models.Goal) {
		g.Status = models.GoalStatusCompleted
	})
}

func (s *DemoFinanceStore) ConsumeSuggestion(ctx context.Context, id models.Identity, suggestionID string, action models.ActionType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(id); err != nil {
		return false, err
	}
	key := id.DemoProfileID + "|" + suggestionID
	if _, done := s.consumed[key]; done {
		return false, nil
	}
	s.consumed[key] = action
	return true, nil
}

func (s *DemoFinanceStore) ReleaseSuggestion(ctx context.Context, id models.Identity, suggestionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consumed, id.DemoProfileID+"|"+suggestionID)
	return nil
}

func (s *DemoFinanceStore) mutateGoal(id models.Identity, goalID string, fn func(g *models.Goal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.lookup(id)
	if err != nil {
		return err
	}
	for i := range p.Goals {
		if p.Goals[i].ID == goalID {
			fn(&p.Goals[i])
			return nil
		}
	}
	return ErrGoalNotFound
}

// lookup must be called with s.mu held.
func (s *DemoFinanceStore) lookup(id models.Identity) (*models.DemoProfile, error) {
	if id.DemoProfileID == "" {
		return nil, ErrNoIdentity
	}
	p, ok := s.profiles[id.DemoProfileID]
	if !ok {
		return nil, fmt.Errorf("demo profile %q: %w", id.DemoProfileID, ErrProfileNotFound)
	}
	return p, nil
}

func findAccount(accounts []models.LinkedAccount, accountID string) *models.LinkedAccount {
	for i := range accounts {
		if accounts[i].ID == accountID {
			return &accounts[i]
		}
	}
	return nil
}

func cloneDemoProfile(p *models.DemoProfile) *models.DemoProfile {
	out := *p
	out.Accounts = append([]models.LinkedAccount(nil), p.Accounts...)
	out.Goals = append([]models.Goal(nil), p.Goals...)
	return &out
}
