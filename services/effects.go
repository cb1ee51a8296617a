package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/shopspring/decimal"
)

// ============================================================================
// EFFECT APPLIER
// Runs the side effect of an approved suggestion against whichever store the
// request resolved to. Real money is never moved for live users: those steps
// come back as pending manual actions.
// ============================================================================

var (
	emergencyTransferCap = decimal.NewFromInt(1500)
	loanExtraPayment     = decimal.NewFromInt(500)

	// DefaultDownPaymentAllocation is the product default target mix.
	DefaultDownPaymentAllocation = models.Allocation{Savings: 60, Stocks: 30, Bonds: 10}

	savingsMarkers = []string{"saving", "marcus", "ally", "high-yield", "high yield"}
)

type EffectResult struct {
	AppliedActions []string                  `json:"appliedActions"`
	PendingActions []string                  `json:"pendingActions"`
	GoalUpdated    bool                      `json:"goalUpdated"`
	AlreadyApplied bool                      `json:"alreadyApplied"`
	Snapshot       *models.FinancialSnapshot `json:"snapshot,omitempty"`
}

func (r *EffectResult) applied(format string, args ...interface{}) {
	r.AppliedActions = append(r.AppliedActions, fmt.Sprintf(format, args...))
}

func (r *EffectResult) pending(format string, args ...interface{}) {
	r.PendingActions = append(r.PendingActions, fmt.Sprintf(format, args...))
}

// CacheInvalidator drops every cached summary of an identity.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, identity string) error
}

// UpdateNotifier pushes a "data changed" signal to open dashboards.
type UpdateNotifier interface {
	NotifyFinancialUpdate(identity string, snapshot *models.FinancialSnapshot)
}

type EffectApplier struct {
	downPaymentMix models.Allocation
	cache          CacheInvalidator
	notifier       UpdateNotifier
}

func NewEffectApplier(downPaymentMix models.Allocation, cache CacheInvalidator, notifier UpdateNotifier) *EffectApplier {
	return &EffectApplier{
		downPaymentMix: downPaymentMix,
		cache:          cache,
		notifier:       notifier,
	}
}

// Apply executes an approved suggestion. Denied and know-more decisions never
// reach this point.
func (e *EffectApplier) Apply(ctx context.Context, store FinanceStore, id models.Identity, s models.Suggestion) EffectResult {
	var result EffectResult

	action := s.ActionType
	if !action.Valid() {
		action = InferActionType(s.Title)
	}

	claimed := false
	if action != models.ActionNone {
		if s.ID == "" {
			utils.SafeWarn("[Effects] ⚠️  Refusing %s without a suggestion id", action)
			result.pending("I couldn't tell which suggestion this was, so nothing was changed. Please approve it again from its card.")
			return result
		}
		fresh, err := store.ConsumeSuggestion(ctx, id, s.ID, action)
		if err != nil {
			utils.SafeError("[Effects] ❌ Failed to record decision for %s: %v", utils.MaskID(s.ID), err)
			result.pending("I've logged this, but hit a technical issue saving your decision. Please try again in a moment.")
			return result
		}
		if !fresh {
			result.AlreadyApplied = true
			result.applied("This suggestion was already applied, so nothing was changed again.")
			return result
		}
		claimed = true
	}

	switch action {
	case models.ActionCompleteEmergencyFund:
		e.completeEmergencyFund(ctx, store, id, &result)
	case models.ActionReallocateDownPayment:
		e.reallocateDownPayment(ctx, store, id, &result)
	case models.ActionAccelerateSofiLoan:
		e.accelerateLoan(ctx, store, id, &result)
	default:
		result.pending("%s", manualStepsFor(s.Title))
	}

	// Nothing changed, so a later approval must be able to try again.
	if claimed && len(result.AppliedActions) == 0 {
		if err := store.ReleaseSuggestion(ctx, id, s.ID); err != nil {
			utils.SafeError("[Effects] ❌ Failed to release decision for %s: %v", utils.MaskID(s.ID), err)
		}
	}

	if len(result.AppliedActions) > 0 {
		e.afterMutation(ctx, store, id, &result)
	}

	log.Printf("[Effects] %s (%s) on %s: %d applied, %d pending",
		action, store.Mode(), utils.MaskID(id.Key()), len(result.AppliedActions), len(result.PendingActions))
	return result
}

func (e *EffectApplier) completeEmergencyFund(ctx context.Context, store FinanceStore, id models.Identity, result *EffectResult) {
	goals, err := store.Goals(ctx, id)
	if err != nil {
		utils.SafeError("[Effects] ❌ Failed to load goals: %v", err)
		result.pending("I've logged this, but hit a technical issue loading your goals. Please top up your emergency fund manually.")
		return
	}
	goal := findGoal(goals, "emergency")
	if goal == nil {
		result.pending("I couldn't find an emergency fund goal. Create one, then move spare cash from checking into savings.")
		return
	}

	target := decimal.NewFromFloat(goal.TargetAmount)
	current := decimal.NewFromFloat(goal.CurrentAmount)
	needed := target.Sub(current)
	if !needed.IsPositive() {
		result.applied("Your %s is already fully funded at %s.", goal.Name, formatMoney(goal.TargetAmount))
		return
	}

	if store.Mode() == StoreModeLive {
		if err := store.MarkGoalCompleted(ctx, id, goal.ID); err != nil {
			utils.SafeError("[Effects] ❌ Failed to complete goal %s: %v", utils.MaskID(goal.ID), err)
			result.pending("I've logged this, but hit a technical issue marking %s as complete. Please update it from the Goals page.", goal.Name)
		} else {
			result.applied("Marked your %s goal as completed.", goal.Name)
			result.GoalUpdated = true
		}
		result.pending("Transfer %s from your checking account to your savings account to fully fund your %s.", formatMoney(toCents(needed)), goal.Name)
		return
	}

	accounts, err := store.Accounts(ctx, id)
	if err != nil {
		utils.SafeError("[Effects] ❌ Failed to load accounts: %v", err)
		result.pending("I've logged this, but hit a technical issue loading your accounts. Please move %s into savings manually.", formatMoney(toCents(needed)))
		return
	}
	source, destination := pickTransferAccounts(accounts, goal.SavingAccount)
	if source == nil || destination == nil {
		result.pending("Move %s from checking into your savings account to finish your %s.", formatMoney(toCents(needed)), goal.Name)
		return
	}

	amount := decimal.Min(needed, emergencyTransferCap, decimal.NewFromFloat(source.TotalAmount))
	if !amount.IsPositive() {
		result.pending("%s has no balance to move. Add %s to savings when you can.", source.ProviderName, formatMoney(toCents(needed)))
		return
	}

	if err := store.Transfer(ctx, id, source.ID, destination.ID, amount); err != nil {
		utils.SafeError("[Effects] ❌ Transfer of %s failed: %v", utils.MaskAmount(amount.InexactFloat64()), err)
		result.pending("I've logged this, but hit a technical issue moving the money. Please transfer %s from %s to %s yourself.",
			formatMoney(toCents(amount)), source.ProviderName, destination.ProviderName)
		return
	}
	utils.SafeInfo("[Effects] ✅ Moved %s into %s", utils.MaskAmount(amount.InexactFloat64()), utils.MaskID(destination.ID))
	result.applied("Moved %s from %s to %s.", formatMoney(toCents(amount)), source.ProviderName, destination.ProviderName)

	newCurrent := decimal.Min(current.Add(amount), target)
	if err := store.UpdateGoalAmount(ctx, id, goal.ID, toCents(newCurrent)); err != nil {
		utils.SafeError("[Effects] ❌ Failed to update goal %s: %v", utils.MaskID(goal.ID), err)
		result.pending("I've logged this, but hit a technical issue updating %s. Please refresh its progress from the Goals page.", goal.Name)
		return
	}
	result.GoalUpdated = true
	result.applied("%s is now at %s of %s.", goal.Name, formatMoney(toCents(newCurrent)), formatMoney(goal.TargetAmount))

	if newCurrent.GreaterThanOrEqual(target) {
		if err := store.MarkGoalCompleted(ctx, id, goal.ID); err != nil {
			utils.SafeWarn("[Effects] ⚠️  Could not mark %s completed: %v", goal.Name, err)
		}
	} else {
		result.pending("Add the remaining %s to %s to finish your %s.",
			formatMoney(toCents(target.Sub(newCurrent))), destination.ProviderName, goal.Name)
	}
}

func (e *EffectApplier) reallocateDownPayment(ctx context.Context, store FinanceStore, id models.Identity, result *EffectResult) {
	goals, err := store.Goals(ctx, id)
	if err != nil {
		utils.SafeError("[Effects] ❌ Failed to load goals: %v", err)
		result.pending("I've logged this, but hit a technical issue loading your goals. Please update your down payment allocation to %s yourself.", e.downPaymentMix)
		return
	}
	goal := findGoal(goals, "down payment")
	if goal == nil {
		result.pending("I couldn't find a down payment goal. Create one and set its allocation to %s.", e.downPaymentMix)
		return
	}

	if err := store.SetGoalAllocation(ctx, id, goal.ID, e.downPaymentMix); err != nil {
		utils.SafeError("[Effects] ❌ Failed to reallocate goal %s: %v", utils.MaskID(goal.ID), err)
		result.pending("I've logged this, but hit a technical issue updating %s. Please set its allocation to %s from the Goals page.", goal.Name, e.downPaymentMix)
		return
	}
	result.GoalUpdated = true
	result.applied("Updated your %s allocation to %s.", goal.Name, e.downPaymentMix)

	if store.Mode() == StoreModeLive {
		where := goal.InvestmentAccount
		if where == "" {
			where = "your brokerage account"
		}
		result.pending("Rebalance the holdings in %s to match the new %s target.", where, goal.Name)
	}
}

func (e *EffectApplier) accelerateLoan(ctx context.Context, store FinanceStore, id models.Identity, result *EffectResult) {
	accounts, err := store.Accounts(ctx, id)
	if err != nil {
		utils.SafeError("[Effects] ❌ Failed to load accounts: %v", err)
		result.pending("I've logged this, but hit a technical issue loading your accounts. Please schedule an extra %s payment with your lender.", formatMoney(toCents(loanExtraPayment)))
		return
	}

	var loan *models.LinkedAccount
	for i := range accounts {
		if accounts[i].AccountType == models.AccountTypeLoan && strings.Contains(strings.ToLower(accounts[i].ProviderName), "sofi") {
			loan = &accounts[i]
			break
		}
	}
	if loan == nil {
		result.pending("I couldn't find a SoFi loan on your linked accounts. Schedule an extra %s principal payment with your lender.", formatMoney(toCents(loanExtraPayment)))
		return
	}

	if store.Mode() == StoreModeLive {
		result.pending("Log in to SoFi and schedule an extra %s payment toward the principal of your %s.", formatMoney(toCents(loanExtraPayment)), loan.ProviderName)
		return
	}

	if err := store.AdjustAccountBalance(ctx, id, loan.ID, loanExtraPayment.Neg()); err != nil {
		utils.SafeError("[Effects] ❌ Loan payment of %s failed: %v", utils.MaskAmount(loanExtraPayment.InexactFloat64()), err)
		result.pending("I've logged this, but hit a technical issue recording the payment. Please pay an extra %s to SoFi yourself.", formatMoney(toCents(loanExtraPayment)))
		return
	}
	newBalance := decimal.Max(decimal.NewFromFloat(loan.TotalAmount).Sub(loanExtraPayment), decimal.Zero)
	utils.SafeInfo("[Effects] ✅ Paid %s toward %s, balance now %s",
		utils.MaskAmount(loanExtraPayment.InexactFloat64()), utils.MaskID(loan.ID), utils.MaskAmount(newBalance.InexactFloat64()))
	result.applied("Applied an extra %s payment to %s. New balance: %s.",
		formatMoney(toCents(loanExtraPayment)), loan.ProviderName, formatMoney(toCents(newBalance)))
}

// afterMutation re-derives the snapshot and tells caches and dashboards.
func (e *EffectApplier) afterMutation(ctx context.Context, store FinanceStore, id models.Identity, result *EffectResult) {
	if accounts, err := store.Accounts(ctx, id); err == nil {
		snapshot := ComputeSnapshot(accounts)
		result.Snapshot = &snapshot
	}

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, id.Key()); err != nil {
			utils.SafeWarn("[Effects] ⚠️  Cache invalidation failed for %s: %v", utils.MaskID(id.Key()), err)
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyFinancialUpdate(id.Key(), result.Snapshot)
	}
}

func manualStepsFor(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "refinance"):
		return "Compare refinance offers from at least three lenders and only switch if the new rate beats your current one after fees."
	case strings.Contains(t, "consolidate"):
		return "Check consolidation offers against the weighted rate of your current debts before applying; I can't open new credit for you."
	case strings.Contains(t, "advisor"):
		return "Book a session with a fee-only fiduciary advisor to review this in detail."
	case strings.Contains(t, "tax"):
		return "Review this with a tax professional or your tax software before making changes."
	default:
		return fmt.Sprintf("Review \"%s\" and take the steps that fit your situation. I can't make this change automatically.", title)
	}
}

func findGoal(goals []models.Goal, keyword string) *models.Goal {
	for i := range goals {
		if strings.Contains(strings.ToLower(goals[i].Name), keyword) {
			return &goals[i]
		}
	}
	return nil
}

func isSavingsAccount(a models.LinkedAccount) bool {
	name := strings.ToLower(a.ProviderName)
	for _, marker := range savingsMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// pickTransferAccounts finds the checking-type source and the savings-type
// destination among bank accounts.
func pickTransferAccounts(accounts []models.LinkedAccount, preferredSavings string) (source, destination *models.LinkedAccount) {
	for i := range accounts {
		a := &accounts[i]
		if a.AccountType != models.AccountTypeBank {
			continue
		}
		if isSavingsAccount(*a) {
			if destination == nil || (preferredSavings != "" && strings.EqualFold(a.ProviderName, preferredSavings)) {
				destination = a
			}
			continue
		}
		if source == nil || a.TotalAmount > source.TotalAmount {
			source = a
		}
	}
	return source, destination
}
