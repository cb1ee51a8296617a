package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LovationAdmin/advisor-api/models"

	json "github.com/goccy/go-json"
	"github.com/kr/text"
	"github.com/shopspring/decimal"
)

// ============================================================================
// CONTEXT ASSEMBLER
// Turns the user's accounts and goals into the text block injected into the
// system prompt. Read-only.
// ============================================================================

type ContextAssembler struct {
	stores StoreSelector
}

func NewContextAssembler(stores StoreSelector) *ContextAssembler {
	return &ContextAssembler{stores: stores}
}

// goalContextData is the optional payload sent by the goal screens.
type goalContextData struct {
	Goal   *models.Goal `json:"goal,omitempty"`
	GoalID string       `json:"goalId,omitempty"`
}

// Assemble returns ok=false when the request carries no identity at all.
func (a *ContextAssembler) Assemble(ctx context.Context, id models.Identity, contextType string, contextData []byte) (string, bool, error) {
	if id.Empty() {
		return "", false, nil
	}

	store, err := a.stores.For(id)
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			return "", false, nil
		}
		return "", false, err
	}

	accounts, err := store.Accounts(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to load accounts: %w", err)
	}
	goals, err := store.Goals(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to load goals: %w", err)
	}
	profile, err := store.Profile(ctx, id)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return "", false, fmt.Errorf("failed to load profile: %w", err)
	}

	return FormatFinancialContext(contextType, profile, accounts, goals, contextData), true, nil
}

// FormatFinancialContext renders the block for one context type.
func FormatFinancialContext(contextType string, profile *models.UserProfile, accounts []models.LinkedAccount, goals []models.Goal, contextData []byte) string {
	snapshot := ComputeSnapshot(accounts)

	var b strings.Builder
	if profile != nil && profile.FullName != "" {
		fmt.Fprintf(&b, "User: %s", profile.FullName)
		if profile.Age > 0 {
			fmt.Fprintf(&b, ", age %d", profile.Age)
		}
		if profile.RiskTolerance != "" {
			fmt.Fprintf(&b, ", %s risk tolerance", profile.RiskTolerance)
		}
		b.WriteString("\n")
	}

	switch SelectPrompt(contextType) {
	case PromptAssetsReview:
		fmt.Fprintf(&b, "Total assets: %s (cash %s, investments %s)\n",
			formatMoney(snapshot.AssetsTotal), formatMoney(snapshot.CashTotal), formatMoney(snapshot.InvestmentsTotal))
		b.WriteString("Asset accounts:\n")
		b.WriteString(text.Indent(formatAccounts(accounts, func(a models.LinkedAccount) bool {
			return a.AccountType != models.AccountTypeLoan
		}), "  "))

	case PromptLiabilitiesReview:
		fmt.Fprintf(&b, "Total liabilities: %s\n", formatMoney(snapshot.LiabilitiesTotal))
		b.WriteString("Loans:\n")
		b.WriteString(text.Indent(formatAccounts(accounts, func(a models.LinkedAccount) bool {
			return a.AccountType == models.AccountTypeLoan
		}), "  "))
		fmt.Fprintf(&b, "Cash available: %s\n", formatMoney(snapshot.CashTotal))

	case PromptGoalCoach:
		if goal := selectGoal(goals, contextData); goal != nil {
			b.WriteString("Focused goal:\n")
			b.WriteString(text.Indent(formatGoal(*goal), "  "))
		}
		writeGeneralSnapshot(&b, snapshot, accounts, goals)

	default:
		// net worth, dashboard and general chat all get the full picture
		writeGeneralSnapshot(&b, snapshot, accounts, goals)
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeGeneralSnapshot(b *strings.Builder, snapshot models.FinancialSnapshot, accounts []models.LinkedAccount, goals []models.Goal) {
	fmt.Fprintf(b, "Net worth: %s\n", formatMoney(snapshot.NetWorth))
	fmt.Fprintf(b, "Assets: %s (cash %s, investments %s)\n",
		formatMoney(snapshot.AssetsTotal), formatMoney(snapshot.CashTotal), formatMoney(snapshot.InvestmentsTotal))
	fmt.Fprintf(b, "Liabilities: %s\n", formatMoney(snapshot.LiabilitiesTotal))

	if len(accounts) > 0 {
		b.WriteString("Accounts:\n")
		b.WriteString(text.Indent(formatAccounts(accounts, nil), "  "))
	}
	if len(goals) > 0 {
		b.WriteString("Goals:\n")
		for _, g := range goals {
			b.WriteString(text.Indent(formatGoal(g), "  "))
		}
	}
}

func formatAccounts(accounts []models.LinkedAccount, keep func(models.LinkedAccount) bool) string {
	var b strings.Builder
	for _, a := range accounts {
		if keep != nil && !keep(a) {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s", a.ProviderName, a.AccountType)
		if a.LastFourDigits != "" {
			fmt.Fprintf(&b, " ••%s", a.LastFourDigits)
		}
		fmt.Fprintf(&b, "): %s", formatMoney(a.TotalAmount))
		if a.InterestRate > 0 {
			fmt.Fprintf(&b, " at %.2f%%", a.InterestRate)
		}
		if a.AccountType != models.AccountTypeLoan {
			fmt.Fprintf(&b, " [%.0f/%.0f/%.0f savings/stocks/bonds]",
				a.AllocationSavings, a.AllocationStocks, a.AllocationBonds)
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "- none\n"
	}
	return b.String()
}

func formatGoal(g models.Goal) string {
	var b strings.Builder
	progress := 0.0
	if g.TargetAmount > 0 {
		progress = g.CurrentAmount / g.TargetAmount * 100
	}
	fmt.Fprintf(&b, "- %s: %s of %s (%.0f%%)", g.Name, formatMoney(g.CurrentAmount), formatMoney(g.TargetAmount), progress)
	if g.TargetAge != nil {
		fmt.Fprintf(&b, ", target age %d", *g.TargetAge)
	}
	if g.Status == models.GoalStatusCompleted {
		b.WriteString(", completed")
	}
	fmt.Fprintf(&b, ", allocation %.0f/%.0f/%.0f savings/stocks/bonds\n",
		g.AllocationSavings, g.AllocationStocks, g.AllocationBonds)
	if g.Description != "" {
		b.WriteString(text.Indent(text.Wrap(g.Description, 72), "    "))
		b.WriteString("\n")
	}
	return b.String()
}

func selectGoal(goals []models.Goal, contextData []byte) *models.Goal {
	if len(contextData) == 0 {
		return nil
	}
	var data goalContextData
	if err := json.Unmarshal(contextData, &data); err != nil {
		return nil
	}

	goalID := data.GoalID
	if data.Goal != nil {
		if data.Goal.ID == "" {
			return data.Goal
		}
		goalID = data.Goal.ID
	}
	for i := range goals {
		if goals[i].ID == goalID {
			return &goals[i]
		}
	}
	return data.Goal
}

// formatMoney renders 1234.5 as $1,234.50.
func formatMoney(amount float64) string {
	fixed := decimal.NewFromFloat(amount).Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if amount < 0 {
		sign = "-"
	}
	return sign + "$" + grouped.String() + "." + cents
}
