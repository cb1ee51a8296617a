package services

import (
	"github.com/LovationAdmin/advisor-api/models"

	"github.com/shopspring/decimal"
)

// ComputeSnapshot derives the totals from the full account list. It never
// updates incrementally, so NetWorth always equals Assets - Liabilities.
func ComputeSnapshot(accounts []models.LinkedAccount) models.FinancialSnapshot {
	cash := decimal.Zero
	investments := decimal.Zero
	liabilities := decimal.Zero

	for _, a := range accounts {
		amount := decimal.NewFromFloat(a.TotalAmount)
		switch a.AccountType {
		case models.AccountTypeBank:
			cash = cash.Add(amount)
		case models.AccountTypeInvestment:
			investments = investments.Add(amount)
		case models.AccountTypeLoan:
			liabilities = liabilities.Add(amount.Abs())
		}
	}

	assets := cash.Add(investments)
	return models.FinancialSnapshot{
		NetWorth:         toCents(assets.Sub(liabilities)),
		AssetsTotal:      toCents(assets),
		LiabilitiesTotal: toCents(liabilities),
		CashTotal:        toCents(cash),
		InvestmentsTotal: toCents(investments),
	}
}

func toCents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// roundCents rounds a float amount to cents through decimal to avoid the
// usual float drift (0.1+0.2).
func roundCents(f float64) float64 {
	return toCents(decimal.NewFromFloat(f))
}
