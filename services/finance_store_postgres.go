package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/shopspring/decimal"
)

// PostgresFinanceStore reads and updates the tables of authenticated users.
type PostgresFinanceStore struct {
	db *sql.DB
}

func NewPostgresFinanceStore(db *sql.DB) *PostgresFinanceStore {
	return &PostgresFinanceStore{db: db}
}

func (s *PostgresFinanceStore) Mode() StoreMode { return StoreModeLive }

func (s *PostgresFinanceStore) Profile(ctx context.Context, id models.Identity) (*models.UserProfile, error) {
	if id.UserID == "" {
		return nil, ErrNoIdentity
	}

	var p models.UserProfile
	var age sql.NullInt64
	var risk sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(full_name, ''), age, risk_tolerance, onboarding_completed, created_at
		FROM profiles
		WHERE id = $1
	`, id.UserID).Scan(&p.ID, &p.FullName, &age, &risk, &p.OnboardingCompleted, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if age.Valid {
		p.Age = int(age.Int64)
	}
	p.RiskTolerance = risk.String
	return &p, nil
}

func (s *PostgresFinanceStore) Accounts(ctx context.Context, id models.Identity) ([]models.LinkedAccount, error) {
	if id.UserID == "" {
		return nil, ErrNoIdentity
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, account_type, provider_name, COALESCE(last_four_digits, ''),
		       total_amount, COALESCE(interest_rate, 0),
		       allocation_savings, allocation_stocks, allocation_bonds
		FROM linked_accounts
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.LinkedAccount
	for rows.Next() {
		var a models.LinkedAccount
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.AccountType, &a.ProviderName, &a.LastFourDigits,
			&a.TotalAmount, &a.InterestRate,
			&a.AllocationSavings, &a.AllocationStocks, &a.AllocationBonds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresFinanceStore) Goals(ctx context.Context, id models.Identity) ([]models.Goal, error) {
	if id.UserID == "" {
		return nil, ErrNoIdentity
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, target_amount, current_amount, target_age,
		       COALESCE(description, ''), COALESCE(saving_account, ''), COALESCE(investment_account, ''),
		       allocation_savings, allocation_stocks, allocation_bonds, status
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		var g models.Goal
		var targetAge sql.NullInt64
		if err := rows.Scan(
			&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &targetAge,
			&g.Description, &g.SavingAccount, &g.InvestmentAccount,
			&g.AllocationSavings, &g.AllocationStocks, &g.AllocationBonds, &g.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		if targetAge.Valid {
			age := int(targetAge.Int64)
			g.TargetAge = &age
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *PostgresFinanceStore) Transfer(ctx context.Context, id models.Identity, fromAccountID, toAccountID string, amount decimal.Decimal) error {
	return utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE linked_accounts SET total_amount = total_amount - $1, updated_at = NOW()
			WHERE id = $2 AND user_id = $3 AND total_amount >= $1
		`, amount.String(), fromAccountID, id.UserID)
		if err != nil {
			return fmt.Errorf("failed to debit account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAccountNotFound
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE linked_accounts SET total_amount = total_amount + $1, updated_at = NOW()
			WHERE id = $2 AND user_id = $3
		`, amount.String(), toAccountID, id.UserID)
		if err != nil {
			return fmt.Errorf("failed to credit account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
}

func (s *PostgresFinanceStore) AdjustAccountBalance(ctx context.Context, id models.Identity, accountID string, delta decimal.Decimal) error {
	return s.execOne(ctx, ErrAccountNotFound, `
		UPDATE linked_accounts SET total_amount = GREATEST(total_amount + $1, 0), updated_at = NOW()
		WHERE id = $2 AND user_id = $3
	`, delta.String(), accountID, id.UserID)
}

func (s *PostgresFinanceStore) UpdateGoalAmount(ctx context.Context, id models.Identity, goalID string, currentAmount float64) error {
	return s.execOne(ctx, ErrGoalNotFound, `
		UPDATE goals SET current_amount = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
	`, currentAmount, goalID, id.UserID)
}

func (s *PostgresFinanceStore) SetGoalAllocation(ctx context.Context, id models.Identity, goalID string, alloc models.Allocation) error {
	return s.execOne(ctx, ErrGoalNotFound, `
		UPDATE goals
		SET allocation_savings = $1, allocation_stocks = $2, allocation_bonds = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5
	`, alloc.Savings, alloc.Stocks, alloc.Bonds, goalID, id.UserID)
}

func (s *PostgresFinanceStore) MarkGoalCompleted(ctx context.Context, id models.Identity, goalID string) error {
	return s.execOne(ctx, ErrGoalNotFound, `
		UPDATE goals SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, goalID, id.UserID)
}

func (s *PostgresFinanceStore) ConsumeSuggestion(ctx context.Context, id models.Identity, suggestionID string, action models.ActionType) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_decisions (user_id, suggestion_id, action_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, suggestion_id) DO NOTHING
	`, id.UserID, suggestionID, string(action))
	if err != nil {
		return false, fmt.Errorf("failed to record decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresFinanceStore) ReleaseSuggestion(ctx context.Context, id models.Identity, suggestionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM suggestion_decisions
		WHERE user_id = $1 AND suggestion_id = $2
	`, id.UserID, suggestionID)
	if err != nil {
		return fmt.Errorf("failed to release decision: %w", err)
	}
	return nil
}

func (s *PostgresFinanceStore) execOne(ctx context.Context, notFound error, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}
