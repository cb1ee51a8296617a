package config

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// InitDB opens the Postgres pool. An empty url is not an error: the service
// then runs with in-memory stores for demo profiles only.
func InitDB(dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			full_name VARCHAR(255),
			age INTEGER,
			risk_tolerance VARCHAR(50),
			onboarding_completed BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS linked_accounts (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
			account_type VARCHAR(20) NOT NULL CHECK (account_type IN ('bank', 'investment', 'loan')),
			provider_name VARCHAR(255) NOT NULL,
			last_four_digits VARCHAR(4),
			total_amount NUMERIC(14, 2) NOT NULL DEFAULT 0,
			interest_rate NUMERIC(6, 3),
			allocation_savings NUMERIC(5, 2) NOT NULL DEFAULT 0,
			allocation_stocks NUMERIC(5, 2) NOT NULL DEFAULT 0,
			allocation_bonds NUMERIC(5, 2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			CHECK (
				(account_type = 'loan' AND allocation_savings + allocation_stocks + allocation_bonds = 0)
				OR (account_type <> 'loan' AND allocation_savings + allocation_stocks + allocation_bonds = 100)
			)
		)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			target_amount NUMERIC(14, 2) NOT NULL,
			current_amount NUMERIC(14, 2) NOT NULL DEFAULT 0 CHECK (current_amount >= 0),
			target_age INTEGER,
			description TEXT,
			saving_account VARCHAR(255),
			investment_account VARCHAR(255),
			allocation_savings NUMERIC(5, 2) NOT NULL DEFAULT 0,
			allocation_stocks NUMERIC(5, 2) NOT NULL DEFAULT 0,
			allocation_bonds NUMERIC(5, 2) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
			title VARCHAR(255),
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			silent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS summary_cache (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			identity VARCHAR(255) NOT NULL,
			view_mode VARCHAR(50) NOT NULL,
			data_hash VARCHAR(16) NOT NULL,
			summary_text TEXT NOT NULL,
			financial_data JSONB NOT NULL,
			suggestions JSONB NOT NULL DEFAULT '[]',
			suggestion_responses JSONB DEFAULT '{}',
			created_at TIMESTAMP DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS suggestion_decisions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
			suggestion_id VARCHAR(255) NOT NULL,
			action_type VARCHAR(50) NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			UNIQUE(user_id, suggestion_id)
		)`,

		`CREATE TABLE IF NOT EXISTS waitlist (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			birthday DATE NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS rate_limits (
			key VARCHAR(255) PRIMARY KEY,
			count INTEGER NOT NULL,
			window_start TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_linked_accounts_user_id ON linked_accounts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_user_id ON goals(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_summary_cache_lookup ON summary_cache(identity, view_mode, data_hash, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_summary_cache_expires ON summary_cache(expires_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
