package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/LovationAdmin/advisor-api/models"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// PostgresSummaryCache stores summaries in the summary_cache table.
type PostgresSummaryCache struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPostgresSummaryCache(db *sql.DB) *PostgresSummaryCache {
	return &PostgresSummaryCache{DB: db, now: time.Now}
}

const summaryCacheColumns = `id, identity, view_mode, data_hash, summary_text, financial_data,
		       suggestions, COALESCE(suggestion_responses, '{}'), created_at, expires_at`

func (c *PostgresSummaryCache) Get(ctx context.Context, key CacheKey) (*models.CachedSummary, error) {
	query := `SELECT ` + summaryCacheColumns + `
		FROM summary_cache
		WHERE identity = $1 AND view_mode = $2 AND data_hash = $3 AND expires_at > $4
		ORDER BY created_at DESC LIMIT 1`
	return c.scanOne(c.DB.QueryRowContext(ctx, query, key.Identity, key.ViewMode, key.DataHash, c.now()))
}

func (c *PostgresSummaryCache) GetIncludingExpired(ctx context.Context, key CacheKey) (*models.CachedSummary, error) {
	query := `SELECT ` + summaryCacheColumns + `
		FROM summary_cache
		WHERE identity = $1 AND view_mode = $2 AND data_hash = $3
		ORDER BY created_at DESC LIMIT 1`
	return c.scanOne(c.DB.QueryRowContext(ctx, query, key.Identity, key.ViewMode, key.DataHash))
}

func (c *PostgresSummaryCache) Set(ctx context.Context, key CacheKey, snapshot models.FinancialSnapshot, summary string, suggestions []models.Suggestion, ttl time.Duration) (*models.CachedSummary, error) {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	suggestionsJSON, err := json.Marshal(suggestions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	now := c.now()
	entry := &models.CachedSummary{
		Identity:            key.Identity,
		ViewMode:            key.ViewMode,
		DataHash:            key.DataHash,
		SummaryText:         summary,
		FinancialData:       snapshot,
		Suggestions:         suggestions,
		SuggestionResponses: map[string]map[models.ActionType]string{},
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}

	// Two requests racing here can both miss and both insert; readers take
	// the newest row so a duplicate is harmless.
	var existingID string
	err = c.DB.QueryRowContext(ctx, `
		SELECT id FROM summary_cache
		WHERE identity = $1 AND view_mode = $2 AND data_hash = $3
		ORDER BY created_at DESC LIMIT 1
	`, key.Identity, key.ViewMode, key.DataHash).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		entry.ID = uuid.New().String()
		_, err = c.DB.ExecContext(ctx, `
			INSERT INTO summary_cache (id, identity, view_mode, data_hash, summary_text, financial_data, suggestions, suggestion_responses, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, '{}', $8, $9)
		`, entry.ID, key.Identity, key.ViewMode, key.DataHash, summary, snapshotJSON, suggestionsJSON, entry.CreatedAt, entry.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert cached summary: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up cached summary: %w", err)
	default:
		entry.ID = existingID
		_, err = c.DB.ExecContext(ctx, `
			UPDATE summary_cache
			SET summary_text = $1, financial_data = $2, suggestions = $3, suggestion_responses = '{}',
			    created_at = $4, expires_at = $5
			WHERE id = $6
		`, summary, snapshotJSON, suggestionsJSON, entry.CreatedAt, entry.ExpiresAt, existingID)
		if err != nil {
			return nil, fmt.Errorf("failed to update cached summary: %w", err)
		}
	}

	return entry, nil
}

func (c *PostgresSummaryCache) SetSuggestionResponse(ctx context.Context, key CacheKey, suggestionID string, action models.ActionType, response string) error {
	res, err := c.DB.ExecContext(ctx, `
		UPDATE summary_cache
		SET suggestion_responses = jsonb_set(
			COALESCE(suggestion_responses, '{}'::jsonb),
			ARRAY[$1::text],
			COALESCE(suggestion_responses -> $1::text, '{}'::jsonb) || jsonb_build_object($2::text, $3::text)
		)
		WHERE id = (
			SELECT id FROM summary_cache
			WHERE identity = $4 AND view_mode = $5 AND data_hash = $6
			ORDER BY created_at DESC LIMIT 1
		)
	`, suggestionID, string(action), response, key.Identity, key.ViewMode, key.DataHash)
	if err != nil {
		return fmt.Errorf("failed to cache suggestion response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCacheMiss
	}
	return nil
}

func (c *PostgresSummaryCache) Invalidate(ctx context.Context, identity string) error {
	res, err := c.DB.ExecContext(ctx, `DELETE FROM summary_cache WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[SummaryCache] 🗑️  Invalidated %d entries", n)
	}
	return nil
}

func (c *PostgresSummaryCache) CleanExpired(ctx context.Context) (int64, error) {
	res, err := c.DB.ExecContext(ctx, `DELETE FROM summary_cache WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean cache: %w", err)
	}
	return res.RowsAffected()
}

func (c *PostgresSummaryCache) scanOne(row *sql.Row) (*models.CachedSummary, error) {
	var (
		entry           models.CachedSummary
		snapshotJSON    []byte
		suggestionsJSON []byte
		responsesJSON   []byte
	)
	err := row.Scan(
		&entry.ID, &entry.Identity, &entry.ViewMode, &entry.DataHash, &entry.SummaryText,
		&snapshotJSON, &suggestionsJSON, &responsesJSON, &entry.CreatedAt, &entry.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}

	if err := json.Unmarshal(snapshotJSON, &entry.FinancialData); err != nil {
		return nil, fmt.Errorf("failed to decode financial_data: %w", err)
	}
	if len(suggestionsJSON) > 0 {
		if err := json.Unmarshal(suggestionsJSON, &entry.Suggestions); err != nil {
			return nil, fmt.Errorf("failed to decode suggestions: %w", err)
		}
	}
	entry.SuggestionResponses = map[string]map[models.ActionType]string{}
	if len(responsesJSON) > 0 {
		if err := json.Unmarshal(responsesJSON, &entry.SuggestionResponses); err != nil {
			return nil, fmt.Errorf("failed to decode suggestion_responses: %w", err)
		}
	}
	return &entry, nil
}
