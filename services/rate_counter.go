package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// RATE COUNTERS
// Fixed-window counters. The Postgres store is shared by every instance; the
// memory store is for demo-only runs without a database.
// ============================================================================

type CounterStore interface {
	// Hit counts one attempt against key and reports whether it stayed
	// within limit, plus when the current window resets.
	Hit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time, err error)
	Cleanup(ctx context.Context) error
}

type counterWindow struct {
	count     int
	resetTime time.Time
}

type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counterWindow
	now      func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*counterWindow), now: time.Now}
}

func (m *MemoryCounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, exists := m.counters[key]
	if !exists || !now.Before(w.resetTime) {
		w = &counterWindow{resetTime: now.Add(window)}
		m.counters[key] = w
	}
	w.count++
	return w.count <= limit, w.resetTime, nil
}

func (m *MemoryCounterStore) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, w := range m.counters {
		if !now.Before(w.resetTime) {
			delete(m.counters, key)
		}
	}
	return nil
}

type PostgresCounterStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPostgresCounterStore(db *sql.DB) *PostgresCounterStore {
	return &PostgresCounterStore{DB: db, now: time.Now}
}

// Hit upserts the counter row in one statement so concurrent instances never
// lose an increment.
func (p *PostgresCounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time, error) {
	now := p.now()
	var (
		count       int
		windowStart time.Time
	)
	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO rate_limits (key, count, window_start)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limits.window_start <= $3 THEN 1 ELSE rate_limits.count + 1 END,
			window_start = CASE WHEN rate_limits.window_start <= $3 THEN $2 ELSE rate_limits.window_start END
		RETURNING count, window_start
	`, key, now, now.Add(-window)).Scan(&count, &windowStart)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to record rate limit hit: %w", err)
	}
	return count <= limit, windowStart.Add(window), nil
}

func (p *PostgresCounterStore) Cleanup(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < NOW() - INTERVAL '1 day'`)
	if err != nil {
		return fmt.Errorf("failed to clean rate limits: %w", err)
	}
	return nil
}
