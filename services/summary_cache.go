package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/LovationAdmin/advisor-api/models"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ============================================================================
// SUMMARY CACHE
// Last generated summary per (identity, view mode, snapshot hash).
// ============================================================================

var ErrCacheMiss = errors.New("no cached summary for key")

const DefaultSummaryTTL = 24 * time.Hour

type CacheKey struct {
	Identity string
	ViewMode string
	DataHash string
}

// NewCacheKey hashes the snapshot so any change in the numbers misses.
func NewCacheKey(identity, viewMode string, snapshot models.FinancialSnapshot) CacheKey {
	return CacheKey{Identity: identity, ViewMode: viewMode, DataHash: HashSnapshot(snapshot)}
}

// HashSnapshot rounds every amount to cents and hashes the JSON encoding with
// FNV-1a. Not cryptographic; collisions only cost a stale summary.
func HashSnapshot(s models.FinancialSnapshot) string {
	rounded := models.FinancialSnapshot{
		NetWorth:         roundCents(s.NetWorth),
		AssetsTotal:      roundCents(s.AssetsTotal),
		LiabilitiesTotal: roundCents(s.LiabilitiesTotal),
		CashTotal:        roundCents(s.CashTotal),
		InvestmentsTotal: roundCents(s.InvestmentsTotal),
	}
	data, err := json.Marshal(rounded)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", rounded))
	}
	h := fnv.New32a()
	h.Write(data)
	return fmt.Sprintf("%08x", h.Sum32())
}

type SummaryCache interface {
	// Get returns the freshest non-expired entry, or nil.
	Get(ctx context.Context, key CacheKey) (*models.CachedSummary, error)
	// GetIncludingExpired ignores expiry; used when a live call failed.
	GetIncludingExpired(ctx context.Context, key CacheKey) (*models.CachedSummary, error)
	// Set updates the row for key if one exists, inserts otherwise. The
	// lookup and the write are not atomic.
	Set(ctx context.Context, key CacheKey, snapshot models.FinancialSnapshot, summary string, suggestions []models.Suggestion, ttl time.Duration) (*models.CachedSummary, error)
	// SetSuggestionResponse returns ErrCacheMiss when no row exists for key.
	SetSuggestionResponse(ctx context.Context, key CacheKey, suggestionID string, action models.ActionType, response string) error
	Invalidate(ctx context.Context, identity string) error
	CleanExpired(ctx context.Context) (int64, error)
}

// ============================================================================
// IN-MEMORY IMPLEMENTATION (demo personas, no DATABASE_URL)
// ============================================================================

type MemorySummaryCache struct {
	mu   sync.Mutex
	rows []*models.CachedSummary
	now  func() time.Time
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{now: time.Now}
}

// WithClock replaces the time source (tests).
func (c *MemorySummaryCache) WithClock(now func() time.Time) *MemorySummaryCache {
	c.now = now
	return c
}

func (c *MemorySummaryCache) Get(ctx context.Context, key CacheKey) (*models.CachedSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.freshest(key, false)
	if row == nil {
		return nil, nil
	}
	return cloneCachedSummary(row), nil
}

func (c *MemorySummaryCache) GetIncludingExpired(ctx context.Context, key CacheKey) (*models.CachedSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.freshest(key, true)
	if row == nil {
		return nil, nil
	}
	return cloneCachedSummary(row), nil
}

func (c *MemorySummaryCache) Set(ctx context.Context, key CacheKey, snapshot models.FinancialSnapshot, summary string, suggestions []models.Suggestion, ttl time.Duration) (*models.CachedSummary, error) {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	row := c.freshest(key, true)
	if row == nil {
		row = &models.CachedSummary{
			ID:       uuid.New().String(),
			Identity: key.Identity,
			ViewMode: key.ViewMode,
			DataHash: key.DataHash,
		}
		c.rows = append(c.rows, row)
	}
	row.SummaryText = summary
	row.FinancialData = snapshot
	row.Suggestions = append([]models.Suggestion(nil), suggestions...)
	row.SuggestionResponses = map[string]map[models.ActionType]string{}
	row.CreatedAt = now
	row.ExpiresAt = now.Add(ttl)
	return cloneCachedSummary(row), nil
}

func (c *MemorySummaryCache) SetSuggestionResponse(ctx context.Context, key CacheKey, suggestionID string, action models.ActionType, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.freshest(key, true)
	if row == nil {
		return ErrCacheMiss
	}
	if row.SuggestionResponses == nil {
		row.SuggestionResponses = map[string]map[models.ActionType]string{}
	}
	if row.SuggestionResponses[suggestionID] == nil {
		row.SuggestionResponses[suggestionID] = map[models.ActionType]string{}
	}
	row.SuggestionResponses[suggestionID][action] = response
	return nil
}

func (c *MemorySummaryCache) Invalidate(ctx context.Context, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.rows[:0]
	for _, row := range c.rows {
		if row.Identity != identity {
			kept = append(kept, row)
		}
	}
	c.rows = kept
	return nil
}

func (c *MemorySummaryCache) CleanExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int64
	kept := c.rows[:0]
	for _, row := range c.rows {
		if row.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.rows = kept
	return removed, nil
}

// freshest must be called with c.mu held.
func (c *MemorySummaryCache) freshest(key CacheKey, includeExpired bool) *models.CachedSummary {
	now := c.now()
	var matches []*models.CachedSummary
	for _, row := range c.rows {
		if row.Identity != key.Identity || row.ViewMode != key.ViewMode || row.DataHash != key.DataHash {
			continue
		}
		if !includeExpired && row.Expired(now) {
			continue
		}
		matches = append(matches, row)
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0]
}

func cloneCachedSummary(row *models.CachedSummary) *models.CachedSummary {
	out := *row
	out.Suggestions = append([]models.Suggestion(nil), row.Suggestions...)
	out.SuggestionResponses = make(map[string]map[models.ActionType]string, len(row.SuggestionResponses))
	for id, byAction := range row.SuggestionResponses {
		inner := make(map[models.ActionType]string, len(byAction))
		for action, text := range byAction {
			inner[action] = text
		}
		out.SuggestionResponses[id] = inner
	}
	return &out
}
