package services

import (
	"context"
	"testing"
	"time"

	"github.com/LovationAdmin/advisor-api/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockSummaryCache(t *testing.T) (*PostgresSummaryCache, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cache := NewPostgresSummaryCache(db)
	cache.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return cache, mock
}

var cacheColumns = []string{
	"id", "identity", "view_mode", "data_hash", "summary_text", "financial_data",
	"suggestions", "suggestion_responses", "created_at", "expires_at",
}

func TestPostgresSummaryCacheGet(t *testing.T) {
	cache, mock := newMockSummaryCache(t)
	key := CacheKey{Identity: "user:1", ViewMode: "dashboard", DataHash: "abcd1234"}
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM summary_cache").
		WithArgs("user:1", "dashboard", "abcd1234", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cacheColumns).AddRow(
			"row-1", "user:1", "dashboard", "abcd1234", "All good.",
			[]byte(`{"net_worth": 98000, "assets_total": 116500}`),
			[]byte(`[{"id": "s-1", "title": "Pay down SoFi", "body": "x", "status": "pending", "actionType": "ACCELERATE_SOFI_LOAN"}]`),
			[]byte(`{"s-1": {"ACCELERATE_SOFI_LOAN": "Because 6.8% beats savings."}}`),
			created, created.Add(24*time.Hour),
		))

	got, err := cache.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SummaryText != "All good." || got.FinancialData.NetWorth != 98000 {
		t.Fatalf("entry = %+v", got)
	}
	if len(got.Suggestions) != 1 || got.Suggestions[0].ActionType != models.ActionAccelerateSofiLoan {
		t.Fatalf("suggestions = %+v", got.Suggestions)
	}
	if got.SuggestionResponses["s-1"][models.ActionAccelerateSofiLoan] != "Because 6.8% beats savings." {
		t.Fatalf("responses = %v", got.SuggestionResponses)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSummaryCacheGetMiss(t *testing.T) {
	cache, mock := newMockSummaryCache(t)

	mock.ExpectQuery("SELECT (.+) FROM summary_cache").
		WillReturnRows(sqlmock.NewRows(cacheColumns))

	got, err := cache.GetIncludingExpired(context.Background(), CacheKey{Identity: "user:1", ViewMode: "dashboard", DataHash: "x"})
	if err != nil || got != nil {
		t.Fatalf("miss returned (%v, %v)", got, err)
	}
}

func TestPostgresSummaryCacheSetInsertsThenUpdates(t *testing.T) {
	cache, mock := newMockSummaryCache(t)
	key := CacheKey{Identity: "demo:young-professional", ViewMode: "dashboard", DataHash: "abcd1234"}
	snapshot := models.FinancialSnapshot{NetWorth: 98000}

	mock.ExpectQuery("SELECT id FROM summary_cache").
		WithArgs(key.Identity, key.ViewMode, key.DataHash).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO summary_cache").
		WithArgs(sqlmock.AnyArg(), key.Identity, key.ViewMode, key.DataHash, "first",
			sqlmock.AnyArg(), []byte(`[]`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	first, err := cache.Set(context.Background(), key, snapshot, "first", nil, time.Hour)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID == "" || !first.ExpiresAt.Equal(first.CreatedAt.Add(time.Hour)) {
		t.Fatalf("entry = %+v", first)
	}

	mock.ExpectQuery("SELECT id FROM summary_cache").
		WithArgs(key.Identity, key.ViewMode, key.DataHash).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.ID))
	mock.ExpectExec("UPDATE summary_cache").
		WithArgs("second", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), first.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	second, err := cache.Set(context.Background(), key, snapshot, "second", nil, time.Hour)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("update should keep the row id: %s vs %s", second.ID, first.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSummaryCacheSuggestionResponseMiss(t *testing.T) {
	cache, mock := newMockSummaryCache(t)
	key := CacheKey{Identity: "user:1", ViewMode: "dashboard", DataHash: "x"}

	mock.ExpectExec("UPDATE summary_cache").
		WithArgs("s-1", "NO_ACTION", "text", "user:1", "dashboard", "x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := cache.SetSuggestionResponse(context.Background(), key, "s-1", models.ActionNone, "text"); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestPostgresSummaryCacheInvalidateAndClean(t *testing.T) {
	cache, mock := newMockSummaryCache(t)

	mock.ExpectExec("DELETE FROM summary_cache WHERE identity").
		WithArgs("demo:young-professional").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM summary_cache WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := cache.Invalidate(context.Background(), "demo:young-professional"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	removed, err := cache.CleanExpired(context.Background())
	if err != nil || removed != 2 {
		t.Fatalf("CleanExpired = (%d, %v)", removed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
