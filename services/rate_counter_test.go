package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryCounterStoreWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryCounterStore()
	store.now = clock.Now
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		allowed, _, err := store.Hit(ctx, "email:a@b.co", 3, time.Hour)
		if err != nil || !allowed {
			t.Fatalf("hit %d = (%v, %v), want allowed", i, allowed, err)
		}
	}
	allowed, resetAt, _ := store.Hit(ctx, "email:a@b.co", 3, time.Hour)
	if allowed {
		t.Fatalf("fourth hit should be rejected")
	}
	if !resetAt.Equal(clock.now.Add(time.Hour)) {
		t.Fatalf("resetAt = %v", resetAt)
	}

	if allowed, _, _ := store.Hit(ctx, "email:other@b.co", 3, time.Hour); !allowed {
		t.Fatalf("keys are counted separately")
	}

	clock.Advance(time.Hour)
	if allowed, _, _ := store.Hit(ctx, "email:a@b.co", 3, time.Hour); !allowed {
		t.Fatalf("a new window should start after the reset time")
	}
}

func TestMemoryCounterStoreCleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryCounterStore()
	store.now = clock.Now
	ctx := context.Background()

	store.Hit(ctx, "short", 1, time.Minute)
	store.Hit(ctx, "long", 1, time.Hour)
	clock.Advance(2 * time.Minute)

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, ok := store.counters["short"]; ok {
		t.Fatalf("expired window should be removed")
	}
	if _, ok := store.counters["long"]; !ok {
		t.Fatalf("live window should be kept")
	}
}

func TestPostgresCounterStoreHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewPostgresCounterStore(db)
	store.now = func() time.Time { return now }

	mock.ExpectQuery("INSERT INTO rate_limits").
		WithArgs("ip:1.2.3.4", now, now.Add(-time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "window_start"}).AddRow(6, now.Add(-10*time.Minute)))
	mock.ExpectExec("DELETE FROM rate_limits").
		WillReturnResult(sqlmock.NewResult(0, 4))

	allowed, resetAt, err := store.Hit(context.Background(), "ip:1.2.3.4", 5, time.Hour)
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if allowed {
		t.Fatalf("sixth hit in the window must be rejected")
	}
	if !resetAt.Equal(now.Add(50 * time.Minute)) {
		t.Fatalf("resetAt = %v", resetAt)
	}

	if err := store.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
