package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LovationAdmin/advisor-api/services"

	"github.com/gin-gonic/gin"
)

type failingCounter struct{}

func (failingCounter) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time, error) {
	return false, time.Time{}, errors.New("database down")
}

func (failingCounter) Cleanup(ctx context.Context) error { return nil }

func newLimitedRouter(store services.CounterStore, limit int) *gin.Engine {
	router := gin.New()
	router.Use(RateLimiter(store, limit, time.Minute))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func doPing(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	router := newLimitedRouter(services.NewMemoryCounterStore(), 2)

	for i := 0; i < 2; i++ {
		if w := doPing(router, "192.0.2.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}
	w := doPing(router, "192.0.2.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Fatalf("429 should carry an error body")
	}

	if w := doPing(router, "192.0.2.2"); w.Code != http.StatusOK {
		t.Fatalf("other clients must not be limited, got %d", w.Code)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	router := newLimitedRouter(failingCounter{}, 1)

	for i := 0; i < 3; i++ {
		if w := doPing(router, "192.0.2.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d, counter errors must not block", i+1, w.Code)
		}
	}
}

func TestStartCounterCleanupStops(t *testing.T) {
	stop := make(chan struct{})
	StartCounterCleanup(services.NewMemoryCounterStore(), stop)
	close(stop)
}
