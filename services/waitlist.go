package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/google/uuid"
)

// ============================================================================
// WAITLIST
// ============================================================================

const (
	waitlistIPLimit    = 5
	waitlistEmailLimit = 3
	waitlistWindow     = time.Hour
	minSignupAge       = 13
)

var (
	ErrDuplicateEmail  = errors.New("this email is already on the waitlist")
	ErrTooManyAttempts = errors.New("too many attempts, please try again later")
)

// ValidationError carries a message safe to show the visitor.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type WaitlistStore interface {
	// Add returns ErrDuplicateEmail when the address is already listed.
	Add(ctx context.Context, entry models.WaitlistEntry) error
}

type WaitlistService struct {
	Store    WaitlistStore
	Counters CounterStore
	Captcha  CaptchaVerifier
	// Mailer is optional; nil skips the confirmation email.
	Mailer Mailer
	now    func() time.Time
}

func NewWaitlistService(store WaitlistStore, counters CounterStore, captcha CaptchaVerifier) *WaitlistService {
	return &WaitlistService{Store: store, Counters: counters, Captcha: captcha, now: time.Now}
}

// Submit validates, rate limits, checks the captcha and stores the entry, in
// that order.
func (s *WaitlistService) Submit(ctx context.Context, req models.WaitlistRequest, clientIP string) (*models.WaitlistEntry, error) {
	entry, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	if err := s.hit(ctx, "waitlist:ip:"+clientIP, waitlistIPLimit); err != nil {
		return nil, err
	}
	if err := s.hit(ctx, "waitlist:email:"+entry.Email, waitlistEmailLimit); err != nil {
		return nil, err
	}

	if err := s.Captcha.Verify(req.TurnstileToken, clientIP); err != nil {
		return nil, err
	}

	if err := s.Store.Add(ctx, *entry); err != nil {
		return nil, err
	}
	utils.SafeInfo("[Waitlist] ✅ New signup: %s", utils.MaskEmail(entry.Email))

	if s.Mailer != nil {
		go s.sendConfirmation(entry.Email, entry.FirstName)
	}
	return entry, nil
}

func (s *WaitlistService) sendConfirmation(email, firstName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.Mailer.SendWaitlistConfirmation(ctx, email, firstName); err != nil {
		utils.SafeWarn("[Waitlist] ⚠️  Confirmation email to %s failed: %v", utils.MaskEmail(email), err)
	}
}

func (s *WaitlistService) hit(ctx context.Context, key string, limit int) error {
	allowed, _, err := s.Counters.Hit(ctx, key, limit, waitlistWindow)
	if err != nil {
		utils.SafeWarn("[Waitlist] ⚠️  Rate limit check failed: %v", err)
		return nil
	}
	if !allowed {
		return ErrTooManyAttempts
	}
	return nil
}

// validate checks what request binding cannot: blank names and the age rules.
func (s *WaitlistService) validate(req models.WaitlistRequest) (*models.WaitlistEntry, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if first == "" || last == "" {
		return nil, &ValidationError{"First and last name are required"}
	}

	birthday, err := time.Parse("2006-01-02", strings.TrimSpace(req.Birthday))
	if err != nil {
		return nil, &ValidationError{"Birthday must be a date in YYYY-MM-DD format"}
	}
	now := s.now()
	if birthday.After(now) {
		return nil, &ValidationError{"Birthday cannot be in the future"}
	}
	if birthday.AddDate(minSignupAge, 0, 0).After(now) {
		return nil, &ValidationError{fmt.Sprintf("You must be at least %d years old to join", minSignupAge)}
	}

	return &models.WaitlistEntry{
		ID:        uuid.New().String(),
		FirstName: first,
		LastName:  last,
		Birthday:  birthday,
		Email:     email,
		CreatedAt: now,
	}, nil
}

// ============================================================================
// STORES
// ============================================================================

type PostgresWaitlistStore struct {
	DB *sql.DB
}

func NewPostgresWaitlistStore(db *sql.DB) *PostgresWaitlistStore {
	return &PostgresWaitlistStore{DB: db}
}

func (p *PostgresWaitlistStore) Add(ctx context.Context, e models.WaitlistEntry) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO waitlist (id, first_name, last_name, birthday, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.FirstName, e.LastName, e.Birthday, e.Email, e.CreatedAt)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to add waitlist entry: %w", err)
	}
	return nil
}

type MemoryWaitlistStore struct {
	mu      sync.Mutex
	entries map[string]models.WaitlistEntry
}

func NewMemoryWaitlistStore() *MemoryWaitlistStore {
	return &MemoryWaitlistStore{entries: make(map[string]models.WaitlistEntry)}
}

func (m *MemoryWaitlistStore) Add(ctx context.Context, e models.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[e.Email]; exists {
		return ErrDuplicateEmail
	}
	m.entries[e.Email] = e
	return nil
}
