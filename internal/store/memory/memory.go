// Package memory is a process-local store for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"creditledger/internal/auth"
	"creditledger/internal/core"
	"creditledger/internal/store"
)

// Store implements store.LedgerStore and auth.UserStore.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	loans    []core.Loan
	payments []core.Payment

	users    map[string]auth.UserRecord // by id
	emails   map[string]string          // lowercased email -> id
	sessions map[string]auth.SessionRecord
	tokens   map[string]auth.RecoveryToken
}

var (
	_ store.LedgerStore = (*Store)(nil)
	_ auth.UserStore    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[string]auth.UserRecord),
		emails:   make(map[string]string),
		sessions: make(map[string]auth.SessionRecord),
		tokens:   make(map[string]auth.RecoveryToken),
	}
}

func (s *Store) InsertLoan(_ context.Context, l core.Loan) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if l.ID == "" {
		l.ID = store.NewID()
	}
	l.CreatedAt = now
	l.UpdatedAt = now
	s.loans = append(s.loans, l)
	return l, nil
}

func (s *Store) ListLoans(_ context.Context, userID string) ([]core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Loan, 0)
	for _, l := range s.loans {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetLoan(_ context.Context, userID, loanID string) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.loans {
		if l.ID == loanID && l.UserID == userID {
			return l, nil
		}
	}
	return core.Loan{}, store.ErrLoanNotFound
}

func (s *Store) InsertPayment(_ context.Context, p core.Payment) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, l := range s.loans {
		if l.ID == p.LoanID && l.UserID == p.UserID {
			found = true
			break
		}
	}
	if !found {
		return core.Payment{}, store.ErrLoanNotFound
	}

	if p.ID == "" {
		p.ID = store.NewID()
	}
	p.CreatedAt = s.now().UTC()
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *Store) ListPayments(_ context.Context, userID string) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Payment, 0)
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PaymentDate.Equal(b.PaymentDate.Time) {
			return a.PaymentDate.After(b.PaymentDate.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u auth.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.emails[key]; ok {
		return auth.ErrUserExists
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (auth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return auth.UserRecord{}, auth.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (auth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return auth.UserRecord{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[userID] = u
	return nil
}

func (s *Store) CreateSession(_ context.Context, rec auth.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (auth.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return auth.SessionRecord{}, auth.ErrSessionNotFound
	}
	return rec, nil
}

func (s *Store) RevokeSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return auth.ErrSessionNotFound
	}
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
		s.sessions[id] = rec
	}
	return nil
}

func (s *Store) CreateRecoveryToken(_ context.Context, t auth.RecoveryToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
	return nil
}

func (s *Store) ConsumeRecoveryToken(_ context.Context, token string, now time.Time) (auth.RecoveryToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || t.UsedAt != nil || !now.Before(t.ExpiresAt) {
		return auth.RecoveryToken{}, auth.ErrTokenNotFound
	}
	t.UsedAt = &now
	s.tokens[token] = t
	return t, nil
}
