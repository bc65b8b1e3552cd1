// Package session tracks one cart and checkout manager per cashier terminal
// session. Within a session the cart is single-owner state; the registry's
// per-session lock only serializes overlapping HTTP requests from the same
// terminal, it is not a cross-session concurrency mechanism. Cross-terminal
// races are resolved at the persistence commit, not here.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/kalder/pos-engine/internal/domain/cart"
	"github.com/kalder/pos-engine/internal/domain/checkout"
	"github.com/kalder/pos-engine/internal/domain/transaction"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Session is the live state of one cashier terminal.
type Session struct {
	ID        string
	CashierID string
	Cart      *cart.Cart
	Checkout  *checkout.Manager

	mu         sync.Mutex
	lastActive time.Time
}

// Lock serializes access to the session's cart and checkout manager for the
// duration of one request.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Registry owns all active sessions and evicts idle ones.
type Registry struct {
	repo transaction.Repository
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry whose sessions check out through repo and
// expire after ttl of inactivity.
func NewRegistry(repo transaction.Repository, ttl time.Duration) *Registry {
	return &Registry{
		repo:     repo,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session for the given cashier. The cashier id is an
// opaque string supplied by whatever signs cashiers in.
func (r *Registry) Create(cashierID string) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		CashierID:  cashierID,
		Cart:       cart.New(),
		Checkout:   checkout.NewManager(r.repo),
		lastActive: time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session and marks it active.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.lastActive = time.Now()
	return s, nil
}

// Delete closes a session. Idempotent; an abandoned cart simply disappears,
// there is nothing to persist.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartJanitor launches a goroutine that evicts idle sessions every interval
// until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.evictIdle(now)
			}
		}
	}()
}

func (r *Registry) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if now.Sub(s.lastActive) >= r.ttl {
			delete(r.sessions, id)
		}
	}
}
