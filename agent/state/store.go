package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
)

const (
	defaultSessionTTL     = 24 * time.Hour
	defaultSweepEvery     = time.Minute
	defaultStoreKeyPrefix = "leavedesk:session:"
)

// Store is the persistence contract used by the orchestrator.
type Store interface {
	Load(ctx context.Context, userID string) (*SessionState, error)
	Save(ctx context.Context, st *SessionState) error
	Delete(ctx context.Context, userID string) error
}

// MemoryStore holds sessions in process memory with TTL eviction. A janitor
// goroutine sweeps expired entries so memory growth stays bounded.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

type MemoryOption func(*MemoryStore)

func WithSessionTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      defaultSessionTTL,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	go s.janitor(defaultSweepEvery)
	return s
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (*SessionState, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	s.mu.RLock()
	entry, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrStateNotFound
	}

	return decodeState(entry.raw)
}

func (s *MemoryStore) Save(ctx context.Context, st *SessionState) error {
	if st == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(st.UserID) == "" {
		return ErrInvalidUser
	}
	st.EnsureFieldsMap()

	// Sessions are stored encoded so callers never alias store-held state.
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	s.mu.Lock()
	s.sessions[st.UserID] = memoryEntry{
		raw:       raw,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Len reports live (non-expired) sessions.
func (s *MemoryStore) Len() int {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entry := range s.sessions {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, entry := range s.sessions {
				if now.After(entry.expiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func decodeState(raw []byte) (*SessionState, error) {
	var st SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	st.EnsureFieldsMap()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session state loaded from store: %w", err)
	}
	return &st, nil
}
