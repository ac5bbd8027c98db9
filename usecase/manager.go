package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
)

// SessionManager hands out one SessionStore per user+domain, creating and
// restoring it on first use. Stores live for the process lifetime; their
// in-memory sessions are the working set, Mongo and the mirror hold the
// rest.
type SessionManager struct {
	repo     repositories.SessionRepository
	mirror   repositories.SessionMirror
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	stores map[string]*SessionStore
}

func NewSessionManager(
	repo repositories.SessionRepository,
	mirror repositories.SessionMirror,
	debounce time.Duration,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		repo:     repo,
		mirror:   mirror,
		debounce: debounce,
		logger:   logger,
		stores:   make(map[string]*SessionStore),
	}
}

// Store returns the user's store for a domain, restoring the last active
// session from the mirror the first time it is requested.
func (m *SessionManager) Store(ctx context.Context, userID string, domain entities.ChatDomain) *SessionStore {
	key := userID + ":" + string(domain)

	m.mu.Lock()
	store, ok := m.stores[key]
	if !ok {
		store = NewSessionStore(userID, domain, m.repo, m.mirror, m.debounce, m.logger)
		m.stores[key] = store
	}
	m.mu.Unlock()

	if !ok {
		store.RestoreSession(ctx)
	}
	return store
}

// CloseAll flushes every store's pending write. Called on shutdown.
func (m *SessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	stores := make([]*SessionStore, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	m.mu.Unlock()

	for _, store := range stores {
		store.Close(ctx)
	}
}
