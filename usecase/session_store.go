package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
)

// DefaultPersistDebounce coalesces rapid successive appends into a single
// durable write.
const DefaultPersistDebounce = time.Second

// SessionStore owns the lifecycle of one user's sessions within one
// conversation domain: in-memory message history, the active-session
// pointer, debounced durable persistence, and restore-on-reload. One
// generic store serves both the medical and the health-coach products,
// parameterized by domain tag.
type SessionStore struct {
	userID   string
	domain   entities.ChatDomain
	repo     repositories.SessionRepository
	mirror   repositories.SessionMirror
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.Mutex
	sessions map[string]*entities.Session
	activeID string
	timer    *time.Timer
}

// NewSessionStore creates a store with no active session yet.
func NewSessionStore(
	userID string,
	domain entities.ChatDomain,
	repo repositories.SessionRepository,
	mirror repositories.SessionMirror,
	debounce time.Duration,
	logger *zap.Logger,
) *SessionStore {
	if debounce <= 0 {
		debounce = DefaultPersistDebounce
	}
	return &SessionStore{
		userID:   userID,
		domain:   domain,
		repo:     repo,
		mirror:   mirror,
		logger:   logger,
		debounce: debounce,
		sessions: make(map[string]*entities.Session),
	}
}

// UserID returns the owning user's id.
func (s *SessionStore) UserID() string { return s.userID }

// Domain returns the conversation product this store serves.
func (s *SessionStore) Domain() entities.ChatDomain { return s.domain }

// StartSession creates a new session opened by the synthetic greeting,
// makes it active, and returns its id.
func (s *SessionStore) StartSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startSessionLocked()
}

func (s *SessionStore) startSessionLocked() string {
	session := entities.NewSession(s.userID, s.domain)
	s.sessions[session.ID] = session
	s.activeID = session.ID
	return session.ID
}

// AppendMessage appends to the named session. The caller must have started
// or restored the session first; an unknown id fails with
// domain.ErrNotFound, which callers of in-flight model replies treat as
// "session deleted meanwhile" and drop with a log.
func (s *SessionStore) AppendMessage(sessionID string, msg entities.Message) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("append to session %s: %w", sessionID, domain.ErrNotFound)
	}
	session.Append(msg)
	s.schedulePersistLocked()
	s.mu.Unlock()
	return nil
}

// RestoreSession reloads the last-active session from the ephemeral
// mirror. Malformed or corrupt stored data is discarded and a fresh
// session started instead; restore never fails to the caller.
func (s *SessionStore) RestoreSession(ctx context.Context) string {
	session, err := s.mirror.LoadActive(ctx, s.userID, s.domain)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil || session == nil {
		if err != nil {
			s.logger.Warn("session restore failed, starting fresh",
				zap.String("domain", string(s.domain)), zap.Error(err))
		}
		return s.startSessionLocked()
	}
	if vErr := session.Validate(); vErr != nil {
		s.logger.Warn("discarding corrupt stored session",
			zap.String("domain", string(s.domain)),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrCorruptState, vErr)))
		return s.startSessionLocked()
	}

	session.UserID = s.userID
	s.sessions[session.ID] = session
	s.activeID = session.ID
	return session.ID
}

// ActiveSession returns the active session, or nil before Start/Restore.
func (s *SessionStore) ActiveSession() *entities.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[s.activeID]
}

// Session returns a known session by id.
func (s *SessionStore) Session(id string) (*entities.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// PersistActiveSession writes the active session durably if it is
// non-trivial; a session holding only the greeting is a no-op. Persistence
// is best-effort: failures are logged and never block the conversation.
func (s *SessionStore) PersistActiveSession(ctx context.Context) {
	s.mu.Lock()
	session := cloneSession(s.sessions[s.activeID])
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.persist(ctx, session)
}

// cloneSession snapshots a session so persistence never races with
// concurrent appends.
func cloneSession(session *entities.Session) *entities.Session {
	if session == nil {
		return nil
	}
	clone := *session
	clone.Messages = append([]entities.Message(nil), session.Messages...)
	return &clone
}

func (s *SessionStore) persist(ctx context.Context, session *entities.Session) {
	if session == nil || session.IsEmpty() {
		return
	}
	if err := s.repo.Upsert(ctx, session); err != nil {
		s.logger.Warn("failed to persist session",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	if err := s.mirror.SaveActive(ctx, s.userID, s.domain, session); err != nil {
		s.logger.Warn("failed to mirror session",
			zap.String("session_id", session.ID), zap.Error(err))
	}
}

// schedulePersistLocked resets the debounce timer; only the most recent
// pending write fires.
func (s *SessionStore) schedulePersistLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.PersistActiveSession(context.Background())
	})
}

// SessionGroup is one calendar-day bucket of sessions for display.
type SessionGroup struct {
	Label    string              `json:"label"`
	Sessions []*entities.Session `json:"sessions"`
}

// ListSessions returns all durable sessions for this domain,
// most-recently-updated first, grouped by calendar day.
func (s *SessionStore) ListSessions(ctx context.Context) ([]SessionGroup, error) {
	sessions, err := s.repo.ListByDomain(ctx, s.userID, s.domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	var groups []SessionGroup
	for _, session := range sessions {
		label := dayLabel(session.UpdatedAt, time.Now())
		if len(groups) == 0 || groups[len(groups)-1].Label != label {
			groups = append(groups, SessionGroup{Label: label})
		}
		groups[len(groups)-1].Sessions = append(groups[len(groups)-1].Sessions, session)
	}
	return groups, nil
}

// LoadSession persists the currently active session first, then switches
// the active pointer to the requested session and loads its messages.
func (s *SessionStore) LoadSession(ctx context.Context, id string) (*entities.Session, error) {
	s.mu.Lock()
	current := cloneSession(s.sessions[s.activeID])
	s.mu.Unlock()
	s.persist(ctx, current)

	s.mu.Lock()
	if session, ok := s.sessions[id]; ok {
		s.activeID = id
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	// A session owned by someone else is indistinguishable from a missing
	// one to the caller.
	if session == nil || session.UserID != s.userID || session.Domain != s.domain {
		return nil, fmt.Errorf("load session %s: %w", id, domain.ErrNotFound)
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.activeID = id
	s.mu.Unlock()
	return session, nil
}

// DeleteSession removes a session from durable storage. Deleting the
// active session clears the active pointer and immediately starts a fresh
// one.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	_, known := s.sessions[id]
	s.mu.Unlock()

	// Sessions in memory are always this store's own. Anything else must be
	// fetched and checked before it can be deleted.
	if !known {
		session, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
		if session == nil || session.UserID != s.userID || session.Domain != s.domain {
			return fmt.Errorf("delete session %s: %w", id, domain.ErrNotFound)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	if s.activeID == id {
		s.activeID = ""
		if err := s.mirror.Clear(context.Background(), s.userID, s.domain); err != nil {
			s.logger.Warn("failed to clear session mirror", zap.Error(err))
		}
		s.startSessionLocked()
	}
	return nil
}

// PromptContext assembles the bounded context for the next model call from
// the active session and the most recent other durable sessions.
func (s *SessionStore) PromptContext(ctx context.Context) string {
	s.mu.Lock()
	active := cloneSession(s.sessions[s.activeID])
	s.mu.Unlock()
	if active == nil {
		return ""
	}

	others, err := s.repo.ListByDomain(ctx, s.userID, s.domain)
	if err != nil {
		s.logger.Warn("failed to load other sessions for context", zap.Error(err))
		others = nil
	}
	sort.Slice(others, func(i, j int) bool {
		return others[i].UpdatedAt.After(others[j].UpdatedAt)
	})
	filtered := others[:0]
	for _, o := range others {
		if o.ID != active.ID {
			filtered = append(filtered, o)
		}
	}
	return BuildPromptContext(active.Messages, filtered)
}

// Close flushes any pending debounced write. Called on view teardown.
func (s *SessionStore) Close(ctx context.Context) {
	s.PersistActiveSession(ctx)
}

func dayLabel(t, now time.Time) string {
	y, m, d := t.Date()
	ny, nm, nd := now.Date()
	if y == ny && m == nm && d == nd {
		return "Today"
	}
	yesterday := now.AddDate(0, 0, -1)
	yy, ym, yd := yesterday.Date()
	if y == yy && m == ym && d == yd {
		return "Yesterday"
	}
	return t.Format("Monday, Jan 2")
}
