package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
)

const mirrorTTL = 7 * 24 * time.Hour

// SessionMirror keeps the active session under two well-known keys per
// user+domain: the active session id and the serialized session. It backs
// restore-on-reload; losing it costs nothing but the restore.
type SessionMirror struct {
	client *redis.Client
}

var _ repositories.SessionMirror = (*SessionMirror)(nil)

func NewSessionMirror(client *redis.Client) *SessionMirror {
	return &SessionMirror{client: client}
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (m *SessionMirror) SaveActive(ctx context.Context, userID string, d entities.ChatDomain, session *entities.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, activeKey(userID, d), session.ID, mirrorTTL)
	pipe.Set(ctx, dataKey(userID, d), data, mirrorTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror session: %w", err)
	}
	return nil
}

// LoadActive returns (nil, nil) when no session is mirrored. Malformed
// stored data surfaces as ErrCorruptState so the caller can discard it and
// start fresh.
func (m *SessionMirror) LoadActive(ctx context.Context, userID string, d entities.ChatDomain) (*entities.Session, error) {
	data, err := m.client.Get(ctx, dataKey(userID, d)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored session: %w", err)
	}

	var session entities.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptState, err)
	}

	// The active-pointer key must agree with the stored session.
	activeID, err := m.client.Get(ctx, activeKey(userID, d)).Result()
	if err == nil && activeID != session.ID {
		return nil, fmt.Errorf("%w: active pointer %s does not match stored session %s",
			domain.ErrCorruptState, activeID, session.ID)
	}

	return &session, nil
}

func (m *SessionMirror) Clear(ctx context.Context, userID string, d entities.ChatDomain) error {
	if err := m.client.Del(ctx, activeKey(userID, d), dataKey(userID, d)).Err(); err != nil {
		return fmt.Errorf("failed to clear session mirror: %w", err)
	}
	return nil
}

func activeKey(userID string, d entities.ChatDomain) string {
	return fmt.Sprintf("user:%s:%s:active_session", userID, d)
}

func dataKey(userID string, d entities.ChatDomain) string {
	return fmt.Sprintf("user:%s:%s:session_data", userID, d)
}
