package repositories

import (
	"context"
	"io"
	"time"

	"github.com/arimedika/server/domain/entities"
)

// UserRepository defines data access methods for users
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	UpsertProfile(ctx context.Context, profile *entities.HealthProfile) error
	GetProfile(ctx context.Context, userID string) (*entities.HealthProfile, error)
}

// SessionRepository is the durable session store. Upsert is keyed by the
// session id; callers guarantee they never hand it an empty session.
type SessionRepository interface {
	Upsert(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	ListByDomain(ctx context.Context, userID string, domain entities.ChatDomain) ([]*entities.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionMirror is the ephemeral restore-on-reload store. It keeps the
// active session id and its message list under two well-known keys per
// user+domain. Reads that fail validation are treated as corrupt and
// discarded by the caller, never surfaced.
type SessionMirror interface {
	SaveActive(ctx context.Context, userID string, domain entities.ChatDomain, session *entities.Session) error
	LoadActive(ctx context.Context, userID string, domain entities.ChatDomain) (*entities.Session, error)
	Clear(ctx context.Context, userID string, domain entities.ChatDomain) error
}

// StoredDocument describes one object in a user's document vault.
type StoredDocument struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// DocumentVault stores users' medical documents in object storage.
type DocumentVault interface {
	Put(ctx context.Context, userID, name, contentType string, r io.Reader, size int64) (*StoredDocument, error)
	List(ctx context.Context, userID string) ([]StoredDocument, error)
	PresignedURL(ctx context.Context, userID, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, userID, key string) error
}
