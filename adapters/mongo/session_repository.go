package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
)

// SessionRepository is the durable session store. Sessions are keyed by
// their uuid string in _id, so Upsert is a single replace-with-upsert.
type SessionRepository struct {
	collection *mongo.Collection
}

func NewSessionRepository(db *mongo.Database, logger *zap.Logger) repositories.SessionRepository {
	collection := db.Collection("sessions")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "type", Value: 1},
				{Key: "updated_at", Value: -1},
			},
		})
		if err != nil {
			logger.Warn("failed to create session index", zap.Error(err))
		}
	}()

	return &SessionRepository{collection: collection}
}

func (r *SessionRepository) Upsert(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid session: %w", err)
	}

	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": session.ID},
		session,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", session.ID, err)
	}
	return nil
}

// GetByID returns nil without error when the session does not exist; the
// caller decides whether absence is an error.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	var session entities.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByDomain(ctx context.Context, userID string, domain entities.ChatDomain) ([]*entities.Session, error) {
	filter := bson.M{"user_id": userID, "type": string(domain)}
	opts := options.Find().SetSort(bson.M{"updated_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*entities.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}
