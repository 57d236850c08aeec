package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neodiag/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCorruptSession  = errors.New("session record is corrupt")
	ErrInvalidID       = errors.New("invalid session id")
)

// SessionRepo is the durable session store. Every Save writes the full
// snapshot keyed by the session id; ListAll returns the newest records first
// and skips records that fail to parse.
type SessionRepo interface {
	Save(ctx context.Context, session *model.Session) error
	Load(ctx context.Context, id string) (*model.Session, error)
	ListAll(ctx context.Context) ([]*model.Session, error)
	Ping(ctx context.Context) error
}

type Option func(*repoOptions)

type repoOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report skipped records.
func WithLogger(logger *slog.Logger) Option {
	return func(o *repoOptions) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) repoOptions {
	o := repoOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timeNow is a package-level variable for testability.
var timeNow = time.Now

func validateID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// encodeSession renders the persisted form. A pending question never reaches
// the store.
func encodeSession(session *model.Session) ([]byte, error) {
	if err := validateID(session.ID); err != nil {
		return nil, err
	}
	snapshot := *session
	snapshot.Pending = nil
	return json.MarshalIndent(&snapshot, "", "  ")
}

// decodeSession parses a stored record and checks it belongs to id.
func decodeSession(id string, data []byte) (*model.Session, error) {
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session %s: %w: %v", id, ErrCorruptSession, err)
	}
	if session.ID != id {
		return nil, fmt.Errorf("session %s: %w: stored id %q", id, ErrCorruptSession, session.ID)
	}
	return &session, nil
}

// sessionDocument wraps the snapshot so the listing order can use savedAt
type sessionDocument struct {
	ID      string         `bson:"_id"`
	SavedAt time.Time      `bson:"savedAt"`
	Session *model.Session `bson:"session"`
}

type mongoSessionRepo struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoSessionRepo stores sessions in the "sessions" collection of db.
func NewMongoSessionRepo(db *mongo.Database, opts ...Option) SessionRepo {
	o := buildOptions(opts)
	return &mongoSessionRepo{
		collection: db.Collection("sessions"),
		logger:     o.logger,
	}
}

func (r *mongoSessionRepo) Save(ctx context.Context, session *model.Session) error {
	if err := validateID(session.ID); err != nil {
		return err
	}
	snapshot := *session
	snapshot.Pending = nil
	doc := sessionDocument{ID: session.ID, SavedAt: timeNow().UTC(), Session: &snapshot}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, doc, opts); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (r *mongoSessionRepo) Load(ctx context.Context, id string) (*model.Session, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	res := r.collection.FindOne(ctx, bson.M{"_id": id})
	raw, err := res.Raw()
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeDocument(id, raw)
}

func (r *mongoSessionRepo) ListAll(ctx context.Context) ([]*model.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "savedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := make([]*model.Session, 0)
	for cursor.Next(ctx) {
		id, _ := cursor.Current.Lookup("_id").StringValueOK()
		session, err := decodeDocument(id, cursor.Current)
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		sessions = append(sessions, session)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *mongoSessionRepo) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

func decodeDocument(id string, raw bson.Raw) (*model.Session, error) {
	var doc sessionDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("session %s: %w: %v", id, ErrCorruptSession, err)
	}
	if doc.Session == nil || doc.Session.ID != id {
		return nil, fmt.Errorf("session %s: %w: missing snapshot", id, ErrCorruptSession)
	}
	return doc.Session, nil
}
