package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
)

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)

// FirestoreStore persists sessions in Google Cloud Firestore.
//
// Firestore has no native TTL on reads, so Get treats a stored session whose
// expiry has passed as missing; an expiry sweep is left to Firestore's own
// TTL policies configured on the expires_at field.
type FirestoreStore struct {
	client     *firestore.Client
	projectID  string
	collection string
	now        func() time.Time
}

// sessionDoc is the Firestore representation of a session.
// Tokens are opaque strings to the provider anyway; the collection is
// expected to live in a project with appropriate access controls.
type sessionDoc struct {
	ID                string    `firestore:"id"`
	CreatedAt         time.Time `firestore:"created_at"`
	ExpiresAt         time.Time `firestore:"expires_at"`
	State             string    `firestore:"state,omitempty"`
	AuthorizationCode string    `firestore:"authorization_code,omitempty"`
	AccessToken       string    `firestore:"access_token,omitempty"`
	RefreshToken      string    `firestore:"refresh_token,omitempty"`
	TokenExpiry       time.Time `firestore:"token_expiry,omitempty"`
	PendingStateToken string    `firestore:"pending_state_token,omitempty"`
}

func toDoc(sess *session.Session) sessionDoc {
	doc := sessionDoc{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	if g := sess.Grant; g != nil {
		doc.State = string(g.State)
		doc.AuthorizationCode = g.AuthorizationCode
		doc.AccessToken = g.AccessToken
		doc.RefreshToken = g.RefreshToken
		doc.TokenExpiry = g.TokenExpiry
		doc.PendingStateToken = g.PendingStateToken
	}
	return doc
}

func (d sessionDoc) toSession() *session.Session {
	sess := &session.Session{
		ID:        d.ID,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
	if d.State != "" && d.State != string(session.StateAnonymous) {
		sess.Grant = &session.Grant{
			State:             session.State(d.State),
			AuthorizationCode: d.AuthorizationCode,
			AccessToken:       d.AccessToken,
			RefreshToken:      d.RefreshToken,
			TokenExpiry:       d.TokenExpiry,
			PendingStateToken: d.PendingStateToken,
		}
	}
	return sess
}

// NewFirestoreStore creates a Firestore-backed session store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		collection = "authfront_sessions"
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore session store ready", map[string]any{
		"project":    projectID,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		projectID:  projectID,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Get fetches a session document, treating expired records as missing
func (s *FirestoreStore) Get(ctx context.Context, id string) (*session.Session, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Firestore: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}

	if s.now().After(doc.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return doc.toSession(), nil
}

// Put writes the session document
func (s *FirestoreStore) Put(ctx context.Context, sess *session.Session) error {
	_, err := s.client.Collection(s.collection).Doc(sess.ID).Set(ctx, toDoc(sess))
	if err != nil {
		return fmt.Errorf("failed to store session in Firestore: %w", err)
	}
	return nil
}

// Delete removes the session document. Missing documents are not an error.
func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete session from Firestore: %w", err)
	}
	return nil
}

// List returns all unexpired sessions
func (s *FirestoreStore) List(ctx context.Context) ([]*session.Session, error) {
	iter := s.client.Collection(s.collection).
		Where("expires_at", ">", s.now()).
		Documents(ctx)
	defer iter.Stop()

	var sessions []*session.Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating Firestore sessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			log.LogError("Failed to unmarshal session from Firestore (id: %s): %v", snap.Ref.ID, err)
			continue
		}
		sessions = append(sessions, doc.toSession())
	}

	return sessions, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
