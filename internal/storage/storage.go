// Package storage provides the session store backends. A store persists
// opaque session ids to their session/grant records with TTL-based expiry.
// Mutation ordering for a single session is the lifecycle controller's
// responsibility; stores only guarantee that individual operations are safe
// to call concurrently.
package storage

import (
	"context"
	"errors"

	"github.com/authfront/authfront/internal/session"
)

// ErrSessionNotFound is returned when a session doesn't exist or has expired
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions keyed by their opaque id.
// Put uses the session's ExpiresAt as the record TTL.
type Store interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	Put(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, id string) error

	// List returns all live sessions, for the admin inspection endpoint.
	List(ctx context.Context) ([]*session.Session, error)

	Close() error
}
