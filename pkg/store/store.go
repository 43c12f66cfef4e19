package store

import (
	"context"
	"time"

	"libraryapi/pkg/domain"
)

// BookRepository is the persistence boundary for books.
type BookRepository interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	AddBook(ctx context.Context, book domain.Book) error
	// UpdateBook overwrites a stored book. It reports false when id is unknown.
	UpdateBook(ctx context.Context, book domain.Book) (bool, error)
	// DeleteBook removes a book. It reports false when id is unknown.
	DeleteBook(ctx context.Context, id string) (bool, error)
}

// StatusSwapper is an optional capability of a BookRepository: an atomic
// compare-and-set of the status column. It reports false when the stored
// status is not from (or the book is gone).
type StatusSwapper interface {
	SwapStatus(ctx context.Context, id string, from, to domain.BookStatus, updatedAt time.Time) (bool, error)
}

// DetailsUpdater is an optional capability of a BookRepository: it writes the
// four detail columns and updated_at, never status, and returns the stored row.
// It reports false when the book is gone.
type DetailsUpdater interface {
	UpdateDetails(ctx context.Context, id string, details domain.BookDetails, updatedAt time.Time) (domain.Book, bool, error)
}

// UserStore persists users for authentication.
type UserStore interface {
	SaveUser(ctx context.Context, user domain.User) error
	GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error)
	UserCount(ctx context.Context) (int, error)
}

// Store is the full persistence surface used by the library service.
type Store interface {
	BookRepository
	StatusSwapper
	DetailsUpdater
	UserStore
	Close() error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(principal domain.Principal) (token string, expiresAt time.Time, err error)
	Verify(token string) (domain.Principal, error)
	DeleteSession(token string) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
