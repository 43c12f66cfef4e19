package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"libraryapi/internal/util"
	"libraryapi/pkg/auth"
	"libraryapi/pkg/domain"
	"libraryapi/pkg/events"
	"libraryapi/pkg/store"
)

// Config holds the collaborators of the library application.
type Config struct {
	Books    store.BookRepository
	Users    store.UserStore
	Sessions store.SessionStore
	Events   events.Publisher
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// App runs the library operations against a repository.
type App struct {
	books    store.BookRepository
	swapper  store.StatusSwapper
	details  store.DetailsUpdater
	users    store.UserStore
	sessions store.SessionStore
	events   events.Publisher
	now      func() time.Time
	newID    func() string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	Username  string
	Role      domain.UserRole
	ExpiresAt time.Time
}

// New builds the application.
func New(cfg Config) (*App, error) {
	if cfg.Books == nil {
		return nil, errors.New("book repository required")
	}
	if cfg.Users == nil {
		return nil, errors.New("user store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	a := &App{
		books:    cfg.Books,
		users:    cfg.Users,
		sessions: cfg.Sessions,
		events:   cfg.Events,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if swapper, ok := cfg.Books.(store.StatusSwapper); ok {
		a.swapper = swapper
	}
	if details, ok := cfg.Books.(store.DetailsUpdater); ok {
		a.details = details
	}
	if a.events == nil {
		a.events = events.NopPublisher{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a, nil
}

// ListBooks returns every book in insertion order.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	books, err := a.books.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	util.LoggerFromContext(ctx).Debug("books listed", "count", len(books))
	return books, nil
}

// GetBook returns the book with id.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, error) {
	return a.load(ctx, id)
}

// CreateBook stores a new available book. Any caller-supplied status is ignored.
func (a *App) CreateBook(ctx context.Context, actor domain.Principal, details domain.BookDetails) (domain.Book, error) {
	book, err := domain.NewBook(a.newID(), details, a.now())
	if err != nil {
		return domain.Book{}, err
	}
	if err := a.books.AddBook(ctx, book); err != nil {
		return domain.Book{}, fmt.Errorf("add book: %w", err)
	}
	util.LoggerFromContext(ctx).Info("book created", "book_id", book.ID, "title", book.Title, "actor", actor.Username)
	a.publish(ctx, events.BookCreated, book, actor)
	return book, nil
}

// UpdateBook replaces the details of an existing book. The status is kept.
func (a *App) UpdateBook(ctx context.Context, actor domain.Principal, id string, details domain.BookDetails) error {
	book, err := a.load(ctx, id)
	if err != nil {
		return err
	}
	if err := book.UpdateDetails(details, a.now()); err != nil {
		return err
	}
	var ok bool
	if a.details != nil {
		book, ok, err = a.details.UpdateDetails(ctx, id, book.Details(), book.UpdatedAt)
	} else {
		ok, err = a.books.UpdateBook(ctx, book)
	}
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	util.LoggerFromContext(ctx).Info("book updated", "book_id", id, "actor", actor.Username)
	a.publish(ctx, events.BookUpdated, book, actor)
	return nil
}

// DeleteBook removes a book.
func (a *App) DeleteBook(ctx context.Context, actor domain.Principal, id string) error {
	if !validID(id) {
		return ErrBookNotFound
	}
	ok, err := a.books.DeleteBook(ctx, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if !ok {
		util.LoggerFromContext(ctx).Warn("book to delete not found", "book_id", id)
		return ErrBookNotFound
	}
	util.LoggerFromContext(ctx).Info("book deleted", "book_id", id, "actor", actor.Username)
	a.publish(ctx, events.BookDeleted, domain.Book{ID: id}, actor)
	return nil
}

// BorrowBook moves an available book to borrowed.
func (a *App) BorrowBook(ctx context.Context, actor domain.Principal, id string) error {
	return a.transition(ctx, actor, id, events.BookBorrowed, (*domain.Book).Borrow)
}

// ReturnBook moves a borrowed book back to available.
func (a *App) ReturnBook(ctx context.Context, actor domain.Principal, id string) error {
	return a.transition(ctx, actor, id, events.BookReturned, (*domain.Book).Return)
}

const maxTransitionAttempts = 3

// transition loads, applies and persists a status change. With a StatusSwapper
// a lost compare-and-set is re-evaluated against the fresh row, so the loser of
// a race sees the guard error of the new state.
func (a *App) transition(ctx context.Context, actor domain.Principal, id string, kind events.Type, apply func(*domain.Book, time.Time) error) error {
	logger := util.LoggerFromContext(ctx)
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		book, err := a.load(ctx, id)
		if err != nil {
			return err
		}
		from := book.Status
		if err := apply(&book, a.now()); err != nil {
			logger.Info("book transition rejected", "book_id", id, "status", from, "reason", err.Error())
			return err
		}

		var ok bool
		if a.swapper != nil {
			ok, err = a.swapper.SwapStatus(ctx, id, from, book.Status, book.UpdatedAt)
		} else {
			ok, err = a.books.UpdateBook(ctx, book)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		if ok {
			logger.Info("book status changed", "book_id", id, "from", from, "to", book.Status, "actor", actor.Username)
			a.publish(ctx, kind, book, actor)
			return nil
		}
	}
	return fmt.Errorf("%s: book %s kept changing concurrently", kind, id)
}

// unknownUserHash is compared against when the username does not exist.
var unknownUserHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword("library-unknown-user")
	return hash
})

// Login checks credentials and issues a session token.
func (a *App) Login(ctx context.Context, username, password string) (LoginResult, error) {
	logger := util.LoggerFromContext(ctx)
	user, ok, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		// Same bcrypt cost as a wrong password.
		auth.CheckPassword(password, unknownUserHash())
		logger.Warn("login failed", "username", username)
		return LoginResult{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		logger.Warn("login failed", "username", username)
		return LoginResult{}, ErrInvalidCredentials
	}
	token, expiresAt, err := a.sessions.NewSession(domain.Principal{Username: user.Username, Role: user.Role})
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	logger.Info("login succeeded", "username", user.Username, "role", user.Role)
	return LoginResult{Token: token, Username: user.Username, Role: user.Role, ExpiresAt: expiresAt}, nil
}

// Logout revokes token.
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	util.LoggerFromContext(ctx).Info("logout")
	return nil
}

// Authenticate resolves a bearer token to its principal.
func (a *App) Authenticate(token string) (domain.Principal, error) {
	return a.sessions.Verify(token)
}

// JWKS returns the public signing keys, or nil when tokens are HMAC-signed.
func (a *App) JWKS() []store.JWK {
	provider, ok := a.sessions.(store.JWKSProvider)
	if !ok {
		return nil
	}
	return provider.JWKS()
}

func (a *App) load(ctx context.Context, id string) (domain.Book, error) {
	if !validID(id) {
		return domain.Book{}, ErrBookNotFound
	}
	book, ok, err := a.books.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		util.LoggerFromContext(ctx).Warn("book not found", "book_id", id)
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

func (a *App) publish(ctx context.Context, kind events.Type, book domain.Book, actor domain.Principal) {
	e := events.Event{
		Type:       kind,
		BookID:     book.ID,
		Status:     book.Status,
		Actor:      actor.Username,
		OccurredAt: a.now().UTC(),
	}
	if err := a.events.Publish(ctx, e); err != nil {
		util.LoggerFromContext(ctx).Error("publish book event failed", "type", kind, "book_id", book.ID, "err", err)
	}
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
