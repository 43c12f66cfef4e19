package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryapi/pkg/auth"
	"libraryapi/pkg/domain"
	"libraryapi/pkg/events"
	"libraryapi/pkg/store"
)

var (
	admin  = domain.Principal{Username: "admin", Role: domain.RoleAdmin}
	reader = domain.Principal{Username: "user", Role: domain.RoleUser}
	dune   = domain.BookDetails{Title: "Dune", Author: "Frank Herbert", PublicationYear: 1965, Genre: "Science Fiction"}
)

type fixture struct {
	app    *App
	store  *store.MemoryStore
	events *events.MemoryPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	return newFixtureWithBooks(t, mem, mem)
}

func newFixtureWithBooks(t *testing.T, books store.BookRepository, mem *store.MemoryStore) fixture {
	t.Helper()
	sessions, err := store.NewJWTHS256SessionStore("0123456789abcdef0123456789abcdef", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	require.NoError(t, err)
	pub := events.NewMemoryPublisher()
	a, err := New(Config{Books: books, Users: mem, Sessions: sessions, Events: pub})
	require.NoError(t, err)
	return fixture{app: a, store: mem, events: pub}
}

// plainRepo hides the StatusSwapper capability of the wrapped store.
type plainRepo struct{ store.BookRepository }

// borrowBeforeWrite runs beforeWrite between the update's read and its write.
type borrowBeforeWrite struct {
	*store.MemoryStore
	beforeWrite func()
}

func (b *borrowBeforeWrite) UpdateDetails(ctx context.Context, id string, d domain.BookDetails, at time.Time) (domain.Book, bool, error) {
	if b.beforeWrite != nil {
		b.beforeWrite()
		b.beforeWrite = nil
	}
	return b.MemoryStore.UpdateDetails(ctx, id, d, at)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func eventTypes(p *events.MemoryPublisher) []events.Type {
	var out []events.Type
	for _, e := range p.Events() {
		out = append(out, e.Type)
	}
	return out
}

func TestDuneLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, created.Status)
	assert.NotEmpty(t, created.ID)

	require.NoError(t, f.app.BorrowBook(ctx, reader, created.ID))
	got, err := f.app.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBorrowed, got.Status)

	err = f.app.BorrowBook(ctx, reader, created.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyBorrowed)

	require.NoError(t, f.app.ReturnBook(ctx, reader, created.ID))
	err = f.app.ReturnBook(ctx, reader, created.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyAvailable)

	require.NoError(t, f.app.DeleteBook(ctx, admin, created.ID))
	_, err = f.app.GetBook(ctx, created.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.Equal(t, []events.Type{
		events.BookCreated, events.BookBorrowed, events.BookReturned, events.BookDeleted,
	}, eventTypes(f.events))
	assert.Equal(t, "user", f.events.Events()[1].Actor)
	assert.Equal(t, domain.StatusBorrowed, f.events.Events()[1].Status)
}

func TestCreateBookRejectsInvalidDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.CreateBook(ctx, admin, domain.BookDetails{Title: "  ", Author: "A", PublicationYear: 0, Genre: "G"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["title"])
	assert.True(t, fields["publicationYear"])

	books, err := f.app.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.Empty(t, f.events.Events())
}

func TestListBooksKeepsInsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, title := range []string{"Dune", "Emma", "Ulysses"} {
		d := dune
		d.Title = title
		_, err := f.app.CreateBook(ctx, admin, d)
		require.NoError(t, err)
	}
	books, err := f.app.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 3)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Ulysses", books[2].Title)
}

func TestUpdateBookKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)
	require.NoError(t, f.app.BorrowBook(ctx, reader, created.ID))

	update := domain.BookDetails{Title: "Dune Messiah", Author: "Frank Herbert", PublicationYear: 1969, Genre: "Science Fiction"}
	require.NoError(t, f.app.UpdateBook(ctx, admin, created.ID, update))

	got, err := f.app.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, 1969, got.PublicationYear)
	assert.Equal(t, domain.StatusBorrowed, got.Status)
}

func TestUpdateBookDoesNotRevertConcurrentBorrow(t *testing.T) {
	mem := store.NewMemoryStore()
	repo := &borrowBeforeWrite{MemoryStore: mem}
	f := newFixtureWithBooks(t, repo, mem)
	ctx := context.Background()
	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)

	repo.beforeWrite = func() {
		require.NoError(t, f.app.BorrowBook(ctx, reader, created.ID))
	}
	update := domain.BookDetails{Title: "Dune Messiah", Author: "Frank Herbert", PublicationYear: 1969, Genre: "Science Fiction"}
	require.NoError(t, f.app.UpdateBook(ctx, admin, created.ID, update))

	got, err := f.app.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, domain.StatusBorrowed, got.Status)

	published := f.events.Events()
	require.Len(t, published, 3)
	assert.Equal(t, []events.Type{events.BookCreated, events.BookBorrowed, events.BookUpdated}, eventTypes(f.events))
	assert.Equal(t, domain.StatusBorrowed, published[2].Status)
}

func TestUnknownUserPasswordCheckUsesRealHash(t *testing.T) {
	hash := unknownUserHash()
	require.True(t, strings.HasPrefix(hash, "$2"), "expected a bcrypt hash, got %q", hash)
	assert.False(t, auth.CheckPassword("admin123", hash))
}

func TestUpdateBookInvalidLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)

	err = f.app.UpdateBook(ctx, admin, created.ID, domain.BookDetails{Title: "", Author: "x", PublicationYear: 1, Genre: "y"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.app.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestNotFoundWinsOverInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.NewString()

	err := f.app.UpdateBook(ctx, admin, missing, domain.BookDetails{})
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.NotErrorIs(t, err, domain.ErrValidation)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)

	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		_, err := f.app.GetBook(ctx, id)
		assert.ErrorIs(t, err, ErrBookNotFound, "get %q", id)
		assert.ErrorIs(t, f.app.UpdateBook(ctx, admin, id, dune), ErrBookNotFound, "update %q", id)
		assert.ErrorIs(t, f.app.DeleteBook(ctx, admin, id), ErrBookNotFound, "delete %q", id)
		assert.ErrorIs(t, f.app.BorrowBook(ctx, reader, id), ErrBookNotFound, "borrow %q", id)
		assert.ErrorIs(t, f.app.ReturnBook(ctx, reader, id), ErrBookNotFound, "return %q", id)
	}

	books, err := f.app.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, created, books[0])
	assert.Equal(t, []events.Type{events.BookCreated}, eventTypes(f.events))
}

func TestTransitionGuardErrorsAreNotValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)

	err = f.app.ReturnBook(ctx, reader, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrValidation)
	assert.NotErrorIs(t, err, ErrBookNotFound)
}

func TestConcurrentBorrowHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)

	const callers = 16
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.app.BorrowBook(ctx, reader, created.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyBorrowed)
	}
	assert.Equal(t, 1, wins)
}

func TestBorrowWithoutStatusSwapper(t *testing.T) {
	mem := store.NewMemoryStore()
	f := newFixtureWithBooks(t, plainRepo{mem}, mem)
	ctx := context.Background()
	assert.Nil(t, f.app.swapper)

	created, err := f.app.CreateBook(ctx, admin, dune)
	require.NoError(t, err)
	require.NoError(t, f.app.BorrowBook(ctx, reader, created.ID))
	assert.ErrorIs(t, f.app.BorrowBook(ctx, reader, created.ID), domain.ErrAlreadyBorrowed)

	got, err := f.app.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBorrowed, got.Status)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	mem := store.NewMemoryStore()
	sessions, err := store.NewJWTHS256SessionStore("0123456789abcdef0123456789abcdef", time.Hour, nil, store.JWTOptions{})
	require.NoError(t, err)
	a, err := New(Config{Books: mem, Users: mem, Sessions: sessions, Events: failingPublisher{}})
	require.NoError(t, err)

	created, err := a.CreateBook(context.Background(), admin, dune)
	require.NoError(t, err)
	require.NoError(t, a.BorrowBook(context.Background(), reader, created.ID))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash, err := auth.HashPassword("admin123")
	require.NoError(t, err)
	require.NoError(t, f.store.SaveUser(ctx, domain.User{
		ID: uuid.NewString(), Username: "admin", Email: "admin@example.com",
		PasswordHash: hash, Role: domain.RoleAdmin, CreatedAt: time.Now(),
	}))

	res, err := f.app.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.Username)
	assert.Equal(t, domain.RoleAdmin, res.Role)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	principal, err := f.app.Authenticate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, admin, principal)

	_, err = f.app.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.app.Login(ctx, "nobody", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.app.Login(ctx, "Admin", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "Incorrect username or password", ErrInvalidCredentials.Error())

	require.NoError(t, f.app.Logout(ctx, res.Token))
	_, err = f.app.Authenticate(res.Token)
	assert.ErrorIs(t, err, store.ErrTokenRevoked)
	assert.Nil(t, f.app.JWKS())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
