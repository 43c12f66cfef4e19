package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"libraryapi/pkg/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS books (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL,
	publication_year INTEGER NOT NULL,
	genre            TEXT NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('available', 'borrowed')),
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_books_status ON books(status);
`

const bookColumns = `id, title, author, publication_year, genre, status, created_at, updated_at`

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY on concurrent swaps.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListBooks returns books in insertion order.
func (s *SQLiteStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.SelectContext(ctx, &models, `SELECT `+bookColumns+` FROM books ORDER BY rowid`); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetBook retrieves a book by id.
func (s *SQLiteStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	var m BookModel
	err := s.db.GetContext(ctx, &m, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, false, nil
	}
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("get book: %w", err)
	}
	return bookFromModel(m), true, nil
}

// AddBook inserts a new book.
func (s *SQLiteStore) AddBook(ctx context.Context, b domain.Book) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (:id, :title, :author, :publication_year, :genre, :status, :created_at, :updated_at)`,
		bookToModel(b))
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// UpdateBook overwrites an existing book.
func (s *SQLiteStore) UpdateBook(ctx context.Context, b domain.Book) (bool, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE books
		SET title = :title, author = :author, publication_year = :publication_year,
			genre = :genre, status = :status, updated_at = :updated_at
		WHERE id = :id`, bookToModel(b))
	if err != nil {
		return false, fmt.Errorf("update book: %w", err)
	}
	return affectedOne(res)
}

// UpdateDetails writes the detail columns only and returns the stored row.
func (s *SQLiteStore) UpdateDetails(ctx context.Context, id string, d domain.BookDetails, updatedAt time.Time) (domain.Book, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE books
		SET title = ?, author = ?, publication_year = ?, genre = ?, updated_at = ?
		WHERE id = ?`,
		d.Title, d.Author, d.PublicationYear, d.Genre, updatedAt.UTC(), id)
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("update book details: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil || !ok {
		return domain.Book{}, false, err
	}
	return s.GetBook(ctx, id)
}

// SwapStatus sets status to `to` only while it is still `from`.
func (s *SQLiteStore) SwapStatus(ctx context.Context, id string, from, to domain.BookStatus, updatedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), updatedAt.UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("swap status: %w", err)
	}
	return affectedOne(res)
}

// DeleteBook removes a book.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	return affectedOne(res)
}

// SaveUser inserts or updates a user.
func (s *SQLiteStore) SaveUser(ctx context.Context, u domain.User) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES (:id, :username, :email, :password_hash, :role, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			password_hash = excluded.password_hash,
			role = excluded.role`, userToModel(u))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetUserByUsername looks up a user by exact username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	var m UserModel
	err := s.db.GetContext(ctx, &m,
		`SELECT id, username, email, password_hash, role, created_at FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return userFromModel(m), true, nil
}

// UserCount returns number of users.
func (s *SQLiteStore) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
