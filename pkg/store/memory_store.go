package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"libraryapi/pkg/domain"
)

// MemoryStore keeps books and users in-process.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[string]domain.Book
	orders []string
	users  map[string]domain.User // key: user ID
	names  map[string]string      // username -> user ID
	email  map[string]string      // email -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[string]domain.Book),
		users: make(map[string]domain.User),
		names: make(map[string]string),
		email: make(map[string]string),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// ListBooks returns books in insertion order.
func (m *MemoryStore) ListBooks(context.Context) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.orders))
	for _, id := range m.orders {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// GetBook fetches a book by id.
func (m *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// AddBook inserts a new book. Duplicate ids are rejected.
func (m *MemoryStore) AddBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; exists {
		return fmt.Errorf("book %s already exists", b.ID)
	}
	m.books[b.ID] = b
	m.orders = append(m.orders, b.ID)
	return nil
}

// UpdateBook replaces an existing book record.
func (m *MemoryStore) UpdateBook(_ context.Context, b domain.Book) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return false, nil
	}
	m.books[b.ID] = b
	return true, nil
}

// UpdateDetails overwrites the detail fields of a book and keeps its status.
func (m *MemoryStore) UpdateDetails(_ context.Context, id string, d domain.BookDetails, updatedAt time.Time) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	b.Title, b.Author, b.PublicationYear, b.Genre = d.Title, d.Author, d.PublicationYear, d.Genre
	b.UpdatedAt = updatedAt.UTC()
	m.books[id] = b
	return b, true, nil
}

// SwapStatus changes status only while it still equals from.
func (m *MemoryStore) SwapStatus(_ context.Context, id string, from, to domain.BookStatus, updatedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = updatedAt.UTC()
	m.books[id] = b
	return true, nil
}

// DeleteBook removes a book and its ordering slot.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return false, nil
	}
	delete(m.books, id)
	for i, existing := range m.orders {
		if existing == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			break
		}
	}
	return true, nil
}

// SaveUser stores a user, keeping username and email unique.
func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.names[u.Username]; ok && owner != u.ID {
		return fmt.Errorf("username %q already taken", u.Username)
	}
	if owner, ok := m.email[u.Email]; ok && owner != u.ID {
		return fmt.Errorf("email %q already taken", u.Email)
	}
	if prev, ok := m.users[u.ID]; ok {
		delete(m.names, prev.Username)
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.names[u.Username] = u.ID
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByUsername finds a user by exact username.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.names[username]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}
