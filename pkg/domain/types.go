package domain

import "time"

type BookStatus string

const (
	StatusAvailable BookStatus = "available"
	StatusBorrowed  BookStatus = "borrowed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s BookStatus) Valid() bool {
	return s == StatusAvailable || s == StatusBorrowed
}

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"

	// RoleAnonymous is never stored; the policy table uses it for public operations.
	RoleAnonymous UserRole = "anonymous"
)

// ParseRole maps a stored role string onto a known role.
func ParseRole(raw string) (UserRole, bool) {
	switch UserRole(raw) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	default:
		return "", false
	}
}

type Book struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	PublicationYear int        `json:"publicationYear"`
	Genre           string     `json:"genre"`
	Status          BookStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// BookDetails is the caller-editable part of a book.
type BookDetails struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publicationYear"`
	Genre           string `json:"genre"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Principal is the authenticated caller as carried by a session token.
type Principal struct {
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
}
