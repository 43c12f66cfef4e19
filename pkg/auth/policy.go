package auth

import (
	"errors"

	"libraryapi/pkg/domain"
)

// Operation names a boundary operation subject to authorization.
type Operation string

const (
	OpListBooks  Operation = "books.list"
	OpGetBook    Operation = "books.get"
	OpCreateBook Operation = "books.create"
	OpUpdateBook Operation = "books.update"
	OpDeleteBook Operation = "books.delete"
	OpBorrowBook Operation = "books.borrow"
	OpReturnBook Operation = "books.return"
	OpLogin      Operation = "auth.login"
	OpLogout     Operation = "auth.logout"
	OpJWKS       Operation = "auth.jwks"
)

var (
	ErrUnauthenticated  = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUnknownOperation = errors.New("unknown operation")
)

// Policy maps an operation to the roles allowed to run it.
// A set containing domain.RoleAnonymous admits every caller.
type Policy map[Operation][]domain.UserRole

var anyone = []domain.UserRole{domain.RoleAnonymous}

// DefaultPolicy is the library's role table.
var DefaultPolicy = Policy{
	OpListBooks:  anyone,
	OpGetBook:    anyone,
	OpLogin:      anyone,
	OpJWKS:       anyone,
	OpCreateBook: {domain.RoleAdmin},
	OpUpdateBook: {domain.RoleAdmin},
	OpDeleteBook: {domain.RoleAdmin},
	OpBorrowBook: {domain.RoleUser, domain.RoleAdmin},
	OpReturnBook: {domain.RoleUser, domain.RoleAdmin},
	OpLogout:     {domain.RoleUser, domain.RoleAdmin},
}

// RequiresPrincipal reports whether op needs an authenticated caller.
func (p Policy) RequiresPrincipal(op Operation) bool {
	roles, ok := p[op]
	if !ok {
		return true
	}
	for _, role := range roles {
		if role == domain.RoleAnonymous {
			return false
		}
	}
	return true
}

// Authorize checks the caller against the table. principal is nil for anonymous callers.
// Operations missing from the table are denied.
func (p Policy) Authorize(op Operation, principal *domain.Principal) error {
	roles, ok := p[op]
	if !ok {
		return ErrUnknownOperation
	}
	if !p.RequiresPrincipal(op) {
		return nil
	}
	if principal == nil {
		return ErrUnauthenticated
	}
	for _, role := range roles {
		if principal.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

// Authorize checks op against DefaultPolicy.
func Authorize(op Operation, principal *domain.Principal) error {
	return DefaultPolicy.Authorize(op, principal)
}
