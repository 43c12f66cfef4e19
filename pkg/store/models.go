package store

import (
	"time"

	"libraryapi/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey" db:"id"`
	Username     string    `gorm:"uniqueIndex;not null" db:"username"`
	Email        string    `gorm:"uniqueIndex;not null" db:"email"`
	PasswordHash string    `gorm:"not null" db:"password_hash"`
	Role         string    `gorm:"not null" db:"role"`
	CreatedAt    time.Time `gorm:"not null" db:"created_at"`
}

func (UserModel) TableName() string { return "users" }

type BookModel struct {
	ID              string    `gorm:"primaryKey" db:"id"`
	Title           string    `gorm:"size:200;not null" db:"title"`
	Author          string    `gorm:"size:100;not null" db:"author"`
	PublicationYear int       `gorm:"not null" db:"publication_year"`
	Genre           string    `gorm:"size:100;not null" db:"genre"`
	Status          string    `gorm:"not null;index" db:"status"`
	CreatedAt       time.Time `gorm:"not null;index" db:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" db:"updated_at"`
}

func (BookModel) TableName() string { return "books" }

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		PublicationYear: b.PublicationYear,
		Genre:           b.Genre,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		Author:          m.Author,
		PublicationYear: m.PublicationYear,
		Genre:           m.Genre,
		Status:          domain.BookStatus(m.Status),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
