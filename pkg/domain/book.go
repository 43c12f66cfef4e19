package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength  = 200
	MaxAuthorLength = 100
	MaxGenreLength  = 100
)

// NewBook builds an available book from validated details.
// The status is always StatusAvailable, whatever the caller asked for.
func NewBook(id string, details BookDetails, now time.Time) (Book, error) {
	details, err := details.Normalize()
	if err != nil {
		return Book{}, err
	}
	now = now.UTC()
	return Book{
		ID:              id,
		Title:           details.Title,
		Author:          details.Author,
		PublicationYear: details.PublicationYear,
		Genre:           details.Genre,
		Status:          StatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Details returns the editable fields of b.
func (b Book) Details() BookDetails {
	return BookDetails{
		Title:           b.Title,
		Author:          b.Author,
		PublicationYear: b.PublicationYear,
		Genre:           b.Genre,
	}
}

// UpdateDetails overwrites title, author, year and genre. Status is untouched.
// On error b is left unchanged.
func (b *Book) UpdateDetails(details BookDetails, now time.Time) error {
	details, err := details.Normalize()
	if err != nil {
		return err
	}
	b.Title = details.Title
	b.Author = details.Author
	b.PublicationYear = details.PublicationYear
	b.Genre = details.Genre
	b.UpdatedAt = now.UTC()
	return nil
}

// Borrow moves an available book to borrowed.
func (b *Book) Borrow(now time.Time) error {
	if b.Status == StatusBorrowed {
		return ErrAlreadyBorrowed
	}
	b.Status = StatusBorrowed
	b.UpdatedAt = now.UTC()
	return nil
}

// Return moves a borrowed book back to available.
func (b *Book) Return(now time.Time) error {
	if b.Status == StatusAvailable {
		return ErrAlreadyAvailable
	}
	b.Status = StatusAvailable
	b.UpdatedAt = now.UTC()
	return nil
}

// Normalize trims the text fields and validates the result.
func (d BookDetails) Normalize() (BookDetails, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Author = strings.TrimSpace(d.Author)
	d.Genre = strings.TrimSpace(d.Genre)

	verr := &ValidationError{}
	checkText(verr, "title", d.Title, MaxTitleLength)
	checkText(verr, "author", d.Author, MaxAuthorLength)
	if d.PublicationYear <= 0 {
		verr.add("publicationYear", "must be greater than 0")
	}
	checkText(verr, "genre", d.Genre, MaxGenreLength)
	if err := verr.orNil(); err != nil {
		return BookDetails{}, err
	}
	return d, nil
}

func checkText(verr *ValidationError, field, value string, limit int) {
	switch {
	case value == "":
		verr.add(field, "is required")
	case utf8.RuneCountInString(value) > limit:
		verr.add(field, "must be at most "+strconv.Itoa(limit)+" characters")
	}
}
