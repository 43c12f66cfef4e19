package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"libraryapi/pkg/domain"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")

	successStyle   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	borrowedStyle  = cellStyle.Foreground(colorError)
	availableStyle = cellStyle.Foreground(colorSuccess)
)

// Success prints a success message
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, successStyle.Render("✓ "))
	fmt.Fprintf(w, format+"\n", args...)
}

// Error prints an error message
func Error(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, errorStyle.Render("✗ "))
	fmt.Fprintf(w, format+"\n", args...)
}

// Muted prints a muted message
func Muted(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Books renders books as a table.
func Books(w io.Writer, books []domain.Book) {
	if len(books) == 0 {
		Muted(w, "no books")
		return
	}
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		rows = append(rows, []string{b.ID, b.Title, b.Author, strconv.Itoa(b.PublicationYear), b.Genre, string(b.Status)})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "TITLE", "AUTHOR", "YEAR", "GENRE", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 5 && row >= 0 && row < len(rows) {
				if rows[row][5] == string(domain.StatusBorrowed) {
					return borrowedStyle
				}
				return availableStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

// Book prints a single book as key/value lines.
func Book(w io.Writer, b domain.Book) {
	fields := []struct{ k, v string }{
		{"id", b.ID},
		{"title", b.Title},
		{"author", b.Author},
		{"year", strconv.Itoa(b.PublicationYear)},
		{"genre", b.Genre},
		{"status", string(b.Status)},
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render(fmt.Sprintf("%-7s", f.k)), f.v)
	}
}
