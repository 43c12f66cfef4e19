package commands

import (
	"github.com/spf13/cobra"

	"libraryapi/cmd/libraryctl/output"
	"libraryapi/pkg/domain"
)

func newBooksCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "books",
		Aliases: []string{"book"},
		Short:   "Manage the book catalogue",
	}
	cmd.AddCommand(
		newBooksListCmd(opts),
		newBooksGetCmd(opts),
		newBooksCreateCmd(opts),
		newBooksUpdateCmd(opts),
		newBooksDeleteCmd(opts),
		newBooksTransitionCmd(opts, "borrow", "Borrow an available book", "borrowed"),
		newBooksTransitionCmd(opts, "return", "Return a borrowed book", "returned"),
	)
	return cmd
}

func newBooksListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := opts.client().ListBooks(opts.token)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd, books)
			}
			output.Books(cmd.OutOrStdout(), books)
			return nil
		},
	}
}

func newBooksGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := opts.client().GetBook(opts.token, args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd, book)
			}
			output.Book(cmd.OutOrStdout(), book)
			return nil
		},
	}
}

func bindDetailFlags(cmd *cobra.Command, d *domain.BookDetails) {
	cmd.Flags().StringVar(&d.Title, "title", "", "Book title (required)")
	cmd.Flags().StringVar(&d.Author, "author", "", "Book author (required)")
	cmd.Flags().IntVar(&d.PublicationYear, "year", 0, "Publication year (required)")
	cmd.Flags().StringVar(&d.Genre, "genre", "", "Genre (required)")
	for _, name := range []string{"title", "author", "year", "genre"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func newBooksCreateCmd(opts *globalOptions) *cobra.Command {
	var details domain.BookDetails
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a book (admin)",
		Example: `  libraryctl books create --title Dune --author "Frank Herbert" --year 1965 --genre Sci-Fi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			book, err := opts.client().CreateBook(opts.token, details)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd, book)
			}
			output.Success(cmd.OutOrStdout(), "created %s", book.ID)
			return nil
		},
	}
	bindDetailFlags(cmd, &details)
	return cmd
}

func newBooksUpdateCmd(opts *globalOptions) *cobra.Command {
	var details domain.BookDetails
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a book's details (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			if err := opts.client().UpdateBook(opts.token, args[0], details); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "updated %s", args[0])
			return nil
		},
	}
	bindDetailFlags(cmd, &details)
	return cmd
}

func newBooksDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a book (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			if err := opts.client().DeleteBook(opts.token, args[0]); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "deleted %s", args[0])
			return nil
		},
	}
}

func newBooksTransitionCmd(opts *globalOptions, use, short, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			c := opts.client()
			call := c.BorrowBook
			if use == "return" {
				call = c.ReturnBook
			}
			if err := call(opts.token, args[0]); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "%s %s", done, args[0])
			return nil
		},
	}
}
