package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"libraryapi/pkg/libraryclient"
)

const defaultServer = "http://localhost:8080"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	server     string
	token      string
	jsonOutput bool
}

func (o *globalOptions) client() *libraryclient.Client {
	return libraryclient.NewClient(o.server)
}

// NewRootCmd builds the libraryctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "libraryctl",
		Short: "Command line client for the library API",
		Long: `libraryctl talks to a running library server.

Reading the catalogue needs no login. Borrowing and returning need a user or
admin token; creating, updating and deleting books need an admin token.

Examples:
  libraryctl login --username admin
  export LIBRARY_TOKEN=<token>
  libraryctl books list
  libraryctl books borrow <id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("LIBRARY_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "Library server base URL (env LIBRARY_SERVER)")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LIBRARY_TOKEN"), "Bearer token (env LIBRARY_TOKEN)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(newLoginCmd(opts), newLogoutCmd(opts), newWhoamiCmd(opts), newBooksCmd(opts))
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireToken(opts *globalOptions) error {
	if opts.token == "" {
		return fmt.Errorf("a token is required: run libraryctl login and pass --token or set LIBRARY_TOKEN")
	}
	return nil
}
