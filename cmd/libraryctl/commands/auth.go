package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"libraryapi/cmd/libraryctl/output"
	"libraryapi/pkg/libraryclient"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a session token",
		Long: `Log in with a username and password and print the session token.

The password is prompted for without echo unless --password is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				p, err := readPassword("Password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			res, err := opts.client().Login(username, password)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			output.Success(out, "logged in as %s (%s), token expires %s", res.Username, res.Role, res.ExpiresAt.Local().Format("2006-01-02 15:04"))
			fmt.Fprintln(out, res.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			if err := opts.client().Logout(opts.token); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "token revoked")
			return nil
		},
	}
}

// readPassword reads a password from the terminal with echo disabled.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the current token against the server's signing keys",
		Long: `Verify the current token offline against the keys published at /auth/jwks.

Only servers configured for RS256 publish keys. Revocation is not checked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			v, err := libraryclient.NewTokenVerifier(libraryclient.VerifierConfig{
				JWKSURL: strings.TrimRight(opts.server, "/") + "/auth/jwks",
			})
			if err != nil {
				return err
			}
			claims, err := v.Verify(opts.token)
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			if opts.jsonOutput {
				return printJSON(cmd, claims)
			}
			output.Success(cmd.OutOrStdout(), "%s (%s), token expires %s", claims.Username, claims.Role, claims.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}
