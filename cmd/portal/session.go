package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	username string
	password string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a username and password",
	Long: `Log in with a username and password and save the access token.

The token is reused by later commands until the server rejects it. The CLI
does not keep the refresh cookie across runs, so an expired session means
logging in again.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state, verifying a restored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		verifyErr := ensureVerified(cmd.Context())

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API:     %s\n", app.Client().BaseURL())
		fmt.Fprintf(out, "Session: %s\n", app.Snapshot().Phase())
		if notice, ok := app.TakeNotice(); ok {
			fmt.Fprintf(out, "Notice:  %s\n", notice.Message)
		}
		return verifyErr
	},
}

func init() {
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if empty)")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if empty)")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	if password == "" {
		fmt.Fprint(out, "Password: ")
		secret, err := readPassword(in)
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = secret
	}

	ctx := cmd.Context()
	if err := app.Login(ctx, username, password); err != nil {
		return explain(err)
	}
	if err := app.Verify(ctx); err != nil {
		return explain(err)
	}

	fmt.Fprintf(out, "Logged in as %s.\n", username)
	return nil
}

func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		return string(secret), err
	}

	line, err := in.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}
