package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/diogo/checkin/internal/session"
)

// errPasswordMismatch is reported before any request is made
var errPasswordMismatch = errors.New("passwords do not match")

// NewLoginCmd creates the login command
func NewLoginCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and store the session",
		Long: `Sign in with your username and password. The session token is stored
in the configured credential backend (file or keyring) and reused by later
commands until you log out.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := readCredentials(deps.Prompter, args, false)
			if err != nil {
				return err
			}
			if err := deps.Sessions.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", username)
			return nil
		},
	}
}

// NewRegisterCmd creates the register command
func NewRegisterCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "register [username]",
		Short: "Create an account",
		Long: `Create an account on the backend. Registration does not sign you in;
run 'checkin login' afterwards.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := readCredentials(deps.Prompter, args, true)
			if err != nil {
				return err
			}
			if err := deps.Sessions.Register(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created. Run 'checkin login' to sign in.\n", username)
			return nil
		},
	}
}

// readCredentials prompts for whatever args do not provide. With confirm,
// the password is asked twice and must match.
func readCredentials(p Prompter, args []string, confirm bool) (string, string, error) {
	var username string
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
	}
	if username == "" {
		var err error
		if username, err = p.Line("Username: "); err != nil {
			return "", "", err
		}
	}

	password, err := p.Password("Password: ")
	if err != nil {
		return "", "", err
	}
	if confirm {
		again, err := p.Password("Confirm password: ")
		if err != nil {
			return "", "", err
		}
		if again != password {
			return "", "", errPasswordMismatch
		}
	}
	return username, password, nil
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps.Sessions.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// NewStatusCmd creates the status command
func NewStatusCmd(deps *Dependencies) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Long: `Show the backend address and whether a session is stored.

The stored token is trusted as-is; pass --verify to check it against the
backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:     %s\n", deps.Config.BaseURL)
			fmt.Fprintf(out, "Credentials: %s\n", deps.Config.CredentialBackend)

			if !deps.Sessions.Session().Authenticated() {
				fmt.Fprintln(out, "Session:     not logged in")
				return nil
			}
			fmt.Fprintln(out, "Session:     logged in")

			if claims, err := deps.Sessions.Claims(); err == nil {
				if claims.Subject != "" {
					fmt.Fprintf(out, "User:        %s\n", claims.Subject)
				}
				if !claims.ExpiresAt.IsZero() {
					state := "valid"
					if claims.Expired(time.Now()) {
						state = "expired"
					}
					fmt.Fprintf(out, "Expires:     %s (%s)\n", claims.ExpiresAt.Local().Format("2006-01-02 15:04"), state)
				}
			} else {
				fmt.Fprintln(out, "Token:       opaque")
			}

			if !verify {
				return nil
			}
			if err := deps.Sessions.Verify(cmd.Context()); err != nil {
				if session.IsNotAuthenticated(err) {
					fmt.Fprintln(out, "Verified:    rejected by backend")
				}
				return err
			}
			fmt.Fprintln(out, "Verified:    accepted by backend")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Check the token against the backend")
	return cmd
}
