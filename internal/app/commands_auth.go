package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCommand(cc *commandContext) *cobra.Command {
	var (
		password   string
		totpCode   string
		totpSecret string
	)

	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and store the session tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cc.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			username := strings.TrimSpace(args[0])

			if password == "" {
				password = os.Getenv("VIDSPLIT_PASSWORD")
			}
			if password == "" {
				password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}

			code, err := secondFactor(totpCode, totpSecret, time.Now())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), deps.Config.RequestTimeout)
			defer cancel()

			result := deps.Session.Login(ctx, username, password, code)
			if result.TOTPRequired {
				return errors.New("two-factor code required: pass --totp or --totp-secret")
			}
			if !result.Success {
				return result.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", result.User.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (defaults to $VIDSPLIT_PASSWORD, then a prompt)")
	cmd.Flags().StringVar(&totpCode, "totp", "", "Current two-factor code")
	cmd.Flags().StringVar(&totpSecret, "totp-secret", "", "Base32 TOTP secret to generate the two-factor code from")
	return cmd
}

func newLogoutCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cc.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			deps.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cc.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			if err := restoreSession(cmd.Context(), deps); err != nil {
				return err
			}
			session := deps.Session.Session()
			if session.User == nil {
				return errNotLoggedIn
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderUser(*session.User))
			return nil
		},
	}
}

var errNotLoggedIn = errors.New("not logged in: run `vidsplit login USERNAME` first")

// restoreSession loads stored tokens and validates them against the backend.
func restoreSession(ctx context.Context, deps Dependencies) error {
	ctx, cancel := context.WithTimeout(ctx, deps.Config.RequestTimeout)
	defer cancel()
	if err := deps.Session.Initialize(ctx); err != nil {
		return err
	}
	return nil
}

// requireSession is restoreSession for commands that cannot run anonymously.
func requireSession(ctx context.Context, deps Dependencies) error {
	if err := restoreSession(ctx, deps); err != nil {
		return err
	}
	if !deps.Session.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

// secondFactor returns the explicit code, or one generated from secret at now.
func secondFactor(code, secret string, now time.Time) (string, error) {
	if code = strings.TrimSpace(code); code != "" {
		return code, nil
	}
	secret = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	if secret == "" {
		return "", nil
	}
	generated, err := totp.GenerateCode(secret, now)
	if err != nil {
		return "", fmt.Errorf("generate two-factor code: %w", err)
	}
	return generated, nil
}

// readPassword prompts on a terminal without echo, or reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		data, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
