package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joescharf/teamboard/internal/models"
)

var (
	authPasswordFile string
	authEmail        string
)

// stdin backs "--password-file -" and confirmation prompts; replaced in tests.
var stdin io.Reader = os.Stdin

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in and store the credential in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun(cmd.Context(), args[0])
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account",
	Long: `Create an account on the issue store.

If your email has a pending invitation you join the inviting team;
otherwise a new team is created for you. Run 'tb login' afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return registerRun(cmd.Context(), args[0])
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and forget the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun(cmd.Context())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return whoamiRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&authPasswordFile, "password-file", "", "Read the password from a file ('-' for stdin)")
	}
	registerCmd.Flags().StringVar(&authEmail, "email", "", "Email address (required)")
	_ = registerCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// readPassword prompts on the terminal with echo disabled, or reads the
// first line of --password-file.
func readPassword() (string, error) {
	if authPasswordFile != "" {
		var r io.Reader = stdin
		if authPasswordFile != "-" {
			f, err := os.Open(authPasswordFile)
			if err != nil {
				return "", fmt.Errorf("open password file: %w", err)
			}
			defer f.Close()
			r = f
		}
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("password is empty")
		}
		return line, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for a password prompt (use --password-file)")
	}
	fmt.Fprint(ui.ErrOut, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(ui.ErrOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func loginRun(ctx context.Context, username string) error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would sign in to %s as %s", getGateway().BaseURL(), username)
		return nil
	}

	id, err := getGateway().Login(ctx, username, password)
	if err != nil {
		return explain(err)
	}

	path, err := writeConfigValues(map[string]any{
		"auth.token":    id.Token,
		"auth.user_id":  id.UserID.String(),
		"auth.team_id":  id.TeamID.String(),
		"auth.username": id.Username,
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	getSession().Init(id)

	ui.Success("Logged in as %s", id.Username)
	ui.VerboseLog("Credential saved to %s", path)
	if id.TeamID.IsZero() {
		ui.Warning("Your account has no team yet; creating issues will fail until you join one")
	}
	return nil
}

func registerRun(ctx context.Context, username string) error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would register %s <%s> at %s", username, authEmail, getGateway().BaseURL())
		return nil
	}

	u, err := getGateway().Register(ctx, username, authEmail, password)
	if err != nil {
		return explain(err)
	}
	ui.Success("Registered %s (team %s)", u.Username, u.TeamID)
	ui.Info("Run 'tb login %s' to sign in", u.Username)
	return nil
}

func logoutRun(ctx context.Context) error {
	s := getSession()
	if !s.Valid() {
		ui.Info("Not logged in")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would revoke the credential and remove it from the config file")
		return nil
	}

	if err := getGateway().Logout(ctx); err != nil {
		ui.Warning("Could not revoke the credential on the store: %v", err)
	}
	if _, err := writeConfigValues(map[string]any{
		"auth.token":    nil,
		"auth.user_id":  nil,
		"auth.team_id":  nil,
		"auth.username": nil,
	}); err != nil {
		return fmt.Errorf("forget credential: %w", err)
	}
	s.Invalidate()
	ui.Success("Logged out")
	return nil
}

func whoamiRun() error {
	id, ok := getSession().Identity()
	if !ok {
		return errNotLoggedIn
	}
	fmt.Fprintf(ui.Out, "%s (user %s)\n", displayName(id), id.UserID)
	if id.TeamID.IsZero() {
		fmt.Fprintln(ui.Out, "team: (none)")
	} else {
		fmt.Fprintf(ui.Out, "team: %s\n", id.TeamID)
	}
	fmt.Fprintf(ui.Out, "store: %s\n", getGateway().BaseURL())
	return nil
}

func displayName(id models.Identity) string {
	if id.Username != "" {
		return id.Username
	}
	return "(unknown user)"
}
