package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/output"
	"github.com/joescharf/teamboard/internal/pipeline"
	"github.com/joescharf/teamboard/internal/session"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize or
// lazily by the getters below.
var (
	ui *output.UI

	sess       *session.Session
	gw         *gateway.Client
	issueCache *cache.Cache
	pipe       *pipeline.Pipeline

	verbose bool
	dryRun  bool
)

// errNotLoggedIn is returned by commands that need a stored credential.
var errNotLoggedIn = errors.New("not logged in: run 'tb login' first")

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "teamboard - a terminal kanban board for your team's issues",
	Long: `tb keeps a local copy of your team's issues in sync with the issue
store and lets you move them across the Open / In Progress / Closed lanes.

Running bare 'tb' opens the interactive board.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return boardRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tb/config.yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "Issue store base URL")
	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TB")
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	dir, _ := configDirFunc()

	viper.SetDefault("api_url", "http://localhost:8000")
	viper.SetDefault("poll_interval", cache.DefaultInterval)
	viper.SetDefault("http_timeout", 0)
	viper.SetDefault("auth.token", "")
	viper.SetDefault("auth.user_id", "")
	viper.SetDefault("auth.team_id", "")
	viper.SetDefault("auth.username", "")
	viper.SetDefault("serve.port", 8000)
	viper.SetDefault("serve.db_path", filepath.Join(dir, "tb.db"))
	viper.SetDefault("serve.log_file", filepath.Join(dir, "tb-serve.log"))
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Client dependencies are built lazily so config/version run offline.
}

// resetDeps drops the lazily built client so the next getter rebuilds it
// from the current config.
func resetDeps() {
	sess = nil
	gw = nil
	issueCache = nil
	pipe = nil
}

// cliLogger returns the slog logger used by library packages while a
// command runs. Quiet unless --verbose.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(ui.ErrOut, &slog.HandlerOptions{Level: level}))
}

// getSession returns the session, initialized from the stored credential.
// The session stays invalid when no credential has been saved.
func getSession() *session.Session {
	if sess != nil {
		return sess
	}
	sess = session.New()
	if token := viper.GetString("auth.token"); token != "" {
		sess.Init(models.Identity{
			Token:    token,
			UserID:   models.ID(viper.GetString("auth.user_id")),
			TeamID:   models.ID(viper.GetString("auth.team_id")),
			Username: viper.GetString("auth.username"),
		})
	}
	return sess
}

// getGateway returns the shared gateway client.
func getGateway() *gateway.Client {
	if gw != nil {
		return gw
	}
	hc := &http.Client{Timeout: viper.GetDuration("http_timeout")}
	gw = gateway.NewClient(viper.GetString("api_url"), getSession(),
		gateway.WithHTTPClient(hc),
		gateway.WithLogger(cliLogger()),
	)
	return gw
}

// getCache returns the shared issue cache.
func getCache() *cache.Cache {
	if issueCache == nil {
		issueCache = cache.New(getGateway(), cache.WithLogger(cliLogger()))
	}
	return issueCache
}

// getPipeline returns the shared mutation pipeline.
func getPipeline() *pipeline.Pipeline {
	if pipe == nil {
		pipe = pipeline.New(getGateway(), getCache(), pipeline.WithLogger(cliLogger()))
	}
	return pipe
}

// requireLogin fails fast when no credential is stored.
func requireLogin() error {
	if !getSession().Valid() {
		return errNotLoggedIn
	}
	return nil
}

// explain adds a next step to errors the user can act on.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gateway.ErrUnauthorized):
		return fmt.Errorf("%w (run 'tb login' to sign in again)", err)
	case errors.Is(err, pipeline.ErrBusy):
		return fmt.Errorf("%w (wait for the previous change to finish)", err)
	case errors.Is(err, models.ErrMissingTeam):
		return fmt.Errorf("%w (ask a teammate for an invite, or register a new account)", err)
	case errors.Is(err, gateway.ErrTransport):
		return fmt.Errorf("%w (is the issue store at %s reachable?)", err, viper.GetString("api_url"))
	}
	return err
}
