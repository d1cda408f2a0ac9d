package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/pipeline"
	"github.com/joescharf/teamboard/internal/tui"
)

var boardLogFile string

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Open the interactive board",
	Long: `Open the interactive kanban board.

Cards are grouped into Open / In Progress / Closed lanes and refreshed every
poll_interval. Press space to pick a card up, move it with the arrow keys and
press enter to drop it in another lane. Press ? for all keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardRun(cmd)
	},
}

var boardShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the board once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardShowRun(cmd.Context())
	},
}

func init() {
	boardCmd.PersistentFlags().StringVar(&boardLogFile, "log-file", "", "Write debug logs to this file while the board is open")
	rootCmd.Flags().StringVar(&boardLogFile, "log-file", "", "Write debug logs to this file while the board is open")

	boardCmd.AddCommand(boardShowCmd)
	rootCmd.AddCommand(boardCmd)
}

// boardLogger returns a logger that never writes to the terminal the board
// is drawn on, and a closer for its file.
func boardLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}

// boardRun opens the TUI. The cache is refreshed by a background loop and
// published to the model through a subscription.
func boardRun(cmd *cobra.Command) error {
	if err := requireLogin(); err != nil {
		return err
	}

	logger, closeLog, err := boardLogger(boardLogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	s := getSession()
	gwClient := getGateway()
	issueCache = cache.New(gwClient, cache.WithLogger(logger))
	pipe = pipeline.New(gwClient, issueCache, pipeline.WithLogger(logger))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	updates, unsubscribe := issueCache.Subscribe()
	defer unsubscribe()

	interval := viper.GetDuration("poll_interval")
	go issueCache.Run(ctx, interval)

	id, _ := s.Identity()
	model := tui.New(ctx, tui.Config{
		Cache:    issueCache,
		Pipeline: pipe,
		Team:     s,
		Updates:  updates,
		Interval: interval,
		Username: id.Username,
		Logger:   logger,
	})

	logger.Info("board opened", "store", gwClient.BaseURL(), "interval", interval)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("board: %w", err)
	}
	return nil
}

// boardShowRun prints the lanes once.
func boardShowRun(ctx context.Context) error {
	snap, err := loadBoard(ctx)
	if err != nil {
		return err
	}

	b := board.Partition(snap.Issues)
	if err := ui.Board(b); err != nil {
		return err
	}
	fmt.Fprintln(ui.Out)
	ui.VerboseLog("%d issues, fetched %s", b.Total(), humanize.Time(snap.FetchedAt))
	return nil
}
