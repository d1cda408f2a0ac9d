package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/teamboard/internal/api"
	"github.com/joescharf/teamboard/internal/daemon"
	"github.com/joescharf/teamboard/internal/store"
)

const (
	shutdownTimeout = 5 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local issue store",
	Long: `Run a local issue store that speaks the same API as the team server.

Useful for trying tb out and for development. By default it listens on
port 8000 and keeps its data in ~/.config/tb/tb.db; set serve.db_path to
":memory:" to start empty every time.

'tb serve' runs in the foreground. Use 'tb serve start' to run it in the
background and 'tb serve stop' to stop it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the issue store in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background issue store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background issue store is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8000, "port to listen on")
	serveCmd.PersistentFlags().String("db", "", "SQLite database path (\":memory:\" for a throwaway store)")
	_ = viper.BindPFlag("serve.port", serveCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("serve.db_path", serveCmd.PersistentFlags().Lookup("db"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file tracking the background server.
func pidFile() *daemon.PIDFile {
	dir, _ := configDirFunc()
	return daemon.NewPIDFile(filepath.Join(dir, "tb-serve.pid"))
}

// serveLogPath returns where the background server writes its log.
func serveLogPath() string {
	if p := viper.GetString("serve.log_file"); p != "" {
		return p
	}
	dir, _ := configDirFunc()
	return filepath.Join(dir, "tb-serve.log")
}

// openServeStore opens and migrates the store at serve.db_path.
func openServeStore(ctx context.Context) (*store.SQLiteStore, error) {
	dbPath := viper.GetString("serve.db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// serveRun runs the store in the foreground until interrupted.
func serveRun(ctx context.Context) error {
	pf := pidFile()
	if err := pf.Acquire(os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = pf.Release(os.Getpid()) }()

	s, err := openServeStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	addr := fmt.Sprintf(":%d", viper.GetInt("serve.port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(s, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.Info("issue store listening", "addr", ln.Addr().String(), "db", viper.GetString("serve.db_path"))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveStartRun re-executes tb serve detached, logging to serveLogPath.
func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	args := []string{"serve",
		"--port", strconv.Itoa(viper.GetInt("serve.port")),
		"--db", viper.GetString("serve.db_path"),
	}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v in the background", exe, args)
		return nil
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Issue store started (PID %d) on port %d", child.Process.Pid, viper.GetInt("serve.port"))
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	if dryRun {
		ui.DryRunMsg("Would stop the background issue store")
		return nil
	}
	pid, err := pidFile().Stop(sigTERM(), sigKILL(), stopTimeout)
	if err != nil {
		return err
	}
	ui.Success("Issue store stopped (PID %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Issue store is not running")
		return nil
	}
	ui.Success("Issue store is running (PID %d) on port %d", pid, viper.GetInt("serve.port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}
