package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/mcp"
	"github.com/joescharf/teamboard/internal/pipeline"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents read the board and file, edit, move and delete
issues as the signed-in user. Configure your agent with:

  {
    "mcpServers": {
      "tb": { "command": "tb", "args": ["mcp"] }
    }
  }

Available tools: tb_board, tb_refresh, tb_create_issue, tb_update_issue,
tb_move_issue, tb_delete_issue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	if err := requireLogin(); err != nil {
		return err
	}

	// stdout carries the protocol; keep library logs off it.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.New(slog.NewTextHandler(ui.ErrOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	issueCache = cache.New(getGateway(), cache.WithLogger(logger))
	pipe = pipeline.New(getGateway(), issueCache, pipeline.WithLogger(logger))

	srv := mcp.NewServer(issueCache, pipe, getSession(), buildVersion)
	return srv.ServeStdio(ctx)
}
