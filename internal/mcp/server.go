package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/pipeline"
)

// Cache is the part of the issue cache the tools read.
type Cache interface {
	Current() cache.Snapshot
	Refresh(ctx context.Context) (cache.Snapshot, error)
}

// Submitter performs mutations; *pipeline.Pipeline satisfies it.
type Submitter interface {
	Submit(ctx context.Context, m pipeline.Mutation) (*pipeline.Result, error)
}

// TeamSource supplies the team new issues are filed under.
type TeamSource interface {
	TeamID() (models.ID, bool)
}

// Server exposes the board as MCP tools. Every write goes through the
// mutation pipeline.
type Server struct {
	cache    Cache
	pipeline Submitter
	team     TeamSource
	version  string
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(c Cache, p Submitter, team TeamSource, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{cache: c, pipeline: p, team: team, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tb", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.boardTool())
	srv.AddTool(s.refreshTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.moveIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// JSON shapes
// ---------------------------------------------------------------------------

type issueOut struct {
	ID          models.ID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Tags        []string   `json:"tags"`
	AssignedTo  *models.ID `json:"assigned_to"`
}

func toIssueOut(i models.Issue) issueOut {
	tags := i.TagList()
	if tags == nil {
		tags = []string{}
	}
	return issueOut{
		ID:          i.ID,
		Title:       i.Title,
		Description: i.Description,
		Status:      string(i.Status),
		Priority:    string(i.Priority),
		Tags:        tags,
		AssignedTo:  i.AssignedTo,
	}
}

type laneOut struct {
	Status string     `json:"status"`
	Label  string     `json:"label"`
	Issues []issueOut `json:"issues"`
}

type boardOut struct {
	Lanes     []laneOut `json:"lanes"`
	Total     int       `json:"total"`
	FetchedAt string    `json:"fetched_at,omitempty"`
	Stale     bool      `json:"stale"`
	LastError string    `json:"last_error,omitempty"`
}

func toBoardOut(snap cache.Snapshot) boardOut {
	b := board.Partition(snap.Issues)
	out := boardOut{Total: b.Total(), Stale: snap.Stale()}
	if snap.Loaded {
		out.FetchedAt = snap.FetchedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	if snap.LastErr != nil {
		out.LastError = snap.LastErr.Error()
	}
	for _, lane := range b.Lanes {
		lo := laneOut{Status: string(lane.Status), Label: lane.Label(), Issues: []issueOut{}}
		for _, issue := range lane.Issues {
			lo.Issues = append(lo.Issues, toIssueOut(issue))
		}
		out.Lanes = append(out.Lanes, lo)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// mutationError renders a failed submit as a tool error the caller can act on.
func mutationError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		return mcp.NewToolResultError(fmt.Sprintf("%s: issue busy, retry shortly: %v", action, err))
	case errors.Is(err, gateway.ErrUnauthorized):
		return mcp.NewToolResultError(fmt.Sprintf("%s: not authenticated, run `tb login`: %v", action, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
}

func mutationResult(res *pipeline.Result) (*mcp.CallToolResult, error) {
	out := map[string]any{"kind": res.Kind.String()}
	if res.Issue != nil {
		out["issue"] = toIssueOut(*res.Issue)
	}
	if !res.Deleted.IsZero() {
		out["deleted"] = res.Deleted
	}
	if res.RefreshErr != nil {
		out["refresh_error"] = res.RefreshErr.Error()
	}
	return jsonResult(out)
}

// currentIssue looks id up in the cache, refreshing once if it is missing.
func (s *Server) currentIssue(ctx context.Context, id models.ID) (models.Issue, bool) {
	if issue, ok := s.cache.Current().Find(id); ok {
		return issue, true
	}
	snap, _ := s.cache.Refresh(ctx)
	return snap.Find(id)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tb_board
func (s *Server) boardTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tb_board",
		mcp.WithDescription("Show the team board: issues grouped into Open, In Progress and Closed lanes. Returns JSON with lanes, total, fetched_at and stale."),
		mcp.WithBoolean("refresh", mcp.Description("Fetch from the server before answering (default: only when nothing is loaded yet)")),
	)
	return tool, s.handleBoard
}

func (s *Server) handleBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.cache.Current()
	if request.GetBool("refresh", false) || !snap.Loaded {
		snap, _ = s.cache.Refresh(ctx)
	}
	if !snap.Loaded {
		return mcp.NewToolResultError(fmt.Sprintf("board not loaded: %v", snap.LastErr)), nil
	}
	return jsonResult(toBoardOut(snap))
}

// tb_refresh
func (s *Server) refreshTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tb_refresh",
		mcp.WithDescription("Re-fetch the issue list from the server. Returns per-lane counts."),
	)
	return tool, s.handleRefresh
}

func (s *Server) handleRefresh(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.cache.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed, %d cached issues kept: %v", len(snap.Issues), err)), nil
	}
	counts := board.Partition(snap.Issues).Counts()
	out := map[string]any{"total": len(snap.Issues)}
	for _, st := range models.Statuses {
		out[string(st)] = counts[st]
	}
	return jsonResult(out)
}

// tb_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tb_create_issue",
		mcp.WithDescription("Create a new issue on the team board. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Markdown description")),
		mcp.WithString("status", mcp.Description("Initial status: open, in_progress, closed (default: open)")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high (default: medium)")),
		mcp.WithString("tags", mcp.Description("Comma separated tags")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	f := models.DefaultFields()
	f.Title = title
	f.Description = request.GetString("description", "")
	f.Tags = request.GetString("tags", "")
	if v := request.GetString("status", ""); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if v := request.GetString("priority", ""); v != "" {
		if f.Priority, err = models.ParsePriority(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if team, ok := s.team.TeamID(); ok {
		f.TeamID = team
	}

	res, err := s.pipeline.Submit(ctx, pipeline.Create(f))
	if err != nil {
		return mutationError("create issue", err), nil
	}
	return mutationResult(res)
}

// tb_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tb_update_issue",
		mcp.WithDescription("Update an existing issue. Fields not provided keep their current values. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status: open, in_progress, closed")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high")),
		mcp.WithString("tags", mcp.Description("New comma separated tags")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, ok := s.currentIssue(ctx, models.ID(issueID))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("issue not found: %s", issueID)), nil
	}

	f := issue.Fields
	updated := false
	if v := request.GetString("title", ""); v != "" {
		f.Title = v
		updated = true
	}
	if v := request.GetString("description", ""); v != "" {
		f.Description = v
		updated = true
	}
	if v := request.GetString("tags", ""); v != "" {
		f.Tags = v
		updated = true
	}
	if v := request.GetString("status", ""); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		updated = true
	}
	if v := request.GetString("priority", ""); v != "" {
		if f.Priority, err = models.ParsePriority(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		updated = true
	}
	if !updated {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, description, status, priority, tags"), nil
	}
	if team, ok := s.team.TeamID(); ok {
		f.TeamID = team
	}

	res, err := s.pipeline.Submit(ctx, pipeline.Update(issue.ID, f))
	if err != nil {
		return mutationError("update issue", err), nil
	}
	return mutationResult(res)
}

// tb_move_issue
func (s *Server) moveIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tb_move_issue",
		mcp.WithDescription("Move an issue to another lane by changing only its status."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status: open, in_progress, closed")),
	)
	return tool, s.handleMoveIssue
}

func (s *Server) handleMoveIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	statusArg, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}
	status, err := models.ParseStatus(statusArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, ok := s.currentIssue(ctx, models.ID(issueID))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("issue not found: %s", issueID)), nil
	}
	if issue.Status == status {
		return jsonResult(map[string]any{"kind": "noop", "issue": toIssueOut(issue)})
	}

	res, err := s.pipeline.Submit(ctx, pipeline.Move(issue.ID, status))
	if err != nil {
		return mutationError("move issue", err), nil
	}
	return mutationResult(res)
}

// tb_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tb_delete_issue",
		mcp.WithDescription("Delete an issue. Only the issue's creator may delete it."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	res, err := s.pipeline.Submit(ctx, pipeline.Delete(models.ID(issueID)))
	if err != nil {
		return mutationError("delete issue", err), nil
	}
	return mutationResult(res)
}
