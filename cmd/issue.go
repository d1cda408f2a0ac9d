package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/pipeline"
)

var (
	issueTitle    string
	issueDesc     string
	issueStatus   string
	issuePriority string
	issueTags     string
	issueYes      bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage your team's issues",
	Long:  "Create, edit, move and delete issues without opening the board.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context())
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Edit an issue",
	Long: `Edit an issue. Only the flags you pass change; every other field
keeps its current value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd, models.ID(args[0]))
	},
}

var issueMoveCmd = &cobra.Command{
	Use:   "move <issue-id> <status>",
	Short: "Move an issue to another lane (open, in_progress, closed)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueMoveRun(cmd.Context(), models.ID(args[0]), args[1])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue you created",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), models.ID(args[0]))
	},
}

func init() {
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, in_progress, closed")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority: low, medium, high")

	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Status: open, in_progress, closed (default open)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high (default medium)")
	issueAddCmd.Flags().StringVar(&issueTags, "tags", "", "Comma-separated tags")
	_ = issueAddCmd.MarkFlagRequired("title")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueTags, "tags", "", "New comma-separated tags")

	issueDeleteCmd.Flags().BoolVarP(&issueYes, "yes", "y", false, "Skip the confirmation prompt")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueMoveCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

// loadBoard refreshes the cache. A failed refresh is returned as is.
func loadBoard(ctx context.Context) (cache.Snapshot, error) {
	if err := requireLogin(); err != nil {
		return cache.Snapshot{}, err
	}
	snap, err := getCache().Refresh(ctx)
	if err != nil {
		return snap, explain(err)
	}
	return snap, nil
}

// findIssue resolves id against a fresh snapshot.
func findIssue(ctx context.Context, id models.ID) (models.Issue, error) {
	snap, err := loadBoard(ctx)
	if err != nil {
		return models.Issue{}, err
	}
	issue, ok := snap.Find(id)
	if !ok {
		return models.Issue{}, fmt.Errorf("issue %s: %w", id, gateway.ErrNotFound)
	}
	return issue, nil
}

// reportResult prints the outcome of a successful mutation.
func reportResult(verb string, res *pipeline.Result) {
	switch {
	case res.Issue != nil:
		ui.Success("%s issue %s: %s [%s]", verb, res.Issue.ID, res.Issue.Title, res.Issue.Status.Label())
	case !res.Deleted.IsZero():
		ui.Success("%s issue %s", verb, res.Deleted)
	}
	if res.RefreshErr != nil {
		ui.Warning("Saved, but the board could not be refreshed: %v", res.RefreshErr)
	}
}

func issueListRun(ctx context.Context) error {
	snap, err := loadBoard(ctx)
	if err != nil {
		return err
	}

	var status models.Status
	if issueStatus != "" {
		if status, err = models.ParseStatus(issueStatus); err != nil {
			return err
		}
	}
	var priority models.Priority
	if issuePriority != "" {
		if priority, err = models.ParsePriority(issuePriority); err != nil {
			return err
		}
	}

	var issues []models.Issue
	for _, issue := range snap.Issues {
		if status != "" && issue.Status != status {
			continue
		}
		if priority != "" && issue.Priority != priority {
			continue
		}
		issues = append(issues, issue)
	}

	if len(issues) == 0 {
		ui.Info("No issues found")
		return nil
	}
	return ui.Issues(issues)
}

func issueAddRun(ctx context.Context) error {
	if err := requireLogin(); err != nil {
		return err
	}

	f := models.DefaultFields()
	f.Title = issueTitle
	f.Description = issueDesc
	f.Tags = issueTags
	var err error
	if issueStatus != "" {
		if f.Status, err = models.ParseStatus(issueStatus); err != nil {
			return err
		}
	}
	if issuePriority != "" {
		if f.Priority, err = models.ParsePriority(issuePriority); err != nil {
			return err
		}
	}
	if team, ok := getSession().TeamID(); ok {
		f.TeamID = team
	}
	if err := f.Validate(); err != nil {
		return explain(err)
	}

	if dryRun {
		ui.DryRunMsg("Would create issue %q [%s, %s]", f.Title, f.Status.Label(), f.Priority)
		return nil
	}

	res, err := getPipeline().Submit(ctx, pipeline.Create(f))
	if err != nil {
		return explain(err)
	}
	reportResult("Created", res)
	return nil
}

func issueUpdateRun(cmd *cobra.Command, id models.ID) error {
	ctx := cmd.Context()
	issue, err := findIssue(ctx, id)
	if err != nil {
		return err
	}

	f := issue.Fields
	flags := cmd.Flags()
	changed := false
	if flags.Changed("title") {
		f.Title = issueTitle
		changed = true
	}
	if flags.Changed("desc") {
		f.Description = issueDesc
		changed = true
	}
	if flags.Changed("tags") {
		f.Tags = issueTags
		changed = true
	}
	if flags.Changed("status") {
		if f.Status, err = models.ParseStatus(issueStatus); err != nil {
			return err
		}
		changed = true
	}
	if flags.Changed("priority") {
		if f.Priority, err = models.ParsePriority(issuePriority); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return fmt.Errorf("nothing to update: pass at least one of --title, --desc, --status, --priority, --tags")
	}
	if err := f.Validate(); err != nil {
		return explain(err)
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s: %q [%s, %s]", id, f.Title, f.Status.Label(), f.Priority)
		return nil
	}

	res, err := getPipeline().Submit(ctx, pipeline.Update(id, f))
	if err != nil {
		return explain(err)
	}
	reportResult("Updated", res)
	return nil
}

func issueMoveRun(ctx context.Context, id models.ID, to string) error {
	status, err := models.ParseStatus(to)
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, id)
	if err != nil {
		return err
	}
	if issue.Status == status {
		ui.Info("Issue %s is already in %s", id, status.Label())
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would move issue %s from %s to %s", id, issue.Status.Label(), status.Label())
		return nil
	}

	res, err := getPipeline().Submit(ctx, pipeline.Move(id, status))
	if err != nil {
		return explain(err)
	}
	reportResult("Moved", res)
	return nil
}

func issueDeleteRun(ctx context.Context, id models.ID) error {
	issue, err := findIssue(ctx, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", id, issue.Title)
		return nil
	}

	if !issueYes && !confirm(fmt.Sprintf("Delete #%s %q? This cannot be undone. [y/N] ", id, issue.Title)) {
		ui.Info("Cancelled")
		return nil
	}

	res, err := getPipeline().Submit(ctx, pipeline.Delete(id))
	if err != nil {
		return explain(err)
	}
	reportResult("Deleted", res)
	return nil
}

// confirm asks a yes/no question on stdin. Anything but y/yes is a no.
func confirm(prompt string) bool {
	fmt.Fprint(ui.Out, prompt)
	line, _ := bufio.NewReader(stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
