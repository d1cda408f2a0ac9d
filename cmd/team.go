package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage team invitations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamListRun(cmd.Context())
	},
}

var teamListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the invitations you have sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamListRun(cmd.Context())
	},
}

var teamInviteCmd = &cobra.Command{
	Use:   "invite <email>",
	Short: "Invite someone to your team",
	Long: `Invite someone to your team by email.

When they register with that address they join your team.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamInviteRun(cmd.Context(), args[0])
	},
}

func init() {
	teamCmd.AddCommand(teamListCmd)
	teamCmd.AddCommand(teamInviteCmd)
	rootCmd.AddCommand(teamCmd)
}

func teamListRun(ctx context.Context) error {
	if err := requireLogin(); err != nil {
		return err
	}

	members, err := getGateway().Team(ctx)
	if err != nil {
		return explain(err)
	}
	if len(members) == 0 {
		ui.Info("No invitations sent. Use 'tb team invite <email>' to add teammates.")
		return nil
	}

	table := ui.Table([]string{"Email", "Status", "User"})
	for _, m := range members {
		user := m.UserID.String()
		if user == "" {
			user = "-"
		}
		_ = table.Append([]string{m.Email, strings.ToLower(m.Status), user})
	}
	return table.Render()
}

func teamInviteRun(ctx context.Context, email string) error {
	if err := requireLogin(); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email %q", email)
	}

	if dryRun {
		ui.DryRunMsg("Would invite %s", email)
		return nil
	}

	if _, err := getGateway().Invite(ctx, email); err != nil {
		return explain(err)
	}
	ui.Success("Invited %s", email)
	return nil
}
