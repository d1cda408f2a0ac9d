package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/models"
)

// UI provides colored output and respects verbose/dry-run modes.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("\u2713")
	warningPrefix = color.New(color.FgHiYellow).Sprint("\u26a0")
	errorPrefix   = color.New(color.FgHiRed).Sprint("\u2717")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  \u2192")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// StatusColor returns the lane label of status, colored by lane.
func StatusColor(status models.Status) string {
	switch status {
	case models.StatusOpen:
		return green(status.Label())
	case models.StatusInProgress:
		return yellow(status.Label())
	case models.StatusClosed:
		return cyan(status.Label())
	default:
		return string(status)
	}
}

// PriorityColor returns priority colored by urgency.
func PriorityColor(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return red(string(p))
	case models.PriorityMedium:
		return yellow(string(p))
	default:
		return string(p)
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Issues prints issues as a table in the order given.
func (u *UI) Issues(issues []models.Issue) error {
	table := u.Table([]string{"ID", "Status", "Priority", "Title", "Tags"})
	for _, issue := range issues {
		if err := table.Append([]string{
			issue.ID.String(),
			StatusColor(issue.Status),
			PriorityColor(issue.Priority),
			issue.Title,
			issue.Tags,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Board prints each lane as a heading followed by its cards.
func (u *UI) Board(b board.Board) error {
	for i, lane := range b.Lanes {
		if i > 0 {
			fmt.Fprintln(u.Out)
		}
		fmt.Fprintf(u.Out, "%s (%d)\n", StatusColor(lane.Status), len(lane.Issues))
		if len(lane.Issues) == 0 {
			fmt.Fprintln(u.Out, "  (empty)")
			continue
		}
		table := u.Table([]string{"ID", "Priority", "Title", "Tags"})
		for _, issue := range lane.Issues {
			if err := table.Append([]string{
				issue.ID.String(),
				PriorityColor(issue.Priority),
				issue.Title,
				issue.Tags,
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	return nil
}
