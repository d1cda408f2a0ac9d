package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/drag"
	"github.com/joescharf/teamboard/internal/form"
	"github.com/joescharf/teamboard/internal/models"
)

const minLaneWidth = 24

// View renders the board, with the dialog or confirmation on top.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch {
	case m.confirming():
		body = m.renderConfirm()
	case m.dialog.Open():
		body = m.renderDialog()
	default:
		body = m.renderBoard()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatusBar(),
		m.renderHelp(),
	)
}

func (m *Model) confirming() bool {
	_, ok := m.dialog.Confirming()
	return ok
}

func (m *Model) renderHeader() string {
	title := HeaderStyle.Render("TEAMBOARD")
	if m.username == "" {
		return title
	}
	return title + CardMetaStyle.Render("  "+m.username)
}

func (m *Model) laneWidth() int {
	w := (m.width - 2) / len(m.board.Lanes)
	if w < minLaneWidth {
		w = minLaneWidth
	}
	return w
}

func (m *Model) renderBoard() string {
	if !m.snap.Loaded && m.snap.LastErr == nil {
		return CardMetaStyle.Render("  Loading issues...")
	}

	width := m.laneWidth()
	hover, dragging := m.drag.Hovered()
	draggedID, _, _ := m.drag.Dragging()

	cols := make([]string, 0, len(m.board.Lanes))
	for i, lane := range m.board.Lanes {
		style := LaneStyle
		if dragging && lane.Status == hover {
			style = LaneDropStyle
		}
		cols = append(cols, style.Width(width-2).Render(m.renderLane(i, lane, draggedID, width-4)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m *Model) renderLane(idx int, lane board.Lane, dragged models.ID, width int) string {
	heading := LaneTitleStyle.Foreground(laneColor(lane.Status)).
		Render(fmt.Sprintf("%s (%d)", lane.Label(), len(lane.Issues)))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	if len(lane.Issues) == 0 {
		b.WriteString(CardMetaStyle.Render("no issues"))
		return b.String()
	}

	for row, issue := range lane.Issues {
		style := CardStyle
		switch {
		case issue.ID == dragged:
			style = CardDraggingStyle
		case m.drag.State() == drag.Idle && idx == m.lane && row == m.row:
			style = CardSelectedStyle
		}
		b.WriteString(style.Width(width).Render(m.renderCard(issue, width-2)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderCard(issue models.Issue, width int) string {
	title := truncate(issue.Title, width)
	if m.pipeline.InFlight(issue.ID) {
		title = truncate("… "+issue.Title, width)
	}

	meta := lipgloss.NewStyle().Foreground(priorityColor(issue.Priority)).Render(string(issue.Priority))
	if tags := issue.TagList(); len(tags) > 0 {
		meta += CardMetaStyle.Render(" · " + truncate(strings.Join(tags, ", "), width-len(issue.Priority)-3))
	}
	return title + "\n" + meta
}

func (m *Model) renderDialog() string {
	mode := m.dialog.Mode()
	var b strings.Builder
	heading := mode.Title()
	if mode == form.ModeEdit {
		heading += " #" + m.dialog.Target().String()
	}
	b.WriteString(DialogTitleStyle.Render(heading))
	b.WriteString("\n")

	f := m.dialog.Fields()
	for i := field(0); i < fieldCount; i++ {
		label := FieldLabelStyle
		if i == m.focus {
			label = FieldFocusedLabelStyle
		}
		var value string
		switch i {
		case fieldTitle:
			value = m.title.View()
		case fieldDescription:
			value = m.description.View()
		case fieldStatus:
			value = "‹ " + f.Status.Label() + " ›"
		case fieldPriority:
			value = "‹ " + string(f.Priority) + " ›"
		case fieldTags:
			value = m.tags.View()
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, label.Render(fieldLabels[i]), value))
		b.WriteString("\n")
	}

	switch {
	case m.dialog.Submitting():
		b.WriteString(CardMetaStyle.Render("Saving..."))
	case m.dialog.Err() != nil:
		b.WriteString(ErrorStyle.Render(m.dialog.Err().Error()))
	}
	return DialogStyle.Render(b.String())
}

func (m *Model) renderConfirm() string {
	id, _ := m.dialog.Confirming()
	what := "#" + id.String()
	if issue, ok := m.snap.Find(id); ok {
		what = fmt.Sprintf("#%s %q", id, truncate(issue.Title, 40))
	}

	var b strings.Builder
	b.WriteString(DialogTitleStyle.Render("Delete Issue"))
	b.WriteString("\n")
	b.WriteString("Delete " + what + "? This cannot be undone.\n")
	switch {
	case m.dialog.Deleting():
		b.WriteString(CardMetaStyle.Render("Deleting..."))
	case m.dialog.DeleteErr() != nil:
		b.WriteString(ErrorStyle.Render(m.dialog.DeleteErr().Error()))
	}
	return DialogStyle.Render(b.String())
}

// renderStatusBar shows the issue count, freshness and the last notice.
// A failed refresh adds an indicator; the lanes keep the last good data.
func (m *Model) renderStatusBar() string {
	parts := []string{english.Plural(m.board.Total(), "issue", "")}
	switch {
	case m.snap.Loaded:
		parts = append(parts, "refreshed "+humanize.RelTime(m.snap.FetchedAt, m.now(), "ago", "from now"))
	case m.snap.LastErr == nil:
		parts = append(parts, "loading")
	}
	line := StatusBarStyle.Render(strings.Join(parts, " · "))

	if m.snap.LastErr != nil {
		line += ErrorStyle.Render("⚠ refresh failed: " + m.snap.LastErr.Error())
	}
	if m.notice != "" {
		style := NoticeStyle
		if m.noticeErr {
			style = ErrorStyle
		}
		line += "  " + style.Render(m.notice)
	}
	return line
}

func (m *Model) renderHelp() string {
	switch {
	case m.confirming():
		return m.help.View(m.confirmKeys)
	case m.dialog.Open():
		return m.help.View(m.dialogKeys)
	}
	return m.help.View(m.keys)
}

func truncate(s string, max int) string {
	if max <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
