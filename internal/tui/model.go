// Package tui is the interactive board. All view state lives inside the
// bubbletea update loop; network calls run in tea.Cmds and come back as
// messages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/drag"
	"github.com/joescharf/teamboard/internal/form"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/pipeline"
)

const clockInterval = time.Second

// Cache is the part of the issue cache the board reads.
type Cache interface {
	Current() cache.Snapshot
	Refresh(ctx context.Context) (cache.Snapshot, error)
}

// Pipeline is the part of the mutation pipeline the board writes through.
type Pipeline interface {
	Submit(ctx context.Context, m pipeline.Mutation) (*pipeline.Result, error)
	InFlight(id models.ID) bool
}

// Config wires the board to its collaborators.
type Config struct {
	Cache    Cache
	Pipeline Pipeline
	Team     form.TeamSource
	// Updates, when set, delivers snapshots published by a background
	// cache.Run. Without it the model polls on its own every Interval.
	Updates  <-chan cache.Snapshot
	Interval time.Duration
	Username string
	Logger   *slog.Logger
	Now      func() time.Time
}

type field int

const (
	fieldTitle field = iota
	fieldDescription
	fieldStatus
	fieldPriority
	fieldTags
	fieldCount
)

var fieldLabels = [fieldCount]string{"Title", "Description", "Status", "Priority", "Tags"}

// snapshotMsg carries a cache snapshot into the loop.
type snapshotMsg struct{ snap cache.Snapshot }

// pollMsg fires a self-driven refresh.
type pollMsg time.Time

// clockMsg re-renders the "refreshed ... ago" line.
type clockMsg time.Time

// moveDoneMsg reports a drag-initiated move.
type moveDoneMsg struct {
	target models.ID
	res    *pipeline.Result
	err    error
}

// formDoneMsg reports a create/edit submission.
type formDoneMsg struct {
	token form.Token
	kind  pipeline.Kind
	res   *pipeline.Result
	err   error
}

// deleteDoneMsg reports a confirmed delete.
type deleteDoneMsg struct {
	token form.Token
	res   *pipeline.Result
	err   error
}

// Model is the bubbletea model for the board.
type Model struct {
	ctx      context.Context
	cache    Cache
	pipeline Pipeline
	updates  <-chan cache.Snapshot
	interval time.Duration
	username string
	logger   *slog.Logger
	now      func() time.Time

	width, height int

	// Data
	snap  cache.Snapshot
	board board.Board

	// Cursor
	lane int
	row  int

	drag   *drag.Controller
	dialog *form.Dialog

	// Dialog inputs
	focus       field
	title       textinput.Model
	description textarea.Model
	tags        textinput.Model

	// UI state
	keys        KeyMap
	dialogKeys  DialogKeyMap
	confirmKeys ConfirmKeyMap
	help        help.Model
	showHelp    bool
	notice      string
	noticeErr   bool
	quitting    bool
}

// New creates the board model. ctx bounds every request the board issues.
func New(ctx context.Context, cfg Config) *Model {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = cache.DefaultInterval
	}

	title := textinput.New()
	title.Placeholder = "Short summary"
	title.Prompt = ""
	title.CharLimit = 200
	title.Width = 48

	tags := textinput.New()
	tags.Placeholder = "comma, separated"
	tags.Prompt = ""
	tags.Width = 48

	desc := textarea.New()
	desc.Placeholder = "Markdown description..."
	desc.ShowLineNumbers = false
	desc.SetWidth(48)
	desc.SetHeight(4)

	h := help.New()
	h.ShowAll = false

	m := &Model{
		ctx:         ctx,
		cache:       cfg.Cache,
		pipeline:    cfg.Pipeline,
		updates:     cfg.Updates,
		interval:    cfg.Interval,
		username:    cfg.Username,
		logger:      cfg.Logger,
		now:         cfg.Now,
		drag:        drag.New(),
		dialog:      form.New(cfg.Pipeline, cfg.Team),
		title:       title,
		description: desc,
		tags:        tags,
		keys:        DefaultKeyMap(),
		dialogKeys:  DefaultDialogKeyMap(),
		confirmKeys: DefaultConfirmKeyMap(),
		help:        h,
	}
	m.applySnapshot(cfg.Cache.Current())
	return m
}

// Init starts the refresh loop.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{clockCmd()}
	if m.updates != nil {
		cmds = append(cmds, waitForSnapshot(m.updates))
	} else {
		cmds = append(cmds, m.refreshCmd(), pollCmd(m.interval))
	}
	return tea.Batch(cmds...)
}

func pollCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func clockCmd() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg { return clockMsg(t) })
}

// waitForSnapshot blocks on the subscription and hands the next snapshot
// to the loop.
func waitForSnapshot(ch <-chan cache.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{snap: snap}
	}
}

func (m *Model) refreshCmd() tea.Cmd {
	c, ctx := m.cache, m.ctx
	return func() tea.Msg {
		snap, _ := c.Refresh(ctx)
		return snapshotMsg{snap: snap}
	}
}

func (m *Model) submitMoveCmd(mut pipeline.Mutation) tea.Cmd {
	p, ctx := m.pipeline, m.ctx
	return func() tea.Msg {
		res, err := p.Submit(ctx, mut)
		return moveDoneMsg{target: mut.Target, res: res, err: err}
	}
}

func (m *Model) submitFormCmd(tok form.Token, mut pipeline.Mutation) tea.Cmd {
	p, ctx := m.pipeline, m.ctx
	return func() tea.Msg {
		res, err := p.Submit(ctx, mut)
		return formDoneMsg{token: tok, kind: mut.Kind, res: res, err: err}
	}
}

func (m *Model) submitDeleteCmd(tok form.Token, mut pipeline.Mutation) tea.Cmd {
	p, ctx := m.pipeline, m.ctx
	return func() tea.Msg {
		res, err := p.Submit(ctx, mut)
		return deleteDoneMsg{token: tok, res: res, err: err}
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.applySnapshot(msg.snap)
		if m.updates != nil {
			return m, waitForSnapshot(m.updates)
		}
		return m, nil

	case pollMsg:
		return m, tea.Batch(m.refreshCmd(), pollCmd(m.interval))

	case clockMsg:
		return m, clockCmd()

	case moveDoneMsg:
		m.handleMutationDone(pipeline.KindMove, msg.res, msg.err)
		return m, nil

	case formDoneMsg:
		m.dialog.Complete(msg.token, msg.res, msg.err)
		m.handleMutationDone(msg.kind, msg.res, msg.err)
		if !m.dialog.Open() {
			m.blurInputs()
		}
		return m, nil

	case deleteDoneMsg:
		m.dialog.CompleteDelete(msg.token, msg.res, msg.err)
		m.handleMutationDone(pipeline.KindDelete, msg.res, msg.err)
		if !m.dialog.Open() {
			m.blurInputs()
		}
		return m, nil

	case tea.KeyMsg:
		if _, ok := m.dialog.Confirming(); ok {
			return m.updateConfirm(msg)
		}
		if m.dialog.Open() {
			return m.updateDialog(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

// applySnapshot installs snap unless a newer one was already applied.
func (m *Model) applySnapshot(snap cache.Snapshot) {
	if snap.Version < m.snap.Version {
		return
	}
	m.snap = snap
	m.board = board.Partition(snap.Issues)
	m.clampCursor()
}

func (m *Model) handleMutationDone(kind pipeline.Kind, res *pipeline.Result, err error) {
	if err != nil {
		m.setError(fmt.Sprintf("%s failed", kind), err)
		return
	}
	m.applySnapshot(res.Snapshot)
	if res.RefreshErr != nil {
		m.setError(fmt.Sprintf("%s saved but refresh failed", kind), res.RefreshErr)
		return
	}
	switch kind {
	case pipeline.KindCreate:
		m.setNotice("issue created")
	case pipeline.KindUpdate:
		m.setNotice("issue saved")
	case pipeline.KindMove:
		if res.Issue != nil {
			m.setNotice("moved to " + res.Issue.Status.Label())
		}
	case pipeline.KindDelete:
		m.setNotice("issue deleted")
	}
}

func (m *Model) setNotice(s string) {
	m.notice = s
	m.noticeErr = false
}

func (m *Model) setError(prefix string, err error) {
	m.noticeErr = true
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		m.notice = prefix + ": session expired, run `tb login`"
	case errors.Is(err, pipeline.ErrBusy):
		m.notice = prefix + ": " + err.Error()
	default:
		m.notice = fmt.Sprintf("%s: %v", prefix, err)
	}
	m.logger.Warn(prefix, "error", err)
}

func (m *Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Left):
		m.moveLane(-1)

	case key.Matches(msg, m.keys.Right):
		m.moveLane(1)

	case key.Matches(msg, m.keys.Up):
		if m.drag.State() == drag.Idle && m.row > 0 {
			m.row--
		}

	case key.Matches(msg, m.keys.Down):
		if m.drag.State() == drag.Idle && m.row < len(m.board.Lanes[m.lane].Issues)-1 {
			m.row++
		}

	case key.Matches(msg, m.keys.Pick):
		if m.drag.State() == drag.Dragging {
			return m, m.drop()
		}
		m.pickUp()

	case key.Matches(msg, m.keys.Drop):
		if m.drag.State() == drag.Dragging {
			return m, m.drop()
		}
		if issue, ok := m.selected(); ok {
			m.openEdit(issue)
		}

	case key.Matches(msg, m.keys.Cancel):
		if id, _, ok := m.drag.Dragging(); ok {
			_ = m.drag.Cancel()
			m.restoreCursor(id)
			m.setNotice("move cancelled")
		}

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.New):
		if m.drag.State() == drag.Idle {
			m.dialog.OpenCreate()
			m.loadInputs()
			return m, m.focusField(fieldTitle)
		}

	case key.Matches(msg, m.keys.Edit):
		if issue, ok := m.selected(); ok && m.drag.State() == drag.Idle {
			m.openEdit(issue)
			return m, m.focusField(fieldTitle)
		}

	case key.Matches(msg, m.keys.Delete):
		if issue, ok := m.selected(); ok && m.drag.State() == drag.Idle {
			m.dialog.RequestDelete(issue.ID)
		}
	}
	return m, nil
}

func (m *Model) moveLane(delta int) {
	next := m.lane + delta
	if next < 0 || next >= len(m.board.Lanes) {
		return
	}
	m.lane = next
	if m.drag.State() == drag.Dragging {
		_ = m.drag.Hover(m.board.Lanes[next].Status)
		return
	}
	m.clampCursor()
}

func (m *Model) pickUp() {
	issue, ok := m.selected()
	if !ok {
		return
	}
	if m.pipeline.InFlight(issue.ID) {
		m.setError("move", pipeline.ErrBusy)
		return
	}
	if err := m.drag.Begin(issue); err != nil {
		m.setError("move", err)
		return
	}
	m.notice = ""
}

// drop releases the dragged card on the hovered lane. A drop on the origin
// lane returns no command.
func (m *Model) drop() tea.Cmd {
	id, _, _ := m.drag.Dragging()
	mut, err := m.drag.DropHovered()
	m.restoreCursor(id)
	if err != nil {
		m.setError("move", err)
		return nil
	}
	if mut == nil {
		return nil
	}
	m.setNotice("moving...")
	return m.submitMoveCmd(*mut)
}

// restoreCursor puts the cursor back on id wherever the cache has it.
func (m *Model) restoreCursor(id models.ID) {
	if lane, row, ok := m.board.Locate(id); ok {
		m.lane = lane.Status.Index()
		m.row = row
		return
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.lane < 0 {
		m.lane = 0
	}
	if m.lane >= len(m.board.Lanes) {
		m.lane = len(m.board.Lanes) - 1
	}
	n := len(m.board.Lanes[m.lane].Issues)
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m *Model) selected() (models.Issue, bool) {
	issues := m.board.Lanes[m.lane].Issues
	if m.row < 0 || m.row >= len(issues) {
		return models.Issue{}, false
	}
	return issues[m.row], true
}

func (m *Model) openEdit(issue models.Issue) {
	m.dialog.OpenEdit(issue)
	m.loadInputs()
}

func (m *Model) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.dialogKeys.Close):
		m.dialog.Close()
		m.blurInputs()
		return m, nil

	case key.Matches(msg, m.dialogKeys.Next):
		return m, m.focusField((m.focus + 1) % fieldCount)

	case key.Matches(msg, m.dialogKeys.Prev):
		return m, m.focusField((m.focus + fieldCount - 1) % fieldCount)

	case key.Matches(msg, m.dialogKeys.Submit):
		if !m.dialog.CanSubmit() {
			return m, nil
		}
		m.syncInputs()
		tok, mut, err := m.dialog.Prepare()
		if err != nil {
			return m, nil
		}
		return m, m.submitFormCmd(tok, mut)

	case key.Matches(msg, m.dialogKeys.Delete):
		if m.dialog.Mode() == form.ModeEdit {
			m.dialog.RequestDelete(m.dialog.Target())
		}
		return m, nil

	case key.Matches(msg, m.dialogKeys.Cycle) && (m.focus == fieldStatus || m.focus == fieldPriority):
		step := 1
		if msg.String() == "left" {
			step = -1
		}
		m.cycleEnum(step)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldTitle:
		m.title, cmd = m.title.Update(msg)
	case fieldDescription:
		m.description, cmd = m.description.Update(msg)
	case fieldTags:
		m.tags, cmd = m.tags.Update(msg)
	}
	return m, cmd
}

func (m *Model) cycleEnum(step int) {
	f := m.dialog.Fields()
	switch m.focus {
	case fieldStatus:
		i := (f.Status.Index() + step + len(models.Statuses)) % len(models.Statuses)
		_ = m.dialog.SetStatus(models.Statuses[i])
	case fieldPriority:
		i := (priorityIndex(f.Priority) + step + len(models.Priorities)) % len(models.Priorities)
		_ = m.dialog.SetPriority(models.Priorities[i])
	}
}

func priorityIndex(p models.Priority) int {
	for i, v := range models.Priorities {
		if v == p {
			return i
		}
	}
	return 0
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.confirmKeys.Yes):
		tok, mut, err := m.dialog.PrepareDelete()
		if err != nil {
			return m, nil
		}
		return m, m.submitDeleteCmd(tok, mut)
	case key.Matches(msg, m.confirmKeys.No):
		if !m.dialog.Deleting() {
			m.dialog.CancelDelete()
		}
	}
	return m, nil
}

// loadInputs copies the dialog's fields into the text inputs.
func (m *Model) loadInputs() {
	f := m.dialog.Fields()
	m.title.SetValue(f.Title)
	m.description.SetValue(f.Description)
	m.tags.SetValue(f.Tags)
}

// syncInputs copies the text inputs back into the dialog.
func (m *Model) syncInputs() {
	m.dialog.SetTitle(m.title.Value())
	m.dialog.SetDescription(m.description.Value())
	m.dialog.SetTags(m.tags.Value())
}

func (m *Model) focusField(f field) tea.Cmd {
	m.blurInputs()
	m.focus = f
	switch f {
	case fieldTitle:
		return m.title.Focus()
	case fieldDescription:
		return m.description.Focus()
	case fieldTags:
		return m.tags.Focus()
	}
	return nil
}

func (m *Model) blurInputs() {
	m.title.Blur()
	m.description.Blur()
	m.tags.Blur()
}
