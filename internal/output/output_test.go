package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/models"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestStatusColor(t *testing.T) {
	assert.Contains(t, StatusColor(models.StatusOpen), "Open")
	assert.Contains(t, StatusColor(models.StatusInProgress), "In Progress")
	assert.Contains(t, StatusColor(models.StatusClosed), "Closed")
	assert.Equal(t, "DONE", StatusColor(models.Status("DONE")))
}

func TestPriorityColor(t *testing.T) {
	assert.Contains(t, PriorityColor(models.PriorityHigh), "High")
	assert.Contains(t, PriorityColor(models.PriorityMedium), "Medium")
	assert.Equal(t, "Low", PriorityColor(models.PriorityLow))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Name", "Status"})
	require.NotNil(t, table)

	require.NoError(t, table.Append([]string{"login", "open"}))
	require.NoError(t, table.Append([]string{"signup", "closed"}))
	require.NoError(t, table.Render())

	result := out.String()
	assert.Contains(t, result, "login")
	assert.Contains(t, result, "signup")
}

func sampleIssues() []models.Issue {
	return []models.Issue{
		{ID: "1", Fields: models.Fields{Title: "Fix login", Status: models.StatusOpen, Priority: models.PriorityHigh, Tags: "auth"}},
		{ID: "2", Fields: models.Fields{Title: "Write docs", Status: models.StatusClosed, Priority: models.PriorityLow}},
	}
}

func TestIssues(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.Issues(sampleIssues()))

	result := out.String()
	assert.Contains(t, result, "Fix login")
	assert.Contains(t, result, "Write docs")
	assert.Contains(t, result, "auth")
}

func TestBoard(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.Board(board.Partition(sampleIssues())))

	result := out.String()
	assert.Contains(t, result, "Open")
	assert.Contains(t, result, "(empty)", "in-progress lane has no cards")
	assert.Less(t, strings.Index(result, "Fix login"), strings.Index(result, "Write docs"))
}
