package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/teamboard/internal/api"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/session"
	"github.com/joescharf/teamboard/internal/store"
)

// startStore runs the reference issue store and points the config at it.
func startStore(t *testing.T) string {
	t.Helper()
	s, err := store.NewSQLiteStore(store.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	srv := httptest.NewServer(api.NewServer(s, nil, api.WithHashCost(bcrypt.MinCost)).Router())
	t.Cleanup(srv.Close)

	viper.Set("api_url", srv.URL)
	return srv.URL
}

// signIn registers username and stores its credential the way login does.
func signIn(t *testing.T, username string) models.Identity {
	t.Helper()
	ctx := context.Background()
	c := gateway.NewClient(viper.GetString("api_url"), session.New())
	_, err := c.Register(ctx, username, username+"@example.com", "secret")
	require.NoError(t, err)
	id, err := c.Login(ctx, username, "secret")
	require.NoError(t, err)

	viper.Set("auth.token", id.Token)
	viper.Set("auth.user_id", id.UserID.String())
	viper.Set("auth.team_id", id.TeamID.String())
	viper.Set("auth.username", id.Username)
	resetDeps()
	return id
}

// captureOut redirects ui output for the rest of the test.
func captureOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	out := &bytes.Buffer{}
	ui.Out = out
	ui.ErrOut = out
	return out
}

func resetIssueFlags(t *testing.T) {
	t.Helper()
	issueTitle, issueDesc, issueStatus, issuePriority, issueTags = "", "", "", "", ""
	issueYes = false
	t.Cleanup(func() {
		issueTitle, issueDesc, issueStatus, issuePriority, issueTags = "", "", "", "", ""
		issueYes = false
	})
}

func addIssue(t *testing.T, title string) models.ID {
	t.Helper()
	issueTitle = title
	require.NoError(t, issueAddRun(context.Background()))
	issueTitle = ""

	snap := getCache().Current()
	for _, issue := range snap.Issues {
		if issue.Title == title {
			return issue.ID
		}
	}
	t.Fatalf("issue %q not on the board", title)
	return ""
}

func TestIssueCommands_NotLoggedIn(t *testing.T) {
	testEnv(t)
	startStore(t)
	resetIssueFlags(t)

	err := issueListRun(context.Background())
	assert.ErrorIs(t, err, errNotLoggedIn)

	issueTitle = "x"
	err = issueAddRun(context.Background())
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestIssueAdd_AndList(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	out := captureOut(t)

	issueTags = "auth"
	issuePriority = "high"
	addIssue(t, "Fix login")
	assert.Contains(t, out.String(), "Created issue")

	out.Reset()
	require.NoError(t, issueListRun(context.Background()))
	assert.Contains(t, out.String(), "Fix login")
	assert.Contains(t, out.String(), "High")

	out.Reset()
	issueStatus = "closed"
	require.NoError(t, issueListRun(context.Background()))
	assert.Contains(t, out.String(), "No issues found")
}

func TestIssueAdd_EmptyTitleMakesNoCall(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)

	issueTitle = "   "
	err := issueAddRun(context.Background())
	assert.ErrorIs(t, err, models.ErrTitleRequired)
	assert.False(t, getCache().Current().Loaded, "nothing was fetched")
}

func TestIssueAdd_DryRun(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	out := captureOut(t)
	dryRun = true
	ui.DryRun = true

	issueTitle = "Planned"
	require.NoError(t, issueAddRun(context.Background()))
	assert.Contains(t, out.String(), "[DRY-RUN]")

	dryRun = false
	snap, err := getCache().Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Issues)
}

func TestIssueMove(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	out := captureOut(t)
	ctx := context.Background()

	id := addIssue(t, "Ship it")

	require.NoError(t, issueMoveRun(ctx, id, "in progress"))
	issue, ok := getCache().Current().Find(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, issue.Status)
	assert.Equal(t, "Ship it", issue.Title)

	out.Reset()
	require.NoError(t, issueMoveRun(ctx, id, "in_progress"))
	assert.Contains(t, out.String(), "already in In Progress")

	assert.Error(t, issueMoveRun(ctx, id, "done"))
	assert.ErrorIs(t, issueMoveRun(ctx, "missing", "closed"), gateway.ErrNotFound)
}

func TestIssueUpdate_KeepsUnchangedFields(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	captureOut(t)

	issueDesc = "original description"
	id := addIssue(t, "Draft")
	issueDesc = ""

	c := &cobra.Command{}
	c.SetContext(context.Background())
	c.Flags().StringVar(&issueTitle, "title", "", "")
	c.Flags().StringVar(&issuePriority, "priority", "", "")
	c.Flags().StringVar(&issueDesc, "desc", "", "")
	c.Flags().StringVar(&issueStatus, "status", "", "")
	c.Flags().StringVar(&issueTags, "tags", "", "")
	require.NoError(t, c.Flags().Set("title", "Final"))
	require.NoError(t, c.Flags().Set("priority", "low"))

	require.NoError(t, issueUpdateRun(c, id))

	issue, ok := getCache().Current().Find(id)
	require.True(t, ok)
	assert.Equal(t, "Final", issue.Title)
	assert.Equal(t, models.PriorityLow, issue.Priority)
	assert.Equal(t, "original description", issue.Description)
}

func TestIssueUpdate_NothingToUpdate(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	captureOut(t)

	id := addIssue(t, "Draft")

	c := &cobra.Command{}
	c.SetContext(context.Background())
	err := issueUpdateRun(c, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestIssueDelete(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	out := captureOut(t)
	ctx := context.Background()

	id := addIssue(t, "Obsolete")

	// Declined prompt makes no call.
	stdin = strings.NewReader("n\n")
	t.Cleanup(func() { stdin = os.Stdin })
	require.NoError(t, issueDeleteRun(ctx, id))
	assert.Contains(t, out.String(), "Cancelled")
	_, ok := getCache().Current().Find(id)
	assert.True(t, ok)

	stdin = strings.NewReader("y\n")
	require.NoError(t, issueDeleteRun(ctx, id))
	_, ok = getCache().Current().Find(id)
	assert.False(t, ok)
}

func TestIssueDelete_NotCreator(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetIssueFlags(t)
	captureOut(t)
	ctx := context.Background()

	require.NoError(t, teamInviteRun(ctx, "bob@example.com"))
	id := addIssue(t, "Ada's")

	signIn(t, "bob")
	issueYes = true
	err := issueDeleteRun(ctx, id)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestTeamCommands(t *testing.T) {
	testEnv(t)
	startStore(t)
	signIn(t, "ada")
	out := captureOut(t)
	ctx := context.Background()

	require.NoError(t, teamListRun(ctx))
	assert.Contains(t, out.String(), "No invitations")

	assert.Error(t, teamInviteRun(ctx, "not-an-email"))

	require.NoError(t, teamInviteRun(ctx, "bob@example.com"))
	out.Reset()
	require.NoError(t, teamListRun(ctx))
	assert.Contains(t, out.String(), "bob@example.com")
	assert.Contains(t, out.String(), "invited")
}

func TestLoginLogout_PersistCredential(t *testing.T) {
	dir := testEnv(t)
	startStore(t)
	captureOut(t)
	ctx := context.Background()

	pwFile := filepath.Join(dir, "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("secret\n"), 0600))
	authPasswordFile = pwFile
	authEmail = "ada@example.com"
	t.Cleanup(func() { authPasswordFile, authEmail = "", "" })

	require.NoError(t, registerRun(ctx, "ada"))
	require.NoError(t, loginRun(ctx, "ada"))

	values := readConfigFileValues(filepath.Join(dir, "config.yaml"))
	assert.True(t, values["auth.token"])
	assert.True(t, getSession().Valid())
	require.NoError(t, whoamiRun())

	require.NoError(t, logoutRun(ctx))
	values = readConfigFileValues(filepath.Join(dir, "config.yaml"))
	assert.False(t, values["auth.token"])
	assert.False(t, getSession().Valid())
	assert.ErrorIs(t, whoamiRun(), errNotLoggedIn)
}

func TestLogin_BadPassword(t *testing.T) {
	dir := testEnv(t)
	startStore(t)
	signIn(t, "ada")
	resetDeps()
	viper.Set("auth.token", "")

	stdin = strings.NewReader("wrong\n")
	authPasswordFile = "-"
	t.Cleanup(func() { stdin = os.Stdin; authPasswordFile = "" })

	err := loginRun(context.Background(), "ada")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	_, statErr := os.Stat(filepath.Join(dir, "config.yaml"))
	assert.True(t, os.IsNotExist(statErr), "nothing saved")
}

func TestExplain(t *testing.T) {
	testEnv(t)
	assert.Nil(t, explain(nil))

	err := explain(&gateway.Error{Kind: gateway.KindUnauthorized})
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.Contains(t, err.Error(), "tb login")

	err = explain(models.ErrMissingTeam)
	assert.ErrorIs(t, err, models.ErrMissingTeam)
	assert.Contains(t, err.Error(), "invite")
}
