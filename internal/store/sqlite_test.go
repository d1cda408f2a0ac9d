package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/teamboard/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func register(t *testing.T, s *SQLiteStore, username string) *User {
	t.Helper()
	u, err := s.Register(context.Background(), username, username+"@example.com", "hash-"+username)
	require.NoError(t, err)
	return u
}

func newIssue(u *User, title string, status models.Status) *models.Issue {
	return &models.Issue{
		Fields: models.Fields{
			Title:    title,
			Status:   status,
			Priority: models.PriorityMedium,
			TeamID:   u.TeamID,
		},
		CreatedBy: models.IDPtr(u.ID),
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	s, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(context.Background()))
	u, err := s.Register(context.Background(), "mem", "mem@example.com", "x")
	require.NoError(t, err)
	assert.NotEmpty(t, u.TeamID)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Accounts ---

func TestRegister_CreatesOwnTeam(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := register(t, s, "alice")
	assert.NotEmpty(t, u.ID)
	require.NotEmpty(t, u.TeamID)

	team, err := s.GetTeam(ctx, u.TeamID)
	require.NoError(t, err)
	assert.Equal(t, "alice's Team", team.Name)

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash-alice", got.PasswordHash)

	byID, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
}

func TestRegister_Duplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	register(t, s, "alice")

	_, err := s.Register(ctx, "alice", "other@example.com", "x")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Register(ctx, "other", "alice@example.com", "x")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegister_JoinsInvitingTeam(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")

	invite, err := s.CreateInvite(ctx, alice.ID, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, InviteStatusInvited, invite.Status)

	bob := register(t, s, "bob")
	assert.Equal(t, alice.TeamID, bob.TeamID)

	invites, err := s.ListInvites(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, InviteStatusJoined, invites[0].Status)
	assert.Equal(t, bob.ID, invites[0].UserID)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetUser(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTeam(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Tokens ---

func TestTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")

	token, err := s.CreateToken(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	u, err := s.UserForToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)
	assert.Equal(t, alice.TeamID, u.TeamID)

	require.NoError(t, s.DeleteToken(ctx, token))
	_, err = s.UserForToken(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Invitations ---

func TestCreateInvite_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")

	_, err := s.CreateInvite(ctx, alice.ID, "bob@example.com")
	require.NoError(t, err)
	_, err = s.CreateInvite(ctx, alice.ID, "bob@example.com")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListInvites_OnlyOwn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")
	carol := register(t, s, "carol")

	_, err := s.CreateInvite(ctx, alice.ID, "bob@example.com")
	require.NoError(t, err)

	invites, err := s.ListInvites(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, invites)
}

// --- Issues ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")

	issue := newIssue(alice, "Fix login", models.StatusOpen)
	issue.Tags = "auth, bug"
	require.NoError(t, s.CreateIssue(ctx, issue))
	assert.NotEmpty(t, issue.ID)

	issues, err := s.ListIssues(ctx, alice.TeamID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Fix login", issues[0].Title)
	assert.Equal(t, "auth, bug", issues[0].Tags)
	require.NotNil(t, issues[0].CreatedBy)
	assert.Equal(t, alice.ID, *issues[0].CreatedBy)
	assert.Nil(t, issues[0].AssignedTo)

	f := issues[0].Fields
	f.Status = models.StatusInProgress
	f.Priority = models.PriorityHigh
	updated, err := s.UpdateIssue(ctx, alice.TeamID, issue.ID, f)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, "Fix login", updated.Title)

	require.NoError(t, s.DeleteIssue(ctx, alice.ID, issue.ID))
	issues, err = s.ListIssues(ctx, alice.TeamID)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestListIssues_CreationOrderAndTeamScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")
	carol := register(t, s, "carol")

	for _, title := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateIssue(ctx, newIssue(alice, title, models.StatusOpen)))
	}
	require.NoError(t, s.CreateIssue(ctx, newIssue(carol, "elsewhere", models.StatusOpen)))

	issues, err := s.ListIssues(ctx, alice.TeamID)
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "first", issues[0].Title)
	assert.Equal(t, "second", issues[1].Title)
	assert.Equal(t, "third", issues[2].Title)
}

func TestUpdateIssue_OtherTeamNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")
	carol := register(t, s, "carol")

	issue := newIssue(alice, "private", models.StatusOpen)
	require.NoError(t, s.CreateIssue(ctx, issue))

	f := issue.Fields
	f.Title = "hijacked"
	_, err := s.UpdateIssue(ctx, carol.TeamID, issue.ID, f)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIssue_CreatorOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := register(t, s, "alice")

	_, err := s.CreateInvite(ctx, alice.ID, "bob@example.com")
	require.NoError(t, err)
	bob := register(t, s, "bob")

	issue := newIssue(alice, "mine", models.StatusOpen)
	require.NoError(t, s.CreateIssue(ctx, issue))

	err = s.DeleteIssue(ctx, bob.ID, issue.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Bob shares the team, so he can still see and edit it.
	issues, err := s.ListIssues(ctx, bob.TeamID)
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestDeleteIssue_NotFound(t *testing.T) {
	s := newTestStore(t)
	alice := register(t, s, "alice")
	err := s.DeleteIssue(context.Background(), alice.ID, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}
