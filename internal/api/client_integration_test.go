package api_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/teamboard/internal/api"
	"github.com/joescharf/teamboard/internal/board"
	"github.com/joescharf/teamboard/internal/cache"
	"github.com/joescharf/teamboard/internal/gateway"
	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/pipeline"
	"github.com/joescharf/teamboard/internal/session"
	"github.com/joescharf/teamboard/internal/store"
)

type stack struct {
	sess  *session.Session
	gw    *gateway.Client
	cache *cache.Cache
	pipe  *pipeline.Pipeline
}

// newStack starts the reference store and logs a fresh client in as username.
func newStack(t *testing.T, url, username string) *stack {
	t.Helper()
	ctx := context.Background()

	sess := session.New()
	gw := gateway.NewClient(url, sess)
	_, err := gw.Register(ctx, username, username+"@example.com", "secret")
	require.NoError(t, err)
	id, err := gw.Login(ctx, username, "secret")
	require.NoError(t, err)
	sess.Init(id)

	c := cache.New(gw)
	return &stack{sess: sess, gw: gw, cache: c, pipe: pipeline.New(gw, c)}
}

func startServer(t *testing.T) string {
	t.Helper()
	s, err := store.NewSQLiteStore(store.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	srv := httptest.NewServer(api.NewServer(s, nil, api.WithHashCost(bcrypt.MinCost)).Router())
	t.Cleanup(srv.Close)
	return srv.URL
}

func (st *stack) fields(t *testing.T, title string) models.Fields {
	t.Helper()
	team, ok := st.sess.TeamID()
	require.True(t, ok)
	f := models.DefaultFields()
	f.Title = title
	f.TeamID = team
	return f
}

func TestClient_CreateMoveDelete(t *testing.T) {
	url := startServer(t)
	st := newStack(t, url, "alice")
	ctx := context.Background()

	snap, err := st.cache.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Issues)

	res, err := st.pipe.Submit(ctx, pipeline.Create(st.fields(t, "Fix login")))
	require.NoError(t, err)
	require.NoError(t, res.RefreshErr)
	id := res.Issue.ID

	b := board.Partition(res.Snapshot.Issues)
	lane, _, ok := b.Locate(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusOpen, lane.Status)

	res, err = st.pipe.Submit(ctx, pipeline.Move(id, models.StatusClosed))
	require.NoError(t, err)
	b = board.Partition(res.Snapshot.Issues)
	lane, _, ok = b.Locate(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusClosed, lane.Status)

	moved, _ := res.Snapshot.Find(id)
	assert.Equal(t, "Fix login", moved.Title, "move keeps the other fields")
	assert.Equal(t, models.PriorityMedium, moved.Priority)

	res, err = st.pipe.Submit(ctx, pipeline.Delete(id))
	require.NoError(t, err)
	assert.Equal(t, id, res.Deleted)
	assert.Empty(t, res.Snapshot.Issues)
}

func TestClient_DeleteByTeammateNotFound(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	alice := newStack(t, url, "alice")

	_, err := alice.gw.Invite(ctx, "bob@example.com")
	require.NoError(t, err)
	bob := newStack(t, url, "bob")

	res, err := alice.pipe.Submit(ctx, pipeline.Create(alice.fields(t, "alice's")))
	require.NoError(t, err)

	_, err = bob.cache.Refresh(ctx)
	require.NoError(t, err)
	_, err = bob.pipe.Submit(ctx, pipeline.Delete(res.Issue.ID))
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	snap := bob.cache.Current()
	assert.Len(t, snap.Issues, 1, "failed delete leaves the board alone")
}

func TestClient_LogoutInvalidatesLaterCalls(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	st := newStack(t, url, "alice")

	require.NoError(t, st.gw.Logout(ctx))

	_, err := st.cache.Refresh(ctx)
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.False(t, st.sess.Valid(), "a 401 invalidates the session")
}
