package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/teamboard/internal/models"
)

func TestSession_InitAndAccessors(t *testing.T) {
	s := New()
	assert.False(t, s.Valid())
	assert.Empty(t, s.Token())

	s.Init(models.Identity{Token: "tok", UserID: "1", TeamID: "9", Username: "ada"})
	assert.True(t, s.Valid())
	assert.Equal(t, "tok", s.Token())

	team, ok := s.TeamID()
	assert.True(t, ok)
	assert.Equal(t, models.ID("9"), team)
}

func TestSession_NoTeam(t *testing.T) {
	s := FromIdentity(models.Identity{Token: "tok", UserID: "1"})
	_, ok := s.TeamID()
	assert.False(t, ok)
}

func TestSession_EmptyTokenIsInvalid(t *testing.T) {
	s := FromIdentity(models.Identity{UserID: "1", TeamID: "2"})
	assert.False(t, s.Valid())
	_, ok := s.TeamID()
	assert.False(t, ok)
}

func TestSession_Invalidate(t *testing.T) {
	s := FromIdentity(models.Identity{Token: "tok", TeamID: "2"})

	calls := 0
	s.OnInvalidate(func() { calls++ })

	s.Invalidate()
	assert.False(t, s.Valid())
	assert.Empty(t, s.Token())
	assert.Equal(t, 1, calls)

	// Second invalidate is a no-op for listeners.
	s.Invalidate()
	assert.Equal(t, 1, calls)

	id, ok := s.Identity()
	assert.False(t, ok)
	assert.Equal(t, models.ID("2"), id.TeamID)
}
