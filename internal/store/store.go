package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/teamboard/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("already exists")
)

// Invitation statuses.
const (
	InviteStatusInvited = "INVITED"
	InviteStatusJoined  = "JOINED"
)

// Team groups users and their issues.
type Team struct {
	ID        models.ID
	Name      string
	CreatedAt time.Time
}

// User is an account row, including its password hash.
type User struct {
	models.User
	PasswordHash string
	CreatedAt    time.Time
}

// Store defines the persistence interface for the reference issue server.
type Store interface {
	// Accounts
	Register(ctx context.Context, username, email, passwordHash string) (*User, error)
	GetUser(ctx context.Context, id models.ID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetTeam(ctx context.Context, id models.ID) (*Team, error)

	// Bearer tokens
	CreateToken(ctx context.Context, userID models.ID) (string, error)
	UserForToken(ctx context.Context, token string) (*User, error)
	DeleteToken(ctx context.Context, token string) error

	// Invitations
	CreateInvite(ctx context.Context, invitedBy models.ID, email string) (*models.TeamMember, error)
	ListInvites(ctx context.Context, invitedBy models.ID) ([]models.TeamMember, error)

	// Issues, scoped to a team
	CreateIssue(ctx context.Context, issue *models.Issue) error
	ListIssues(ctx context.Context, teamID models.ID) ([]models.Issue, error)
	UpdateIssue(ctx context.Context, teamID, id models.ID, f models.Fields) (*models.Issue, error)
	DeleteIssue(ctx context.Context, createdBy, id models.ID) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
