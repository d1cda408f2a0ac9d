package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/joescharf/teamboard/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInvalid is returned when a request is well-formed but cannot be honoured.
var ErrInvalid = errors.New("invalid request")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
// MemoryPath keeps everything in process memory.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"}
	if dbPath != MemoryPath {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newID generates a new ULID. Ids sort in creation order.
func newID() models.ID {
	return models.ID(ulid.Make().String())
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Accounts ---

// Register creates a user. An outstanding invitation for email puts the
// user on the inviter's team; otherwise a new team is created for them.
func (s *SQLiteStore) Register(ctx context.Context, username, email, passwordHash string) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&n); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("username already registered: %w", ErrConflict)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&n); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("email already registered: %w", ErrConflict)
	}

	now := time.Now().UTC()
	var inviteID, teamID models.ID
	var inviterTeam sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT m.id, u.team_id FROM team_members m JOIN users u ON u.id = m.invited_by
		WHERE m.email = ? AND m.status = ?`, email, InviteStatusInvited,
	).Scan(&inviteID, &inviterTeam)
	switch {
	case err == nil:
		if !inviterTeam.Valid || inviterTeam.String == "" {
			return nil, fmt.Errorf("inviter has no team: %w", ErrInvalid)
		}
		teamID = models.ID(inviterTeam.String)
	case errors.Is(err, sql.ErrNoRows):
		teamID = newID()
		if _, err := tx.ExecContext(ctx, "INSERT INTO teams (id, name, created_at) VALUES (?, ?, ?)",
			teamID, username+"'s Team", now); err != nil {
			return nil, fmt.Errorf("create team: %w", err)
		}
	default:
		return nil, fmt.Errorf("look up invitation: %w", err)
	}

	u := &User{
		User:         models.User{ID: newID(), Username: username, Email: email, TeamID: teamID},
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, team_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.TeamID, u.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("user already registered: %w", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if !inviteID.IsZero() {
		if _, err := tx.ExecContext(ctx, "UPDATE team_members SET user_id = ?, status = ? WHERE id = ?",
			u.ID, InviteStatusJoined, inviteID); err != nil {
			return nil, fmt.Errorf("accept invitation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return u, nil
}

const userColumns = "id, username, email, password_hash, team_id, created_at"

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var team sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &team, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.TeamID = models.ID(team.String)
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id models.ID) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

func (s *SQLiteStore) GetTeam(ctx context.Context, id models.ID) (*Team, error) {
	t := &Team{}
	err := s.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM teams WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

// --- Bearer tokens ---

// CreateToken issues a new opaque bearer token for userID.
func (s *SQLiteStore) CreateToken(ctx context.Context, userID models.ID) (string, error) {
	token := uuid.NewString()
	_, err := s.db.ExecContext(ctx, "INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)",
		token, userID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return token, nil
}

// UserForToken resolves a bearer token to its user.
func (s *SQLiteStore) UserForToken(ctx context.Context, token string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT u.id, u.username, u.email, u.password_hash, u.team_id, u.created_at FROM tokens t JOIN users u ON u.id = t.user_id WHERE t.token = ?",
		token))
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) DeleteToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// --- Invitations ---

func (s *SQLiteStore) CreateInvite(ctx context.Context, invitedBy models.ID, email string) (*models.TeamMember, error) {
	m := &models.TeamMember{
		ID:        newID(),
		InvitedBy: invitedBy,
		Email:     email,
		Status:    InviteStatusInvited,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO team_members (id, user_id, invited_by, email, status, created_at) VALUES (?, '', ?, ?, ?, ?)",
		m.ID, m.InvitedBy, m.Email, m.Status, time.Now().UTC())
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("user already invited: %w", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListInvites(ctx context.Context, invitedBy models.ID) ([]models.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, invited_by, email, status FROM team_members WHERE invited_by = ? ORDER BY rowid",
		invitedBy)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.TeamMember{}
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.InvitedBy, &m.Email, &m.Status); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Issues ---

const issueColumns = "id, title, description, status, priority, tags, team_id, assigned_to, created_by"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (models.Issue, error) {
	var issue models.Issue
	var assigned, createdBy sql.NullString
	err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &issue.Status, &issue.Priority,
		&issue.Tags, &issue.TeamID, &assigned, &createdBy)
	if err != nil {
		return issue, err
	}
	if assigned.Valid && assigned.String != "" {
		issue.AssignedTo = models.IDPtr(assigned.String)
	}
	if createdBy.Valid {
		issue.CreatedBy = models.IDPtr(createdBy.String)
	}
	return issue, nil
}

func nullableID(id *models.ID) any {
	if id == nil || id.IsZero() {
		return nil
	}
	return string(*id)
}

// CreateIssue inserts issue, assigning its id. TeamID and CreatedBy must be set.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = newID()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, title, description, status, priority, tags, team_id, assigned_to, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, string(issue.Status), string(issue.Priority), issue.Tags,
		issue.TeamID, nullableID(issue.AssignedTo), nullableID(issue.CreatedBy), now, now,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// ListIssues returns the team's issues in creation order.
func (s *SQLiteStore) ListIssues(ctx context.Context, teamID models.ID) ([]models.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE team_id = ? ORDER BY rowid", teamID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// UpdateIssue replaces the writable fields of an issue visible to teamID.
// The issue stays on its team.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, teamID, id models.ID, f models.Fields) (*models.Issue, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET title=?, description=?, status=?, priority=?, tags=?, assigned_to=?, updated_at=?
		WHERE id=? AND team_id=?`,
		f.Title, f.Description, string(f.Status), string(f.Priority), f.Tags, nullableID(f.AssignedTo),
		time.Now().UTC(), id, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}

	issue, err := scanIssue(s.db.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM issues WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("reload issue: %w", err)
	}
	return &issue, nil
}

// DeleteIssue removes an issue created by createdBy.
func (s *SQLiteStore) DeleteIssue(ctx context.Context, createdBy, id models.ID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ? AND created_by = ?", id, createdBy)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}
