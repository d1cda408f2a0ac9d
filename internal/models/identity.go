package models

// Identity is what the identity provider hands back after login: an opaque
// bearer credential plus the user's ids.
type Identity struct {
	Token    string
	UserID   ID
	TeamID   ID
	Username string
}

// User is the minimal user descriptor returned by login and registration.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	TeamID   ID     `json:"team_id"`
}

// TeamMember is an invitation record on the caller's team.
type TeamMember struct {
	ID        ID     `json:"id"`
	UserID    ID     `json:"user_id"`
	InvitedBy ID     `json:"invited_by"`
	Email     string `json:"email"`
	Status    string `json:"status"`
}
