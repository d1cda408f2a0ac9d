package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/joescharf/teamboard/internal/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	User        json.RawMessage `json:"user"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges a username and password for an identity. It does not
// touch the client's credentials; callers install the result in their
// session.
func (c *Client) Login(ctx context.Context, username, password string) (models.Identity, error) {
	var resp loginResponse
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &resp, false)
	if err != nil {
		return models.Identity{}, err
	}
	if resp.AccessToken == "" {
		return models.Identity{}, &Error{Op: "login", Kind: KindTransport, Message: "response carried no access token"}
	}
	var user models.User
	if len(resp.User) > 0 {
		if err := json.Unmarshal(resp.User, &user); err != nil {
			return models.Identity{}, &Error{Op: "login", Kind: KindTransport, Message: "decode response", Err: err}
		}
		c.noteIDKind(resp.User)
	}
	return models.Identity{
		Token:    resp.AccessToken,
		UserID:   user.ID,
		TeamID:   user.TeamID,
		Username: user.Username,
	}, nil
}

// Register creates an account. Invited emails join the inviter's team.
func (c *Client) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	var user models.User
	err := c.do(ctx, "register", http.MethodPost, "/auth/register", registerRequest{Username: username, Email: email, Password: password}, &user, false)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Team lists the invitations sent by the caller.
func (c *Client) Team(ctx context.Context) ([]models.TeamMember, error) {
	var members []models.TeamMember
	if err := c.do(ctx, "list team", http.MethodGet, "/team", nil, &members, true); err != nil {
		return nil, err
	}
	return members, nil
}

// Invite records an invitation for email onto the caller's team.
func (c *Client) Invite(ctx context.Context, email string) (*models.TeamMember, error) {
	var member models.TeamMember
	body := map[string]string{"email": email}
	if err := c.do(ctx, "invite", http.MethodPost, "/invite", body, &member, true); err != nil {
		return nil, err
	}
	return &member, nil
}

// Logout revokes the current credential on the store. A store that does
// not know the token answers 401, which also counts as logged out.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil, true)
	if KindOf(err) == KindUnauthorized {
		return nil
	}
	return err
}
