// Package gateway issues authenticated requests against the remote issue
// store. It holds no state besides its configuration: every call is a single
// request/response exchange and nothing is retried.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joescharf/teamboard/internal/models"
)

const issuesPath = "/api/issues/"

// Credentials supplies the bearer token and is told when the store rejects
// it. *session.Session satisfies it.
type Credentials interface {
	Token() string
	Invalidate()
}

// Client talks to the remote issue store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	logger     *slog.Logger

	// numericIDs is set once the store has answered with integer ids. Ids
	// in request bodies are then written back as JSON numbers.
	numericIDs atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Timeouts are whatever
// the supplied client imposes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for per-request debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a gateway for the store rooted at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		creds:      creds,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the store root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// List returns the caller's team issues in store order. Records whose status
// or priority fall outside the known enumerations are dropped.
func (c *Client) List(ctx context.Context) ([]models.Issue, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, "list issues", http.MethodGet, issuesPath, nil, &raw, true); err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(raw))
	for _, r := range raw {
		var issue models.Issue
		if err := json.Unmarshal(r, &issue); err != nil {
			c.logger.Warn("dropping malformed issue record", "error", err)
			continue
		}
		if issue.ID.IsZero() {
			c.logger.Warn("dropping issue record without id")
			continue
		}
		c.noteIDKind(r)
		issues = append(issues, issue)
	}
	return issues, nil
}

// Create files a new issue and returns it with its server-assigned id.
func (c *Client) Create(ctx context.Context, f models.Fields) (*models.Issue, error) {
	const op = "create issue"
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodPost, issuesPath, c.fieldsBody(f), &raw, true); err != nil {
		return nil, err
	}
	return c.decodeIssue(op, raw)
}

// Update replaces every field of issue id with f.
func (c *Client) Update(ctx context.Context, id models.ID, f models.Fields) (*models.Issue, error) {
	op := fmt.Sprintf("update issue %s", id)
	var raw json.RawMessage
	if err := c.do(ctx, op, http.MethodPut, issuePath(id), c.fieldsBody(f), &raw, true); err != nil {
		return nil, err
	}
	return c.decodeIssue(op, raw)
}

// Delete removes issue id.
func (c *Client) Delete(ctx context.Context, id models.ID) error {
	op := fmt.Sprintf("delete issue %s", id)
	return c.do(ctx, op, http.MethodDelete, issuePath(id), nil, nil, true)
}

// wireFields overrides the id members of Fields with pre-encoded values.
type wireFields struct {
	models.Fields
	TeamID     json.RawMessage `json:"team_id"`
	AssignedTo json.RawMessage `json:"assigned_to"`
}

// fieldsBody returns the request body for f. Ids go out as strings unless
// the store has shown that it issues integers.
func (c *Client) fieldsBody(f models.Fields) any {
	if !c.numericIDs.Load() {
		return f
	}
	body := wireFields{Fields: f, AssignedTo: json.RawMessage("null")}
	body.TeamID, _ = f.TeamID.NumericJSON()
	if f.AssignedTo != nil {
		body.AssignedTo, _ = f.AssignedTo.NumericJSON()
	}
	return body
}

// noteIDKind records whether the "id" member of a JSON object is a number.
func (c *Client) noteIDKind(obj []byte) {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(obj, &head); err != nil || len(head.ID) == 0 || string(head.ID) == "null" {
		return
	}
	c.numericIDs.Store(models.NumericJSONToken(head.ID))
}

func (c *Client) decodeIssue(op string, raw json.RawMessage) (*models.Issue, error) {
	var issue models.Issue
	if len(raw) == 0 {
		return &issue, nil
	}
	if err := json.Unmarshal(raw, &issue); err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Message: "decode response", Err: err}
	}
	c.noteIDKind(raw)
	return &issue, nil
}

func issuePath(id models.ID) string {
	return issuesPath[:len(issuesPath)-1] + "/" + url.PathEscape(id.String())
}

// do performs one exchange. body is JSON-encoded when non-nil; out is
// decoded from a 2xx response when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, authenticated bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: KindValidation, Message: "encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if authenticated {
		token := ""
		if c.creds != nil {
			token = c.creds.Token()
		}
		if token == "" {
			return &Error{Op: op, Kind: KindUnauthorized, Message: "not logged in"}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("gateway request failed", "op", op, "error", err)
		return &Error{Op: op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("gateway request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := &Error{
			Op:      op,
			Kind:    kindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: serverMessage(respBody),
		}
		if gerr.Kind == KindUnauthorized && authenticated && c.creds != nil {
			c.creds.Invalidate()
		}
		return gerr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Op: op, Kind: KindTransport, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}
