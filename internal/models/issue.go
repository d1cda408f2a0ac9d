package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Local preconditions checked before any request leaves the client.
var (
	ErrTitleRequired = errors.New("title is required")
	ErrMissingTeam   = errors.New("session has no team: log in with an account that belongs to a team")
)

// Status is the board lane an issue belongs to.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusClosed     Status = "CLOSED"
)

// Statuses lists every status in board order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusClosed}

// ParseStatus accepts the wire form as well as lower-case and label forms
// ("open", "in_progress", "In Progress").
func ParseStatus(s string) (Status, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch Status(norm) {
	case StatusOpen, StatusInProgress, StatusClosed:
		return Status(norm), nil
	}
	return "", fmt.Errorf("invalid status %q (want open, in_progress or closed)", s)
}

// Valid reports whether s is one of the three board statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// Label returns the lane heading shown to users.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusClosed:
		return "Closed"
	}
	return string(s)
}

// Index returns the lane position of s, or -1.
func (s Status) Index() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInProgress:
		return 1
	case StatusClosed:
		return 2
	}
	return -1
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Priority represents the urgency of an issue.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority is case-insensitive.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("invalid priority %q (want low, medium or high)", s)
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Fields is the complete writable field set of an issue. The remote store
// treats omitted fields as resets, so create and update always send all of
// them.
type Fields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	Tags        string   `json:"tags"`
	TeamID      ID       `json:"team_id"`
	AssignedTo  *ID      `json:"assigned_to"`
}

// DefaultFields returns the values a new issue starts with.
func DefaultFields() Fields {
	return Fields{Status: StatusOpen, Priority: PriorityMedium}
}

// Validate checks the local preconditions for create and update.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return ErrTitleRequired
	}
	if f.TeamID.IsZero() {
		return ErrMissingTeam
	}
	if !f.Status.Valid() {
		return fmt.Errorf("invalid status %q", f.Status)
	}
	if !f.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", f.Priority)
	}
	return nil
}

// Issue is a trackable unit of work as returned by the remote store.
type Issue struct {
	ID ID `json:"id"`
	Fields
	CreatedBy *ID `json:"created_by,omitempty"`
}

// TagList splits the free-form tags text on commas.
func (i Issue) TagList() []string {
	var out []string
	for _, t := range strings.Split(i.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
