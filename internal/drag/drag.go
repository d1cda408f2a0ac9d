// Package drag turns a pick-up/drop gesture over the board lanes into a
// status-move mutation.
//
// The controller never touches the cache. While a card is being dragged it
// keeps rendering in its cached lane, so a cancelled or failed drag needs no
// rollback.
package drag

import (
	"errors"
	"fmt"

	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/pipeline"
)

var (
	ErrNotDragging     = errors.New("no card is being dragged")
	ErrAlreadyDragging = errors.New("a card is already being dragged")
)

// State is the controller's phase.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Controller tracks one drag at a time. It is not safe for concurrent use;
// it lives on the UI's event loop.
type Controller struct {
	state  State
	issue  models.ID
	origin models.Status
	hover  models.Status
}

// New returns an idle controller.
func New() *Controller { return &Controller{} }

// State returns the current phase.
func (c *Controller) State() State { return c.state }

// Dragging returns the dragged issue and its origin lane.
func (c *Controller) Dragging() (models.ID, models.Status, bool) {
	if c.state != Dragging {
		return "", "", false
	}
	return c.issue, c.origin, true
}

// Hovered returns the lane currently under the card.
func (c *Controller) Hovered() (models.Status, bool) {
	if c.state != Dragging {
		return "", false
	}
	return c.hover, true
}

// Begin picks up issue.
func (c *Controller) Begin(issue models.Issue) error {
	if c.state == Dragging {
		return ErrAlreadyDragging
	}
	if !issue.Status.Valid() {
		return fmt.Errorf("cannot drag issue %s with status %q", issue.ID, issue.Status)
	}
	c.state = Dragging
	c.issue = issue.ID
	c.origin = issue.Status
	c.hover = issue.Status
	return nil
}

// Hover records the lane under the card.
func (c *Controller) Hover(s models.Status) error {
	if c.state != Dragging {
		return ErrNotDragging
	}
	if !s.Valid() {
		return fmt.Errorf("invalid lane %q", s)
	}
	c.hover = s
	return nil
}

// Drop releases the card on target and returns to Idle. It returns nil
// when target is the origin lane: dropping a card where it already is
// never produces a request.
func (c *Controller) Drop(target models.Status) (*pipeline.Mutation, error) {
	if c.state != Dragging {
		return nil, ErrNotDragging
	}
	if !target.Valid() {
		return nil, fmt.Errorf("invalid lane %q", target)
	}
	id, origin := c.issue, c.origin
	c.reset()

	if target == origin {
		return nil, nil
	}
	m := pipeline.Move(id, target)
	return &m, nil
}

// DropHovered drops on the lane last passed to Hover.
func (c *Controller) DropHovered() (*pipeline.Mutation, error) {
	if c.state != Dragging {
		return nil, ErrNotDragging
	}
	return c.Drop(c.hover)
}

// Cancel abandons the drag. Nothing is submitted.
func (c *Controller) Cancel() error {
	if c.state != Dragging {
		return ErrNotDragging
	}
	c.reset()
	return nil
}

func (c *Controller) reset() {
	c.state = Idle
	c.issue = ""
	c.origin = ""
	c.hover = ""
}
