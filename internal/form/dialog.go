// Package form drives the create/edit dialog and the delete confirmation.
//
// A Dialog is a plain state holder owned by one UI loop. Submissions are
// split into Prepare (local checks, build the mutation) and Complete (apply
// the outcome) so the UI can run the network call asynchronously. Each
// Prepare returns a Token; a Complete whose token no longer matches the open
// dialog is dropped.
package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/teamboard/internal/models"
	"github.com/joescharf/teamboard/internal/pipeline"
)

var (
	ErrClosed     = errors.New("dialog is not open")
	ErrSubmitting = errors.New("a submission is already in progress")
	ErrNoConfirm  = errors.New("no delete is awaiting confirmation")
)

// Mode is the dialog's purpose.
type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Title is the dialog heading for the mode.
func (m Mode) Title() string {
	if m == ModeEdit {
		return "Edit Issue"
	}
	return "Create Issue"
}

// Submitter performs mutations; *pipeline.Pipeline satisfies it.
type Submitter interface {
	Submit(ctx context.Context, m pipeline.Mutation) (*pipeline.Result, error)
}

// TeamSource supplies the team new and edited issues are filed under;
// *session.Session satisfies it.
type TeamSource interface {
	TeamID() (models.ID, bool)
}

// Token identifies one Prepare call.
type Token uint64

// Dialog is not safe for concurrent use.
type Dialog struct {
	submitter Submitter
	team      TeamSource

	gen        uint64
	open       bool
	mode       Mode
	target     models.ID
	fields     models.Fields
	err        error
	submitting bool

	confirm       bool
	confirmTarget models.ID
	confirmGen    uint64
	deleting      bool
	deleteErr     error
}

// New returns a closed dialog.
func New(s Submitter, team TeamSource) *Dialog {
	return &Dialog{submitter: s, team: team}
}

// OpenCreate opens a blank dialog with the default status and priority.
func (d *Dialog) OpenCreate() {
	d.reopen()
	d.mode = ModeCreate
	d.fields = models.DefaultFields()
}

// OpenEdit opens the dialog pre-filled from issue.
func (d *Dialog) OpenEdit(issue models.Issue) {
	d.reopen()
	d.mode = ModeEdit
	d.target = issue.ID
	d.fields = issue.Fields
}

func (d *Dialog) reopen() {
	d.gen++
	d.open = true
	d.target = ""
	d.err = nil
	d.submitting = false
}

// Close dismisses the dialog and clears the form. A submission still in
// flight will not reopen or alter it.
func (d *Dialog) Close() {
	d.gen++
	d.open = false
	d.mode = 0
	d.target = ""
	d.fields = models.Fields{}
	d.err = nil
	d.submitting = false
}

// Open reports whether the create/edit dialog is showing.
func (d *Dialog) Open() bool { return d.open }

// Mode returns the open dialog's mode, or 0 when closed.
func (d *Dialog) Mode() Mode { return d.mode }

// Target is the issue being edited.
func (d *Dialog) Target() models.ID { return d.target }

// Fields returns the form's current values.
func (d *Dialog) Fields() models.Fields { return d.fields }

// Err is the last submission failure shown in the dialog.
func (d *Dialog) Err() error { return d.err }

// Submitting reports whether a submission is in flight.
func (d *Dialog) Submitting() bool { return d.submitting }

// CanSubmit reports whether the submit affordance is enabled.
func (d *Dialog) CanSubmit() bool { return d.open && !d.submitting }

func (d *Dialog) SetTitle(s string)       { d.fields.Title = s }
func (d *Dialog) SetDescription(s string) { d.fields.Description = s }
func (d *Dialog) SetTags(s string)        { d.fields.Tags = s }

func (d *Dialog) SetStatus(s models.Status) error {
	if !s.Valid() {
		return fmt.Errorf("invalid status %q", s)
	}
	d.fields.Status = s
	return nil
}

func (d *Dialog) SetPriority(p models.Priority) error {
	if !p.Valid() {
		return fmt.Errorf("invalid priority %q", p)
	}
	d.fields.Priority = p
	return nil
}

// Prepare checks the form locally and returns the mutation to submit. On a
// local failure the error is kept on the dialog and nothing should be sent.
func (d *Dialog) Prepare() (Token, pipeline.Mutation, error) {
	if !d.open {
		return 0, pipeline.Mutation{}, ErrClosed
	}
	if d.submitting {
		return 0, pipeline.Mutation{}, ErrSubmitting
	}

	f := d.fields
	f.TeamID = ""
	if team, ok := d.team.TeamID(); ok {
		f.TeamID = team
	}
	if err := f.Validate(); err != nil {
		d.err = err
		return 0, pipeline.Mutation{}, err
	}

	var m pipeline.Mutation
	if d.mode == ModeEdit {
		m = pipeline.Update(d.target, f)
	} else {
		m = pipeline.Create(f)
	}
	d.err = nil
	d.submitting = true
	return Token(d.gen), m, nil
}

// Complete applies the outcome of the submission started by tok. Success
// closes the dialog; failure keeps it open with the error. It reports
// whether the outcome was applied.
func (d *Dialog) Complete(tok Token, _ *pipeline.Result, err error) bool {
	if uint64(tok) != d.gen || !d.open || !d.submitting {
		return false
	}
	d.submitting = false
	if err != nil {
		d.err = err
		return true
	}
	d.Close()
	return true
}

// Submit runs Prepare, the pipeline call and Complete in one step.
func (d *Dialog) Submit(ctx context.Context) (*pipeline.Result, error) {
	tok, m, err := d.Prepare()
	if err != nil {
		return nil, err
	}
	res, err := d.submitter.Submit(ctx, m)
	d.Complete(tok, res, err)
	return res, err
}

// RequestDelete asks for confirmation before deleting id.
func (d *Dialog) RequestDelete(id models.ID) {
	d.confirmGen++
	d.confirm = true
	d.confirmTarget = id
	d.deleting = false
	d.deleteErr = nil
}

// CancelDelete dismisses the confirmation without a call.
func (d *Dialog) CancelDelete() {
	d.confirmGen++
	d.confirm = false
	d.confirmTarget = ""
	d.deleting = false
	d.deleteErr = nil
}

// Confirming reports whether a delete confirmation is showing, and for which issue.
func (d *Dialog) Confirming() (models.ID, bool) { return d.confirmTarget, d.confirm }

// Deleting reports whether a confirmed delete is in flight.
func (d *Dialog) Deleting() bool { return d.deleting }

// DeleteErr is the last delete failure shown in the confirmation.
func (d *Dialog) DeleteErr() error { return d.deleteErr }

// PrepareDelete confirms the pending delete and returns its mutation.
func (d *Dialog) PrepareDelete() (Token, pipeline.Mutation, error) {
	if !d.confirm {
		return 0, pipeline.Mutation{}, ErrNoConfirm
	}
	if d.deleting {
		return 0, pipeline.Mutation{}, ErrSubmitting
	}
	d.deleting = true
	d.deleteErr = nil
	return Token(d.confirmGen), pipeline.Delete(d.confirmTarget), nil
}

// CompleteDelete applies a delete outcome. Success closes the confirmation
// and, when the deleted issue is open for editing, the edit dialog too.
func (d *Dialog) CompleteDelete(tok Token, _ *pipeline.Result, err error) bool {
	if uint64(tok) != d.confirmGen || !d.confirm || !d.deleting {
		return false
	}
	d.deleting = false
	if err != nil {
		d.deleteErr = err
		return true
	}
	id := d.confirmTarget
	d.CancelDelete()
	if d.open && d.mode == ModeEdit && d.target == id {
		d.Close()
	}
	return true
}

// ConfirmDelete runs PrepareDelete, the pipeline call and CompleteDelete.
func (d *Dialog) ConfirmDelete(ctx context.Context) (*pipeline.Result, error) {
	tok, m, err := d.PrepareDelete()
	if err != nil {
		return nil, err
	}
	res, err := d.submitter.Submit(ctx, m)
	d.CompleteDelete(tok, res, err)
	return res, err
}
