package consultation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/session"
)

// Step is one page of the consultation stepper.
type Step int

const (
	StepHistory Step = iota
	StepPrescription
	StepFollowUp
	StepReview
)

// Steps is the fixed order of the stepper.
var Steps = []Step{StepHistory, StepPrescription, StepFollowUp, StepReview}

func (s Step) String() string {
	switch s {
	case StepHistory:
		return "History"
	case StepPrescription:
		return "Prescription"
	case StepFollowUp:
		return "Follow-up"
	case StepReview:
		return "Review"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

func (s Step) valid() bool { return s >= StepHistory && s <= StepReview }

// Workflow walks a doctor through recording a consultation. It performs no
// I/O: Submit returns the payload and the caller saves it. A Workflow is not
// safe for concurrent use.
type Workflow struct {
	draft   *Draft
	current Step
	doctor  session.User
	logger  zerolog.Logger
}

// NewWorkflow opens a create-mode workflow for the patient.
func NewWorkflow(identity session.Provider, subjectID string, logger zerolog.Logger) (*Workflow, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	return open(identity, NewDraft(subjectID), logger)
}

// EditWorkflow opens an edit-mode workflow pre-populated from enc.
func EditWorkflow(identity session.Provider, enc Encounter, logger zerolog.Logger) (*Workflow, error) {
	if enc.ID == "" {
		return nil, fmt.Errorf("encounter id is required")
	}
	if enc.PatientID == "" {
		return nil, fmt.Errorf("encounter %s has no patient id", enc.ID)
	}
	return open(identity, DraftFromEncounter(enc), logger)
}

func open(identity session.Provider, d *Draft, logger zerolog.Logger) (*Workflow, error) {
	if identity == nil {
		return nil, ErrNotPermitted
	}
	user, ok := identity.CurrentUser()
	if !ok || !user.IsDoctor() {
		return nil, ErrNotPermitted
	}
	return &Workflow{
		draft:   d,
		current: StepHistory,
		doctor:  user,
		logger: logger.With().
			Str("component", "consultation").
			Str("patient_id", d.SubjectID()).
			Str("mode", d.Mode().String()).
			Logger(),
	}, nil
}

// Draft returns the draft the steps edit.
func (w *Workflow) Draft() *Draft { return w.draft }

func (w *Workflow) Current() Step { return w.current }

func (w *Workflow) Mode() Mode { return w.draft.Mode() }

// Doctor is the user who opened the workflow.
func (w *Workflow) Doctor() session.User { return w.doctor }

func (w *Workflow) IsFirst() bool { return w.current == StepHistory }

func (w *Workflow) IsLast() bool { return w.current == StepReview }

// Next advances one step. It does nothing on the last step.
func (w *Workflow) Next() {
	if w.IsLast() {
		return
	}
	if w.current == StepHistory && !w.draft.IsReadyToSubmit() {
		w.logger.Warn().Msg("leaving history without a chief complaint")
	}
	w.current++
}

// Back retreats one step. It does nothing on the first step and never
// discards data entered in later steps.
func (w *Workflow) Back() {
	if w.IsFirst() {
		return
	}
	w.current--
}

// JumpTo moves to any earlier or current step, or to any step at all once
// the draft is ready to submit.
func (w *Workflow) JumpTo(to Step) error {
	if !to.valid() {
		return &InvalidTransitionError{Op: "jump", From: w.current, To: to}
	}
	if to > w.current && !w.draft.IsReadyToSubmit() {
		return &InvalidTransitionError{Op: "jump", From: w.current, To: to}
	}
	w.current = to
	return nil
}

// Submit builds the payload. It is only allowed from Review. The workflow
// keeps its state; the caller discards it once the save is confirmed.
func (w *Workflow) Submit() (*Payload, error) {
	if w.current != StepReview {
		return nil, &InvalidTransitionError{Op: "submit", From: w.current}
	}
	p, err := w.draft.ToSubmissionPayload()
	if err != nil {
		return nil, err
	}
	w.logger.Info().
		Int("medicines", len(p.Medicines)).
		Int("tests", len(p.Tests)).
		Bool("follow_up", p.FollowUp != nil).
		Msg("consultation ready to save")
	return p, nil
}
