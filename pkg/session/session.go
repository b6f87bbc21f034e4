// Package session is the wizard state machine. It owns the single source
// of truth for one screening run (WizardState) and exposes a reducer,
// Machine.Advance, that maps (state, action) to the next state plus the
// side-effect commands the outer shell must execute. The reducer itself
// never touches the network or the database.
package session

import (
	"time"

	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/risk"
)

// Phase is the lifecycle position of a screening run.
type Phase int

const (
	// PhaseIntake collects identity fields before any question is shown.
	PhaseIntake Phase = iota
	// PhaseInProgress walks the visible questions.
	PhaseInProgress
	// PhaseSubmitting has a computed result while the persistence and CRM
	// commands are still in flight. The result is already displayable; sink
	// outcome can only add a warning.
	PhaseSubmitting
	// PhaseResulted is terminal for the run; only Restart leaves it.
	PhaseResulted
)

func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "intake"
	case PhaseInProgress:
		return "in_progress"
	case PhaseSubmitting:
		return "submitting"
	case PhaseResulted:
		return "resulted"
	}
	return "unknown"
}

// Direction records which way the user last moved. Presentation only.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// Mode distinguishes a fresh screening from a same-person "check another
// relative" run that keeps the collected identity.
type Mode string

const (
	ModeSelf     Mode = "self"
	ModeRelative Mode = "relative"
)

// Identity holds the intake fields.
type Identity struct {
	Name     string
	Phone    string
	Age      int
	Language flow.Language
}

// ScreenContext is the location resolved from the scanned QR code. It
// stamps submissions and never affects scoring.
type ScreenContext struct {
	QRNo         string
	LocationCode string
	Unit         string
}

// State is the wizard state threaded through every Advance call. Values
// are copied on transition; callers never observe aliased mutation.
type State struct {
	Phase     Phase
	Step      int // index into the question sequence; 0 is the derived slot
	Answers   flow.AnswerSet
	Result    *risk.Assessment
	Direction Direction
	Identity  *Identity
	Mode      Mode
	Warning   string // non-blocking sink failure note, set via SinksDone
}

// NewState returns the initial state: intake, step 0, nothing answered.
func NewState() State {
	return State{Phase: PhaseIntake, Answers: flow.AnswerSet{}, Mode: ModeSelf}
}

// Action is one discrete user (or shell) event fed to Advance.
type Action interface{ isAction() }

// SubmitIntake completes the identity form and enters the question flow.
type SubmitIntake struct{ Identity Identity }

// Answer records the value chosen for the currently shown question.
type Answer struct {
	QuestionID string
	Value      string
}

// Back moves to the previous visible question, or back to intake from the
// first interactive question.
type Back struct{}

// SinksDone is dispatched by the shell once the emitted commands have run.
// Warning is empty on success; it never blocks the transition to Resulted.
type SinksDone struct{ Warning string }

// Restart resets the run. KeepIdentity skips intake for a same-person
// "check another relative" flow.
type Restart struct{ KeepIdentity bool }

func (SubmitIntake) isAction() {}
func (Answer) isAction()       {}
func (Back) isAction()         {}
func (SinksDone) isAction()    {}
func (Restart) isAction()      {}

// Command is a side effect the shell executes after a transition.
type Command interface{ isCommand() }

// PersistSubmission stores the completed run. Failure must not change the
// computed zone or code.
type PersistSubmission struct{ Submission Submission }

// ForwardLead sends a follow-up lead to the CRM sink. Emitted only when
// the user asked for a follow-up call.
type ForwardLead struct{ Lead Lead }

func (PersistSubmission) isCommand() {}
func (ForwardLead) isCommand()       {}

// Submission is the persistence payload.
type Submission struct {
	QRNo         string
	LocationCode string
	Unit         string
	Identity     Identity
	Answers      flow.AnswerSet
	Zone         risk.Zone
	PriorityCode string
	Language     flow.Language
	Mode         Mode
	CreatedAt    time.Time
}

// Lead is the CRM payload derived from a submission.
type Lead struct {
	Name         string
	Phone        string
	Zone         risk.Zone
	PriorityCode string
	LocationCode string
	Source       string
}
