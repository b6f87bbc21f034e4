package session

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/risk"
)

var (
	// ErrMissingLocation blocks the flow when no QR context was resolved.
	ErrMissingLocation = errors.New("no screening location resolved from QR code")
	// ErrMissingIdentity blocks the flow when intake was never completed.
	ErrMissingIdentity = errors.New("identity not collected")
	// ErrInvalidAction marks a caller contract violation: the action does
	// not apply to the current phase or step. This is a programming bug in
	// the shell, not a user-facing condition.
	ErrInvalidAction = errors.New("action not valid in current state")
)

// Machine drives one screening session. It is not safe for concurrent use;
// wizard input is serialized by construction, so exactly one Advance runs
// at a time for a given state.
type Machine struct {
	Questions []flow.Question
	Screen    ScreenContext
	Now       func() time.Time
	Rand      *rand.Rand
}

// NewMachine wires a machine over the given question set and QR context.
func NewMachine(questions []flow.Question, screen ScreenContext) *Machine {
	return &Machine{
		Questions: questions,
		Screen:    screen,
		Now:       time.Now,
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Advance applies one action and returns the next state plus the commands
// the shell must execute. The input state is never mutated.
func (m *Machine) Advance(st State, action Action) (State, []Command, error) {
	switch a := action.(type) {
	case SubmitIntake:
		return m.submitIntake(st, a)
	case Answer:
		return m.answer(st, a)
	case Back:
		return m.back(st)
	case SinksDone:
		return m.sinksDone(st, a)
	case Restart:
		return m.restart(st, a)
	}
	return st, nil, fmt.Errorf("%w: unknown action %T", ErrInvalidAction, action)
}

func (m *Machine) submitIntake(st State, a SubmitIntake) (State, []Command, error) {
	if st.Phase != PhaseIntake {
		return st, nil, fmt.Errorf("%w: intake submit in phase %s", ErrInvalidAction, st.Phase)
	}
	if m.Screen.QRNo == "" || m.Screen.LocationCode == "" {
		return st, nil, ErrMissingLocation
	}
	if strings.TrimSpace(a.Identity.Name) == "" {
		return st, nil, fmt.Errorf("intake: name is required")
	}
	if a.Identity.Age < 1 || a.Identity.Age > 119 {
		return st, nil, fmt.Errorf("intake: age %d out of range", a.Identity.Age)
	}

	id := a.Identity
	next := st
	next.Identity = &id

	// Re-submitting intake after backing out of the flow keeps every
	// answer already given. The derived slot is rebuilt because the age
	// may have been corrected, and pruning re-evaluates visibility
	// against the retained answers.
	next.Answers = st.Answers.Clone()
	if next.Answers == nil {
		next.Answers = flow.AnswerSet{}
	}
	next.Answers[flow.QuestionAgeGroup] = risk.AgeGroup(id.Age)
	flow.PruneHidden(m.Questions, next.Answers)
	next.Step = m.resumeStep(next.Answers)
	next.Phase = PhaseInProgress
	next.Direction = DirectionForward
	next.Result = nil
	next.Warning = ""
	return next, nil, nil
}

// resumeStep returns the first visible question without a recorded
// answer. When every visible question is already answered the last one is
// reopened, so completion still goes through an explicit Answer.
func (m *Machine) resumeStep(answers flow.AnswerSet) int {
	step := flow.NextVisibleIndex(m.Questions, 0, answers)
	for step < len(m.Questions) {
		if _, ok := answers[m.Questions[step].ID]; !ok {
			return step
		}
		step = flow.NextVisibleIndex(m.Questions, step, answers)
	}
	return flow.PreviousVisibleIndex(m.Questions, len(m.Questions), answers)
}

func (m *Machine) answer(st State, a Answer) (State, []Command, error) {
	if st.Phase != PhaseInProgress {
		return st, nil, fmt.Errorf("%w: answer in phase %s", ErrInvalidAction, st.Phase)
	}
	if st.Identity == nil {
		return st, nil, ErrMissingIdentity
	}
	if st.Step < 0 || st.Step >= len(m.Questions) {
		return st, nil, fmt.Errorf("%w: step %d out of range", ErrInvalidAction, st.Step)
	}
	q := m.Questions[st.Step]
	if a.QuestionID != q.ID {
		return st, nil, fmt.Errorf("%w: answer for %q but current question is %q", ErrInvalidAction, a.QuestionID, q.ID)
	}
	if !q.HasOption(a.Value) {
		return st, nil, fmt.Errorf("question %s: %q is not an option", q.ID, a.Value)
	}

	next := st
	next.Answers = st.Answers.Clone()
	next.Answers[q.ID] = a.Value
	next.Direction = DirectionForward
	flow.PruneHidden(m.Questions, next.Answers)

	idx := flow.NextVisibleIndex(m.Questions, st.Step, next.Answers)
	if idx < len(m.Questions) {
		next.Step = idx
		return next, nil, nil
	}

	// Flow exhausted: classify exactly once and hand the sinks to the
	// shell. The result is final here; sink outcome can only attach a
	// warning later.
	result := risk.NewAssessment(next.Answers, m.Now(), m.Rand)
	next.Result = &result
	next.Phase = PhaseSubmitting
	next.Step = len(m.Questions)

	sub := Submission{
		QRNo:         m.Screen.QRNo,
		LocationCode: m.Screen.LocationCode,
		Unit:         m.Screen.Unit,
		Identity:     *st.Identity,
		Answers:      next.Answers.Clone(),
		Zone:         result.Zone,
		PriorityCode: result.PriorityCode,
		Language:     st.Identity.Language,
		Mode:         st.Mode,
		CreatedAt:    result.CreatedAt,
	}
	cmds := []Command{PersistSubmission{Submission: sub}}
	if next.Answers[flow.QuestionFollowUpCall] == "Yes" {
		cmds = append(cmds, ForwardLead{Lead: Lead{
			Name:         st.Identity.Name,
			Phone:        st.Identity.Phone,
			Zone:         result.Zone,
			PriorityCode: result.PriorityCode,
			LocationCode: m.Screen.LocationCode,
			Source:       "knscreen-qr",
		}})
	}
	return next, cmds, nil
}

func (m *Machine) back(st State) (State, []Command, error) {
	if st.Phase != PhaseInProgress {
		return st, nil, fmt.Errorf("%w: back in phase %s", ErrInvalidAction, st.Phase)
	}
	next := st
	next.Direction = DirectionBackward

	prev := flow.PreviousVisibleIndex(m.Questions, st.Step, st.Answers)
	if prev == 0 {
		// Index 0 is the derived age-group slot, never shown; backing out
		// of the first interactive question reopens the intake form.
		next.Phase = PhaseIntake
		next.Step = 0
		return next, nil, nil
	}
	next.Step = prev
	return next, nil, nil
}

func (m *Machine) sinksDone(st State, a SinksDone) (State, []Command, error) {
	if st.Phase != PhaseSubmitting {
		return st, nil, fmt.Errorf("%w: sinks-done in phase %s", ErrInvalidAction, st.Phase)
	}
	next := st
	next.Phase = PhaseResulted
	next.Warning = a.Warning
	return next, nil, nil
}

func (m *Machine) restart(st State, a Restart) (State, []Command, error) {
	next := NewState()
	if a.KeepIdentity && st.Identity != nil {
		// Same person screening a relative: skip intake, rebuild the
		// derived slot from the retained identity.
		id := *st.Identity
		next.Identity = &id
		next.Mode = ModeRelative
		next.Answers = flow.AnswerSet{flow.QuestionAgeGroup: risk.AgeGroup(id.Age)}
		next.Step = flow.NextVisibleIndex(m.Questions, 0, next.Answers)
		next.Phase = PhaseInProgress
	}
	return next, nil, nil
}
