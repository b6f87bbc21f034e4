package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/risk"
)

func testMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(flow.DefaultQuestionSet(), ScreenContext{
		QRNo:         "KN-QR-001",
		LocationCode: "CHN-ADY",
		Unit:         "OPD",
	})
	m.Now = func() time.Time { return time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC) }
	m.Rand = rand.New(rand.NewSource(42))
	return m
}

func intake() SubmitIntake {
	return SubmitIntake{Identity: Identity{
		Name:     "Meena",
		Phone:    "9876543210",
		Age:      52,
		Language: flow.LanguageTamil,
	}}
}

// answerCurrent answers whatever question the state points at.
func answerCurrent(t *testing.T, m *Machine, st State, value string) (State, []Command) {
	t.Helper()
	q := m.Questions[st.Step]
	if !q.HasOption(value) {
		value = q.Options[0].Value
	}
	next, cmds, err := m.Advance(st, Answer{QuestionID: q.ID, Value: value})
	require.NoError(t, err)
	return next, cmds
}

// completeRun drives a fresh state through intake and every question,
// answering followup_call as requested and everything else "No"-ish.
func completeRun(t *testing.T, m *Machine, followup string) (State, []Command) {
	t.Helper()
	st, cmds, err := m.Advance(NewState(), intake())
	require.NoError(t, err)
	require.Empty(t, cmds)

	for st.Phase == PhaseInProgress {
		value := "No"
		if m.Questions[st.Step].ID == flow.QuestionFollowUpCall {
			value = followup
		}
		st, cmds = answerCurrent(t, m, st, value)
	}
	return st, cmds
}

func TestSubmitIntakeEntersFlow(t *testing.T) {
	m := testMachine(t)
	st, cmds, err := m.Advance(NewState(), intake())
	require.NoError(t, err)
	require.Empty(t, cmds)
	require.Equal(t, PhaseInProgress, st.Phase)
	require.Equal(t, "40-60", st.Answers[flow.QuestionAgeGroup], "derived slot filled from age")
	require.Equal(t, flow.QuestionGender, m.Questions[st.Step].ID, "derived slot skipped")
}

func TestSubmitIntakeValidation(t *testing.T) {
	m := testMachine(t)

	_, _, err := m.Advance(NewState(), SubmitIntake{Identity: Identity{Name: "  ", Age: 30}})
	require.Error(t, err)

	_, _, err = m.Advance(NewState(), SubmitIntake{Identity: Identity{Name: "A", Age: 0}})
	require.Error(t, err)
	_, _, err = m.Advance(NewState(), SubmitIntake{Identity: Identity{Name: "A", Age: 120}})
	require.Error(t, err)

	noQR := NewMachine(flow.DefaultQuestionSet(), ScreenContext{})
	_, _, err = noQR.Advance(NewState(), intake())
	require.ErrorIs(t, err, ErrMissingLocation)
}

func TestAnswerRejectsWrongQuestionAndValue(t *testing.T) {
	m := testMachine(t)
	st, _, err := m.Advance(NewState(), intake())
	require.NoError(t, err)

	_, _, err = m.Advance(st, Answer{QuestionID: flow.QuestionSmoking, Value: "Yes"})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, _, err = m.Advance(st, Answer{QuestionID: flow.QuestionGender, Value: "Penguin"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidAction)
}

func TestCompletedRunEmitsCommandsAndResult(t *testing.T) {
	m := testMachine(t)
	st, cmds := completeRun(t, m, "No")

	require.Equal(t, PhaseSubmitting, st.Phase)
	require.NotNil(t, st.Result)
	require.Equal(t, risk.ZoneGreen, st.Result.Zone)
	require.Len(t, cmds, 1)

	persist, ok := cmds[0].(PersistSubmission)
	require.True(t, ok)
	require.Equal(t, "KN-QR-001", persist.Submission.QRNo)
	require.Equal(t, "CHN-ADY", persist.Submission.LocationCode)
	require.Equal(t, "Meena", persist.Submission.Identity.Name)
	require.Equal(t, st.Result.PriorityCode, persist.Submission.PriorityCode)
}

func TestFollowUpRequestAddsLead(t *testing.T) {
	m := testMachine(t)
	st, cmds := completeRun(t, m, "Yes")

	require.Equal(t, PhaseSubmitting, st.Phase)
	require.Len(t, cmds, 2)
	lead, ok := cmds[1].(ForwardLead)
	require.True(t, ok)
	require.Equal(t, "Meena", lead.Lead.Name)
	require.Equal(t, st.Result.Zone, lead.Lead.Zone)
	require.Equal(t, "CHN-ADY", lead.Lead.LocationCode)
}

func TestSinksDoneReachesResultedWithWarning(t *testing.T) {
	m := testMachine(t)
	st, _ := completeRun(t, m, "No")

	done, cmds, err := m.Advance(st, SinksDone{Warning: "result could not be saved"})
	require.NoError(t, err)
	require.Empty(t, cmds)
	require.Equal(t, PhaseResulted, done.Phase)
	require.Equal(t, "result could not be saved", done.Warning)
	require.Equal(t, st.Result, done.Result, "result unchanged by sink failure")
}

func TestBackFromFirstQuestionReopensIntake(t *testing.T) {
	m := testMachine(t)
	st, _, err := m.Advance(NewState(), intake())
	require.NoError(t, err)

	back, _, err := m.Advance(st, Back{})
	require.NoError(t, err)
	require.Equal(t, PhaseIntake, back.Phase)
	require.NotNil(t, back.Identity, "identity retained for re-editing")
}

func TestBackSkipsHiddenQuestions(t *testing.T) {
	m := testMachine(t)
	st, _, err := m.Advance(NewState(), intake())
	require.NoError(t, err)

	st, _ = answerCurrent(t, m, st, "Female")
	st, _ = answerCurrent(t, m, st, "No") // comorbidity: duration hidden
	require.Equal(t, flow.QuestionFamilyHistory, m.Questions[st.Step].ID)

	back, _, err := m.Advance(st, Back{})
	require.NoError(t, err)
	require.Equal(t, flow.QuestionComorbidity, m.Questions[back.Step].ID)
}

func TestReAnsweringDependencyPrunesStaleAnswer(t *testing.T) {
	m := testMachine(t)
	st, _, err := m.Advance(NewState(), intake())
	require.NoError(t, err)

	st, _ = answerCurrent(t, m, st, "Female")
	st, _ = answerCurrent(t, m, st, "Diabetes")
	require.Equal(t, flow.QuestionComorbidityDuration, m.Questions[st.Step].ID)
	st, _ = answerCurrent(t, m, st, "Over 10 years")

	// Back twice to comorbidity, switch to "No".
	st, _, err = m.Advance(st, Back{})
	require.NoError(t, err)
	st, _, err = m.Advance(st, Back{})
	require.NoError(t, err)
	require.Equal(t, flow.QuestionComorbidity, m.Questions[st.Step].ID)

	st, _ = answerCurrent(t, m, st, "No")
	require.NotContains(t, st.Answers, flow.QuestionComorbidityDuration)
	require.Equal(t, flow.QuestionFamilyHistory, m.Questions[st.Step].ID)
}

func TestResubmitIntakeKeepsRecordedAnswers(t *testing.T) {
	m := testMachine(t)
	st, _, err := m.Advance(NewState(), intake())
	require.NoError(t, err)

	st, _ = answerCurrent(t, m, st, "Female")
	require.Equal(t, flow.QuestionComorbidity, m.Questions[st.Step].ID)

	// Back to the first question, then out to intake.
	st, _, err = m.Advance(st, Back{})
	require.NoError(t, err)
	st, _, err = m.Advance(st, Back{})
	require.NoError(t, err)
	require.Equal(t, PhaseIntake, st.Phase)
	require.Equal(t, "Female", st.Answers[flow.QuestionGender], "answers survive backing out")

	// Correcting the phone must not wipe what was already answered.
	corrected := intake()
	corrected.Identity.Phone = "9000000000"
	st, _, err = m.Advance(st, corrected)
	require.NoError(t, err)
	require.Equal(t, PhaseInProgress, st.Phase)
	require.Equal(t, "Female", st.Answers[flow.QuestionGender])
	require.Equal(t, "9000000000", st.Identity.Phone)
	require.Equal(t, flow.QuestionComorbidity, m.Questions[st.Step].ID,
		"flow resumes at the first unanswered question")
}

func TestResubmitIntakeRederivesAgeGroup(t *testing.T) {
	m := testMachine(t)
	st, _, err := m.Advance(NewState(), intake())
	require.NoError(t, err)
	require.Equal(t, "40-60", st.Answers[flow.QuestionAgeGroup])

	st, _ = answerCurrent(t, m, st, "Female")
	st, _, err = m.Advance(st, Back{})
	require.NoError(t, err)
	st, _, err = m.Advance(st, Back{})
	require.NoError(t, err)
	require.Equal(t, PhaseIntake, st.Phase)

	older := intake()
	older.Identity.Age = 67
	st, _, err = m.Advance(st, older)
	require.NoError(t, err)
	require.Equal(t, "Above 60", st.Answers[flow.QuestionAgeGroup], "derived slot follows the corrected age")
	require.Equal(t, "Female", st.Answers[flow.QuestionGender])
}

func TestRestartFresh(t *testing.T) {
	m := testMachine(t)
	st, _ := completeRun(t, m, "No")
	st, _, err := m.Advance(st, SinksDone{})
	require.NoError(t, err)

	fresh, cmds, err := m.Advance(st, Restart{})
	require.NoError(t, err)
	require.Empty(t, cmds)
	require.Equal(t, PhaseIntake, fresh.Phase)
	require.Nil(t, fresh.Identity)
	require.Empty(t, fresh.Answers)
	require.Equal(t, ModeSelf, fresh.Mode)
}

func TestRestartKeepingIdentityScreensRelative(t *testing.T) {
	m := testMachine(t)
	st, _ := completeRun(t, m, "No")
	st, _, err := m.Advance(st, SinksDone{})
	require.NoError(t, err)

	rel, _, err := m.Advance(st, Restart{KeepIdentity: true})
	require.NoError(t, err)
	require.Equal(t, PhaseInProgress, rel.Phase)
	require.Equal(t, ModeRelative, rel.Mode)
	require.Equal(t, "Meena", rel.Identity.Name)
	require.Equal(t, "40-60", rel.Answers[flow.QuestionAgeGroup])
	require.Len(t, rel.Answers, 1, "previous run's answers do not carry over")
}

func TestActionsRejectedOutsideTheirPhase(t *testing.T) {
	m := testMachine(t)

	_, _, err := m.Advance(NewState(), Answer{QuestionID: flow.QuestionGender, Value: "Male"})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, _, err = m.Advance(NewState(), Back{})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, _, err = m.Advance(NewState(), SinksDone{})
	require.ErrorIs(t, err, ErrInvalidAction)
}
