package risk

import (
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knhealth/knscreen/pkg/flow"
)

// greenBaseline answers everything with the non-flagging option.
func greenBaseline() flow.AnswerSet {
	return flow.AnswerSet{
		flow.QuestionAgeGroup:            AgeGroup40To60,
		flow.QuestionGender:              "Female",
		flow.QuestionComorbidity:         "No",
		flow.QuestionFamilyHistory:       "No",
		flow.QuestionMedicationHistory:   "No",
		flow.QuestionSwelling:            "No",
		flow.QuestionBloodInUrine:        "No",
		flow.QuestionUrineOutput:         "No",
		flow.QuestionBreathlessness:      "No",
		flow.QuestionKidneyStone:         "No",
		flow.QuestionDifficultyUrinating: "No",
		flow.QuestionSmoking:             "Yes", // not scored
		flow.QuestionUrineTest:           "No",
		flow.QuestionFollowUpCall:        "No",
	}
}

func TestClassifyGreenBaseline(t *testing.T) {
	require.Equal(t, ZoneGreen, Classify(greenBaseline()))
}

func TestClassifyRedFlagsDominate(t *testing.T) {
	for _, id := range []string{
		flow.QuestionSwelling,
		flow.QuestionBloodInUrine,
		flow.QuestionUrineOutput,
		flow.QuestionBreathlessness,
	} {
		answers := greenBaseline()
		answers[id] = "Yes"
		// Pile on AMBER conditions; RED still wins.
		answers[flow.QuestionComorbidity] = "Both"
		answers[flow.QuestionFamilyHistory] = "Yes"
		require.Equal(t, ZoneRed, Classify(answers), "red flag %s", id)
	}
}

func TestClassifyDiabeticTraceIsAmber(t *testing.T) {
	answers := greenBaseline()
	answers[flow.QuestionComorbidity] = "Diabetes"
	answers[flow.QuestionUrineTest] = "Yes"
	answers[flow.QuestionUrineProtein] = "Trace"
	require.Equal(t, ZoneAmber, Classify(answers))
}

func TestClassifyAmberConditions(t *testing.T) {
	cases := map[string]func(flow.AnswerSet){
		"comorbidity":          func(a flow.AnswerSet) { a[flow.QuestionComorbidity] = "Hypertension" },
		"family history":       func(a flow.AnswerSet) { a[flow.QuestionFamilyHistory] = "Yes" },
		"medication history":   func(a flow.AnswerSet) { a[flow.QuestionMedicationHistory] = "Yes" },
		"kidney stone once":    func(a flow.AnswerSet) { a[flow.QuestionKidneyStone] = "Once" },
		"recurrent stones":     func(a flow.AnswerSet) { a[flow.QuestionKidneyStone] = "Recurrent" },
		"difficulty urinating": func(a flow.AnswerSet) { a[flow.QuestionDifficultyUrinating] = "Yes" },
		"above 60":             func(a flow.AnswerSet) { a[flow.QuestionAgeGroup] = AgeGroupAbove60 },
		"protein trace": func(a flow.AnswerSet) {
			a[flow.QuestionUrineTest] = "Yes"
			a[flow.QuestionUrineProtein] = "Trace"
		},
		"protein 3+": func(a flow.AnswerSet) {
			a[flow.QuestionUrineTest] = "Yes"
			a[flow.QuestionUrineProtein] = "3+"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			answers := greenBaseline()
			mutate(answers)
			require.Equal(t, ZoneAmber, Classify(answers))
		})
	}
}

func TestClassifyNormalProteinStaysGreen(t *testing.T) {
	answers := greenBaseline()
	answers[flow.QuestionUrineTest] = "Yes"
	answers[flow.QuestionUrineProtein] = "None"
	require.Equal(t, ZoneGreen, Classify(answers))
}

func TestClassifyMissingAnswersNeverMatch(t *testing.T) {
	// An abandoned run with barely any answers must not classify upward.
	require.Equal(t, ZoneGreen, Classify(flow.AnswerSet{}))
	require.Equal(t, ZoneGreen, Classify(flow.AnswerSet{flow.QuestionGender: "Male"}))
}

func TestAgeGroupBoundaries(t *testing.T) {
	require.Equal(t, AgeGroupBelow40, AgeGroup(1))
	require.Equal(t, AgeGroupBelow40, AgeGroup(39))
	require.Equal(t, AgeGroup40To60, AgeGroup(40))
	require.Equal(t, AgeGroup40To60, AgeGroup(60))
	require.Equal(t, AgeGroupAbove60, AgeGroup(61))
	require.Equal(t, AgeGroupAbove60, AgeGroup(119))
}

func TestPriorityCodeFormat(t *testing.T) {
	now := time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))
	re := regexp.MustCompile(`^KN-AMBER-070326-[1-9]\d{2}$`)
	for i := 0; i < 50; i++ {
		code := PriorityCode(ZoneAmber, now, rng)
		require.Regexp(t, re, code)
	}
}

func TestNewAssessmentIsDeterministicForSeed(t *testing.T) {
	now := time.Date(2026, 3, 7, 10, 30, 0, 0, time.UTC)
	a := NewAssessment(greenBaseline(), now, rand.New(rand.NewSource(7)))
	b := NewAssessment(greenBaseline(), now, rand.New(rand.NewSource(7)))
	require.Equal(t, a, b)
	require.Equal(t, ZoneGreen, a.Zone)
	require.Equal(t, now, a.CreatedAt)
}

func TestParseZone(t *testing.T) {
	for _, z := range []Zone{ZoneRed, ZoneAmber, ZoneGreen} {
		got, err := ParseZone(string(z))
		require.NoError(t, err)
		require.Equal(t, z, got)
	}
	_, err := ParseZone("PURPLE")
	require.Error(t, err)
}
