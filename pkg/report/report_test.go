package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/risk"
)

func sampleAssessment() (risk.Assessment, flow.AnswerSet) {
	a := risk.Assessment{
		Zone:         risk.ZoneAmber,
		PriorityCode: "KN-AMBER-120526-417",
		CreatedAt:    time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC),
	}
	answers := flow.AnswerSet{
		flow.QuestionAgeGroup:     "40-60",
		flow.QuestionGender:       "Female",
		flow.QuestionComorbidity:  "Diabetes",
		flow.QuestionUrineTest:    "Yes",
		flow.QuestionUrineProtein: "Trace",
		flow.QuestionFollowUpCall: "No",
	}
	return a, answers
}

func TestRoundTrip(t *testing.T) {
	questions := flow.DefaultQuestionSet()
	a, answers := sampleAssessment()

	token, err := Encode(New(a, answers, flow.LanguageTamil, questions))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, "KNR1."))
	require.NotContains(t, token, "+", "token must be URL-safe")
	require.NotContains(t, token, "/")

	rep, err := Decode(token)
	require.NoError(t, err)
	require.Equal(t, "KN-AMBER-120526-417", rep.Code)
	require.Equal(t, risk.ZoneAmber, rep.Zone)
	require.Equal(t, flow.LanguageTamil, rep.Language)
	require.Equal(t, a.CreatedAt, rep.Time())
	require.Equal(t, answers, rep.AnswerSet(questions))
}

func TestAnswersKeepSlotOrder(t *testing.T) {
	questions := flow.DefaultQuestionSet()
	a, answers := sampleAssessment()

	rep := New(a, answers, flow.LanguageEnglish, questions)
	require.Len(t, rep.Answers, len(questions))
	require.Equal(t, "40-60", rep.Answers[0])
	require.Equal(t, "", rep.Answers[flow.IndexOf(questions, flow.QuestionSwelling)], "skipped question stays blank")
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no prefix":      "eyJ2IjoxfQ",
		"wrong prefix":   "KNR2.eyJ2IjoxfQ",
		"prefix only":    "KNR1.",
		"invalid base64": "KNR1.%%%%",
		"not json":       "KNR1.bm90LWpzb24",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(token)
			require.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestDecodeRejectsBadVersionAndZone(t *testing.T) {
	questions := flow.DefaultQuestionSet()
	a, answers := sampleAssessment()

	rep := New(a, answers, flow.LanguageEnglish, questions)
	rep.Version = 99
	token, err := Encode(rep)
	require.NoError(t, err)
	_, err = Decode(token)
	require.ErrorIs(t, err, ErrMalformedToken)

	rep = New(a, answers, flow.LanguageEnglish, questions)
	rep.Zone = "PURPLE"
	token, err = Encode(rep)
	require.NoError(t, err)
	_, err = Decode(token)
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestTokenSurvivesWhitespace(t *testing.T) {
	questions := flow.DefaultQuestionSet()
	a, answers := sampleAssessment()

	token, err := Encode(New(a, answers, flow.LanguageEnglish, questions))
	require.NoError(t, err)

	rep, err := Decode("  " + token + "\n")
	require.NoError(t, err)
	require.Equal(t, a.PriorityCode, rep.Code)
}
