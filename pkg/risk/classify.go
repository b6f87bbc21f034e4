package risk

import (
	"github.com/knhealth/knscreen/pkg/flow"
)

// Age-group tokens recorded in the derived first answer slot.
const (
	AgeGroupBelow40 = "Below 40"
	AgeGroup40To60  = "40-60"
	AgeGroupAbove60 = "Above 60"
)

// AgeGroup derives the age-group answer from the numeric age collected at
// intake. The group is never asked interactively; it is written into the
// first answer slot and scored like any other answer.
func AgeGroup(age int) string {
	switch {
	case age < 40:
		return AgeGroupBelow40
	case age <= 60:
		return AgeGroup40To60
	default:
		return AgeGroupAbove60
	}
}

// redFlags are the symptom questions that short-circuit to RED on "Yes".
var redFlags = []string{
	flow.QuestionSwelling,
	flow.QuestionBloodInUrine,
	flow.QuestionUrineOutput,
	flow.QuestionBreathlessness,
}

// positiveProtein covers every non-normal urine protein reading.
var positiveProtein = map[string]bool{
	"Trace": true,
	"1+":    true,
	"2+":    true,
	"3+":    true,
}

// Classify maps an answer set to exactly one zone. Rules are evaluated in
// strict priority order; a missing key never matches a positive condition.
//
//  1. Any red-flag symptom answered "Yes" wins outright.
//  2. Diabetes/hypertension combined with a "Trace" protein reading forces
//     AMBER. Today this coincides with the general predicate below, but it
//     is a distinct clinical rule and stays evaluated first so the two can
//     be tuned apart later.
//  3. The general AMBER predicate.
//  4. GREEN.
func Classify(answers flow.AnswerSet) Zone {
	for _, id := range redFlags {
		if answers[id] == "Yes" {
			return ZoneRed
		}
	}

	comorbid := hasPositive(answers, flow.QuestionComorbidity)
	if comorbid && answers[flow.QuestionUrineProtein] == "Trace" {
		return ZoneAmber
	}

	switch {
	case comorbid,
		answers[flow.QuestionFamilyHistory] == "Yes",
		answers[flow.QuestionMedicationHistory] == "Yes",
		hasPositive(answers, flow.QuestionKidneyStone),
		answers[flow.QuestionDifficultyUrinating] == "Yes",
		answers[flow.QuestionAgeGroup] == AgeGroupAbove60,
		positiveProtein[answers[flow.QuestionUrineProtein]]:
		return ZoneAmber
	}

	return ZoneGreen
}

// hasPositive reports a recorded answer that is anything other than "No".
func hasPositive(answers flow.AnswerSet, id string) bool {
	v, ok := answers[id]
	return ok && v != "No"
}
