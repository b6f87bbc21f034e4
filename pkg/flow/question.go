// Package flow holds the screening question set and the visibility rules
// that decide which question is shown next. Questions form a flat ordered
// sequence; a dependency is a visibility filter over that order, not a
// branching tree.
package flow

// Language selects the label translation shown to the user.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTamil   Language = "ta"
)

// Question identifiers referenced by the risk rules. They must match the
// ids in questions.yaml; ValidateQuestionSet checks that they all exist.
const (
	QuestionAgeGroup            = "age_group"
	QuestionGender              = "gender"
	QuestionComorbidity         = "comorbidity"
	QuestionComorbidityDuration = "comorbidity_duration"
	QuestionFamilyHistory       = "family_history"
	QuestionMedicationHistory   = "medication_history"
	QuestionSwelling            = "swelling"
	QuestionBloodInUrine        = "blood_urine"
	QuestionUrineOutput         = "urine_output"
	QuestionBreathlessness      = "breathlessness"
	QuestionKidneyStone         = "kidney_stone"
	QuestionDifficultyUrinating = "difficulty_urinating"
	QuestionSmoking             = "smoking"
	QuestionUrineTest           = "urine_test"
	QuestionUrineProtein        = "urine_protein"
	QuestionFollowUpCall        = "followup_call"
)

// Label is a translated display string.
type Label struct {
	EN string `yaml:"en"`
	TA string `yaml:"ta"`
}

// Text returns the translation for lang, falling back to English.
func (l Label) Text(lang Language) string {
	if lang == LanguageTamil && l.TA != "" {
		return l.TA
	}
	return l.EN
}

// Option is one selectable answer. Value is the stable token recorded in
// the AnswerSet and matched by the risk rules; Label is what the user sees.
type Option struct {
	Value string `yaml:"value"`
	Label Label  `yaml:"label"`
}

// Question is one step of the screening. If DependsOn is set the question
// is visible only while the referenced question's recorded answer is a
// member of RequiredValues.
type Question struct {
	ID             string   `yaml:"id"`
	Derived        bool     `yaml:"derived,omitempty"` // answered by the system, never shown
	Label          Label    `yaml:"label"`
	Options        []Option `yaml:"options"`
	DependsOn      string   `yaml:"depends_on,omitempty"`
	RequiredValues []string `yaml:"required_values,omitempty"`
}

// HasOption reports whether value is one of the question's option values.
func (q Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// AnswerSet maps question id to the chosen option value. It grows as the
// user progresses; a skipped question simply has no key.
type AnswerSet map[string]string

// Clone returns an independent copy so reducer transitions never alias.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
