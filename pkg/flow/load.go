package flow

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var embeddedQuestions []byte

type questionFile struct {
	Questions []Question `yaml:"questions"`
}

// ParseQuestionSet decodes and validates a question set. Unknown YAML
// fields are rejected so typos in a config override fail at startup
// instead of silently changing visibility behavior.
func ParseQuestionSet(data []byte) ([]Question, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var file questionFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("question set: parse: %w", err)
	}
	if err := ValidateQuestionSet(file.Questions); err != nil {
		return nil, fmt.Errorf("question set: %w", err)
	}
	return file.Questions, nil
}

// LoadQuestionSet reads a question set from path. A config directory may
// ship a questions.yaml to override the embedded defaults.
func LoadQuestionSet(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("question set: read %s: %w", path, err)
	}
	return ParseQuestionSet(data)
}

// LoadQuestionSetFromDir loads <dir>/questions.yaml when present and falls
// back to the embedded set otherwise.
func LoadQuestionSetFromDir(dir string) ([]Question, error) {
	path := filepath.Join(dir, "questions.yaml")
	if _, err := os.Stat(path); err != nil {
		return DefaultQuestionSet(), nil
	}
	return LoadQuestionSet(path)
}

// ValidateQuestionSet checks the structural invariants: unique ids,
// non-empty options, dependencies that point backwards to an existing
// question, required_values present and drawn from the referenced
// question's option values, and exactly one derived question at slot 0.
func ValidateQuestionSet(qs []Question) error {
	if len(qs) == 0 {
		return fmt.Errorf("no questions defined")
	}
	if !qs[0].Derived {
		return fmt.Errorf("question 0 must be the derived age-group slot")
	}

	byID := make(map[string]int, len(qs))
	for i, q := range qs {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		if _, dup := byID[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		if i > 0 && q.Derived {
			return fmt.Errorf("%s: only question 0 may be derived", q.ID)
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("%s: no options", q.ID)
		}
		if q.DependsOn != "" {
			dep, ok := byID[q.DependsOn]
			if !ok {
				return fmt.Errorf("%s: depends_on %q does not reference an earlier question", q.ID, q.DependsOn)
			}
			if len(q.RequiredValues) == 0 {
				return fmt.Errorf("%s: depends_on set but required_values empty", q.ID)
			}
			for _, v := range q.RequiredValues {
				if !qs[dep].HasOption(v) {
					return fmt.Errorf("%s: required value %q is not an option of %q", q.ID, v, q.DependsOn)
				}
			}
		} else if len(q.RequiredValues) != 0 {
			return fmt.Errorf("%s: required_values set without depends_on", q.ID)
		}
		byID[q.ID] = i
	}

	// The risk rules address questions by id; a set that renames one of
	// them would classify everything as GREEN.
	for _, id := range []string{
		QuestionAgeGroup, QuestionComorbidity, QuestionFamilyHistory,
		QuestionMedicationHistory, QuestionSwelling, QuestionBloodInUrine,
		QuestionUrineOutput, QuestionBreathlessness, QuestionKidneyStone,
		QuestionDifficultyUrinating, QuestionUrineProtein,
	} {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("scored question %q missing from set", id)
		}
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultSet  []Question
)

// DefaultQuestionSet returns the embedded screening question set. The
// embedded file is part of the build; a parse failure is a packaging bug.
func DefaultQuestionSet() []Question {
	defaultOnce.Do(func() {
		qs, err := ParseQuestionSet(embeddedQuestions)
		if err != nil {
			panic(err)
		}
		defaultSet = qs
	})
	return defaultSet
}

// IndexOf returns the slot of a question id, or -1.
func IndexOf(qs []Question, id string) int {
	for i, q := range qs {
		if q.ID == id {
			return i
		}
	}
	return -1
}
