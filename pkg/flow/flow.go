package flow

// VisibleWith reports whether the question should be shown given the
// answers recorded so far. Visibility is always evaluated against the
// current AnswerSet, so re-answering an earlier question is enough to
// change every downstream decision on the next traversal.
func (q Question) VisibleWith(answers AnswerSet) bool {
	if q.DependsOn == "" {
		return true
	}
	got, ok := answers[q.DependsOn]
	if !ok {
		return false
	}
	for _, want := range q.RequiredValues {
		if got == want {
			return true
		}
	}
	return false
}

// NextVisibleIndex returns the index of the first visible question after
// current, or len(qs) when the flow is complete. current must be within
// [0, len(qs)); passing anything else is a caller bug.
func NextVisibleIndex(qs []Question, current int, answers AnswerSet) int {
	for i := current + 1; i < len(qs); i++ {
		if qs[i].VisibleWith(answers) {
			return i
		}
	}
	return len(qs)
}

// PruneHidden drops recorded answers of dependent questions that are no
// longer visible, so a value captured before back-navigation cannot leak
// into classification once its dependency changed. Iterates until stable
// to handle dependency chains.
func PruneHidden(qs []Question, answers AnswerSet) {
	for {
		removed := false
		for _, q := range qs {
			if q.DependsOn == "" {
				continue
			}
			if _, ok := answers[q.ID]; ok && !q.VisibleWith(answers) {
				delete(answers, q.ID)
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}

// PreviousVisibleIndex returns the index of the nearest visible question
// before current, clamped to 0. Callers that model a pre-question intake
// step translate a return of 0 themselves (index 0 is the derived
// age-group slot and is never shown interactively).
func PreviousVisibleIndex(qs []Question, current int, answers AnswerSet) int {
	for i := current - 1; i > 0; i-- {
		if qs[i].VisibleWith(answers) {
			return i
		}
	}
	return 0
}
