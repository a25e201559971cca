package assignment

import (
	"math"
	"strings"
)

// Feedback strings of the grading output.
const (
	DefaultFeedback        = "AI grading completed."
	ManualGradingFeedback  = "manual grading required"
	NotGradedFeedback      = "not graded"
	maxQuestionScore       = 10.0
	maxTotalScore          = 100.0
	exactMatchFeedbackOK   = "Correct."
	exactMatchFeedbackMiss = "Incorrect."
)

// splitEssays returns the auto-gradable questions and whether any essay exists.
func splitEssays(questions []GradeQuestion) (auto []GradeQuestion, hasEssays bool) {
	for _, q := range questions {
		if q.Type == TypeEssay {
			hasEssays = true
			continue
		}
		auto = append(auto, q)
	}
	return auto, hasEssays
}

// answersFor keeps the answers that belong to the given questions.
func answersFor(questions []GradeQuestion, answers []SubmittedAnswer) []SubmittedAnswer {
	ids := make(map[string]bool, len(questions))
	for _, q := range questions {
		ids[q.ID] = true
	}
	out := make([]SubmittedAnswer, 0, len(answers))
	for _, a := range answers {
		if ids[a.QuestionID] {
			out = append(out, a)
		}
	}
	return out
}

// manualResult is the grade of an assignment with nothing to auto-grade.
func manualResult(questions []GradeQuestion, hasEssays bool) GradeResult {
	per := make([]QuestionGrade, 0, len(questions))
	for _, q := range questions {
		per = append(per, QuestionGrade{QuestionID: q.ID, Feedback: ManualGradingFeedback})
	}
	return GradeResult{
		PerQuestion: per,
		Feedback:    "All questions require manual grading.",
		HasEssays:   hasEssays,
	}
}

// finalize merges a backend grade with the questions. Scores are clamped to
// [0,10], omitted questions score 0, and indexed questions with a selected
// option are decided by exact match. The backend total is kept only when it
// lies in [0,100] and no score was overridden.
func finalize(questions []GradeQuestion, answers []SubmittedAnswer, g *BackendGrade, hasEssays bool) GradeResult {
	byID := make(map[string]int, len(g.PerQuestion))
	for i, pq := range g.PerQuestion {
		byID[string(pq.QuestionID)] = i
	}
	selected := make(map[string]any, len(answers))
	for _, a := range answers {
		if a.SelectedOption != nil {
			selected[a.QuestionID] = a.SelectedOption
		}
	}

	res := GradeResult{
		PerQuestion: make([]QuestionGrade, 0, len(questions)),
		Feedback:    strings.TrimSpace(g.Feedback),
		HasEssays:   hasEssays,
	}
	if res.Feedback == "" {
		res.Feedback = DefaultFeedback
	}

	var sum float64
	var count int
	overridden := false
	for _, q := range questions {
		if q.Type == TypeEssay {
			res.PerQuestion = append(res.PerQuestion, QuestionGrade{QuestionID: q.ID, Feedback: ManualGradingFeedback})
			continue
		}

		score, feedback := 0.0, NotGradedFeedback
		if i, ok := byID[q.ID]; ok {
			pq := g.PerQuestion[i]
			if v, ok := asFloat(pq.Score); ok {
				score = clamp(v, 0, maxQuestionScore)
			}
			feedback = pq.Feedback
		}

		if exact, ok := exactMatch(q, selected[q.ID]); ok {
			if exact != score {
				overridden = true
			}
			if exact == maxQuestionScore && feedback == NotGradedFeedback {
				feedback = exactMatchFeedbackOK
			} else if exact == 0 && feedback == NotGradedFeedback {
				feedback = exactMatchFeedbackMiss
			}
			score = exact
		}

		res.PerQuestion = append(res.PerQuestion, QuestionGrade{QuestionID: q.ID, Score: &score, Feedback: feedback})
		sum += score
		count++
	}

	if count == 0 {
		return res
	}
	total, ok := asFloat(g.TotalScore)
	if !ok || overridden || total < 0 || total > maxTotalScore {
		total = math.Round(maxTotalScore * sum / (maxQuestionScore * float64(count)))
	}
	total = clamp(total, 0, maxTotalScore)
	res.TotalScore = &total
	return res
}

// exactMatch scores an indexed question against the selected option.
func exactMatch(q GradeQuestion, selected any) (float64, bool) {
	if !q.Type.Indexed() || selected == nil {
		return 0, false
	}
	options := q.Options
	switch {
	case q.Type == TypeTrueFalse:
		options = trueFalseOptions
	case len(options) == 0:
		options = padOptions(nil)
	}
	want, ok := resolveIndex(q.Type, q.Answer, options)
	if !ok {
		return 0, false
	}
	got, ok := resolveIndex(q.Type, selected, options)
	if !ok {
		return 0, true
	}
	if got == want {
		return maxQuestionScore, true
	}
	return 0, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
