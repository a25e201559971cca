package assignment

import (
	"context"
	"fmt"
)

// MockSources are cited by mock assignments.
var MockSources = []string{"Quran 2:255", "Sahih Bukhari"}

// Allocation is the number of questions of each type.
type Allocation struct {
	MCQ         int
	TrueFalse   int
	ShortAnswer int
	Essay       int
}

// Total returns the number of questions allocated.
func (a Allocation) Total() int {
	return a.MCQ + a.TrueFalse + a.ShortAnswer + a.Essay
}

// Allocate splits total across types. Requested counts are honored when they
// sum to total. Otherwise each count is cut to the remaining budget in the
// order mcq, true-false, short-answer, essay, and the leftover goes to mcq.
// An absent mcq count means total; other absent counts mean zero.
func Allocate(total int, mcq, trueFalse, shortAnswer, essay Count) Allocation {
	get := func(c Count, def int) int {
		if !c.Set {
			return def
		}
		return max(c.N, 0)
	}
	a := Allocation{
		MCQ:         get(mcq, total),
		TrueFalse:   get(trueFalse, 0),
		ShortAnswer: get(shortAnswer, 0),
		Essay:       get(essay, 0),
	}
	if a.Total() == total {
		return a
	}

	remaining := total
	take := func(n int) int {
		n = min(n, remaining)
		remaining -= n
		return n
	}
	a.MCQ = take(a.MCQ)
	a.TrueFalse = take(a.TrueFalse)
	a.ShortAnswer = take(a.ShortAnswer)
	a.Essay = take(a.Essay)
	a.MCQ += remaining
	return a
}

// MockGenerator produces placeholder questions. It never fails.
type MockGenerator struct{}

// Name returns the tier name.
func (MockGenerator) Name() string { return "mock" }

// Generate builds mcq, short-answer, essay and true-false questions, in that order.
func (MockGenerator) Generate(_ context.Context, spec Spec) ([]Question, error) {
	a := Allocate(spec.NumQuestions, spec.MCQ, spec.TrueFalse, spec.ShortAnswer, spec.Essay)
	topic := spec.Topic

	out := make([]Question, 0, a.Total())
	for i := range a.MCQ {
		out = append(out, Question{
			Type:    TypeMCQ,
			Prompt:  fmt.Sprintf("MCQ %d on %s: Which option is correct?", i+1, topic),
			Options: padOptions(nil),
			Answer:  0,
		})
	}
	for i := range a.ShortAnswer {
		out = append(out, Question{
			Type:   TypeShortAnswer,
			Prompt: fmt.Sprintf("Short answer %d on %s: Provide a brief answer.", i+1, topic),
		})
	}
	for i := range a.Essay {
		out = append(out, Question{
			Type:   TypeEssay,
			Prompt: fmt.Sprintf("Essay %d on %s: Write a detailed response with references.", i+1, topic),
		})
	}
	for i := range a.TrueFalse {
		out = append(out, Question{
			Type:    TypeTrueFalse,
			Prompt:  fmt.Sprintf("True/False %d on %s: This statement is true.", i+1, topic),
			Options: append([]string(nil), trueFalseOptions...),
			Answer:  0,
		})
	}
	return out, nil
}
