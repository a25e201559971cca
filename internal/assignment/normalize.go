package assignment

import (
	"fmt"
	"strings"
)

// mcqOptionCount is the exact number of options of a multiple-choice question.
const mcqOptionCount = 4

var trueFalseOptions = []string{"True", "False"}

// rawQuestion is a question as a backend returned it.
type rawQuestion struct {
	Type    string `json:"type"`
	Prompt  string `json:"prompt"`
	Options []any  `json:"options"`
	Answer  any    `json:"answer"`
}

// NormalizeQuestions coerces backend output onto the question schema and
// drops questions without a prompt.
func NormalizeQuestions(raw []rawQuestion) []Question {
	out := make([]Question, 0, len(raw))
	for _, r := range raw {
		prompt := strings.TrimSpace(r.Prompt)
		if prompt == "" {
			continue
		}
		q := Question{Type: ParseQuestionType(r.Type), Prompt: prompt}

		switch q.Type {
		case TypeMCQ:
			q.Options = padOptions(optionStrings(r.Options))
			q.Answer = coerceIndex(q.Type, r.Answer, q.Options)
		case TypeTrueFalse:
			q.Options = append([]string(nil), trueFalseOptions...)
			q.Answer = coerceIndex(q.Type, r.Answer, q.Options)
		default:
			q.Answer = answerText(r.Answer)
		}
		out = append(out, q)
	}
	return out
}

// padOptions returns exactly four options, filling blanks and missing slots
// with "Option A".."Option D".
func padOptions(options []string) []string {
	out := make([]string, mcqOptionCount)
	for i := range out {
		if i < len(options) && strings.TrimSpace(options[i]) != "" {
			out[i] = strings.TrimSpace(options[i])
			continue
		}
		out[i] = placeholderOption(i)
	}
	return out
}

func placeholderOption(i int) string {
	return fmt.Sprintf("Option %c", 'A'+i)
}

// coerceIndex maps an answer onto an option index, or 0 when it cannot.
func coerceIndex(t QuestionType, answer any, options []string) int {
	if i, ok := resolveIndex(t, answer, options); ok {
		return i
	}
	return 0
}

// resolveIndex converts an answer to an in-range option index:
//   - integers and integral floats are taken as the index;
//   - numeric strings are parsed;
//   - a string equal to an option, ignoring case, selects that option;
//   - for mcq a single letter A-D selects 0-3;
//   - for true-false booleans and "true"/"false" select 0/1.
func resolveIndex(t QuestionType, answer any, options []string) (int, bool) {
	n := len(options)
	inRange := func(i int) (int, bool) { return i, i >= 0 && i < n }

	switch v := answer.(type) {
	case nil:
		return 0, false
	case bool:
		if t != TypeTrueFalse {
			return 0, false
		}
		if v {
			return 0, true
		}
		return 1, true
	case string:
		s := strings.TrimSpace(v)
		if i, ok := asInt(s); ok {
			return inRange(i)
		}
		for i, o := range options {
			if strings.EqualFold(strings.TrimSpace(o), s) {
				return i, true
			}
		}
		if t == TypeTrueFalse {
			switch strings.ToLower(s) {
			case "true":
				return 0, true
			case "false":
				return 1, true
			}
		}
		if t == TypeMCQ && len(s) == 1 {
			c := strings.ToUpper(s)[0]
			if c >= 'A' && c < 'A'+mcqOptionCount {
				return inRange(int(c - 'A'))
			}
		}
		return 0, false
	default:
		if i, ok := asInt(v); ok {
			return inRange(i)
		}
		return 0, false
	}
}

// answerText keeps free-text answers; non-string values are rendered.
func answerText(answer any) any {
	switch v := answer.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}
