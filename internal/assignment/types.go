// Package assignment generates and grades quiz assignments through an ordered
// chain of backends: an agent crew, a direct model call and, for generation
// only, a deterministic mock.
package assignment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version is reported in every response.
const Version = "v0.1"

// Defaults applied to generation input.
const (
	DefaultModel        = "gemini-2.5-flash"
	DefaultTopic        = "General Islamic Studies"
	DefaultNumQuestions = 5
)

// QuestionType is the closed set of question kinds.
type QuestionType string

const (
	TypeMCQ         QuestionType = "mcq"
	TypeShortAnswer QuestionType = "short-answer"
	TypeTrueFalse   QuestionType = "true-false"
	TypeEssay       QuestionType = "essay"
)

// ParseQuestionType maps free text onto the closed set, defaulting to mcq.
func ParseQuestionType(s string) QuestionType {
	switch t := QuestionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeMCQ, TypeShortAnswer, TypeTrueFalse, TypeEssay:
		return t
	default:
		return TypeMCQ
	}
}

// Indexed reports whether answers of this type are option indexes.
func (t QuestionType) Indexed() bool {
	return t == TypeMCQ || t == TypeTrueFalse
}

// Question is one generated question. Answer is an int index for mcq and
// true-false, a string or nil otherwise.
type Question struct {
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options,omitempty"`
	Answer  any          `json:"answer,omitempty"`
}

// Count is an optional integer field. It accepts JSON numbers with no
// fractional part and numeric strings; any other value leaves it unset so
// the defaults apply.
type Count struct {
	N   int
	Set bool
}

// CountOf returns a set Count.
func CountOf(n int) Count {
	return Count{N: n, Set: true}
}

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Count{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if n, ok := asInt(raw); ok {
		*c = CountOf(n)
	} else {
		*c = Count{}
	}
	return nil
}

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(c.N)), nil
}

// AISpec describes what to generate.
type AISpec struct {
	Topic            string `json:"topic"`
	NumQuestions     Count  `json:"numQuestions"`
	MCQCount         Count  `json:"mcqCount"`
	ShortAnswerCount Count  `json:"shortAnswerCount"`
	TrueFalseCount   Count  `json:"trueFalseCount"`
	EssayCount       Count  `json:"essayCount"`
	Difficulty       string `json:"difficulty"`
}

// CreateRequest is the generation input read from stdin.
type CreateRequest struct {
	Model       string `json:"model"`
	AISpec      AISpec `json:"aiSpec"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateResponse is the generation output.
type CreateResponse struct {
	Questions []Question `json:"questions"`
	Sources   []string   `json:"sources"`
	Model     string     `json:"model"`
	Version   string     `json:"version"`
	LatencyMs int64      `json:"latencyMs"`
}

// Spec is a CreateRequest with defaults applied.
type Spec struct {
	Model        string
	Topic        string
	Description  string
	Difficulty   string
	NumQuestions int
	MCQ          Count
	ShortAnswer  Count
	TrueFalse    Count
	Essay        Count
}

// HasCounts reports whether any per-type count was requested.
func (s Spec) HasCounts() bool {
	for _, c := range []Count{s.MCQ, s.ShortAnswer, s.TrueFalse, s.Essay} {
		if c.Set && c.N >= 0 {
			return true
		}
	}
	return false
}

// ResolveSpec applies defaults. fallbackModel is used when the request names
// no model; an empty fallback means DefaultModel.
func ResolveSpec(req CreateRequest, fallbackModel string) Spec {
	model := firstNonEmpty(req.Model, fallbackModel, DefaultModel)
	n := req.AISpec.NumQuestions.N
	if n <= 0 {
		n = DefaultNumQuestions
	}
	return Spec{
		Model:        model,
		Topic:        firstNonEmpty(req.AISpec.Topic, req.Title, DefaultTopic),
		Description:  req.Description,
		Difficulty:   req.AISpec.Difficulty,
		NumQuestions: n,
		MCQ:          req.AISpec.MCQCount,
		ShortAnswer:  req.AISpec.ShortAnswerCount,
		TrueFalse:    req.AISpec.TrueFalseCount,
		Essay:        req.AISpec.EssayCount,
	}
}

// GradeQuestion is a question of the assignment being graded.
type GradeQuestion struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options,omitempty"`
	Answer  any          `json:"answer,omitempty"`

	// Rubric is passed to the grader as given: usually an object of criteria
	// and totalPoints, sometimes plain text.
	Rubric json.RawMessage `json:"rubric,omitempty"`
}

func (q *GradeQuestion) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID flexID          `json:"_id"`
		ID      flexID          `json:"id"`
		Type    string          `json:"type"`
		Prompt  string          `json:"prompt"`
		Options []any           `json:"options"`
		Answer  any             `json:"answer"`
		Rubric  json.RawMessage `json:"rubric"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = GradeQuestion{
		ID:      firstNonEmpty(string(raw.MongoID), string(raw.ID)),
		Type:    ParseQuestionType(raw.Type),
		Prompt:  raw.Prompt,
		Options: optionStrings(raw.Options),
		Answer:  raw.Answer,
		Rubric:  rubric(raw.Rubric),
	}
	return nil
}

func rubric(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// SubmittedAnswer is one student answer.
type SubmittedAnswer struct {
	QuestionID     string `json:"questionId"`
	AnswerText     string `json:"answerText,omitempty"`
	SelectedOption any    `json:"selectedOption,omitempty"`
}

func (a *SubmittedAnswer) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID     flexID `json:"questionId"`
		AnswerText     string `json:"answerText"`
		SelectedOption any    `json:"selectedOption"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = SubmittedAnswer{
		QuestionID:     string(raw.QuestionID),
		AnswerText:     raw.AnswerText,
		SelectedOption: raw.SelectedOption,
	}
	return nil
}

// GradeRequest is the grading input read from stdin.
type GradeRequest struct {
	Model      string `json:"model"`
	Assignment struct {
		Questions []GradeQuestion `json:"questions"`
	} `json:"assignment"`
	Submission struct {
		Answers []SubmittedAnswer `json:"answers"`
	} `json:"submission"`
}

// QuestionGrade is the grade of one question. A nil Score means the question
// needs manual grading.
type QuestionGrade struct {
	QuestionID string   `json:"questionId"`
	Score      *float64 `json:"score"`
	Feedback   string   `json:"feedback"`
}

// GradeResult is a finalized grade. TotalScore is nil when nothing could be
// graded automatically.
type GradeResult struct {
	PerQuestion []QuestionGrade `json:"perQuestion"`
	TotalScore  *float64        `json:"totalScore"`
	Feedback    string          `json:"feedback"`
	HasEssays   bool            `json:"hasEssays,omitempty"`
}

// GradeResponse is the grading output.
type GradeResponse struct {
	GradeResult
	Model     string `json:"model"`
	Version   string `json:"version"`
	LatencyMs int64  `json:"latencyMs"`
}

// ErrorResponse is written to stdout on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// flexID accepts a string or a number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = ""
	case string:
		*f = flexID(v)
	case float64:
		*f = flexID(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("unsupported id %s", data)
	}
	return nil
}

// asInt converts integral numbers and numeric strings.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// asFloat converts numbers and numeric strings.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func optionStrings(raw []any) []string {
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, o := range raw {
		switch v := o.(type) {
		case nil:
			out = append(out, "")
		case string:
			out = append(out, v)
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
