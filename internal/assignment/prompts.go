package assignment

import (
	"encoding/json"
	"fmt"
	"strings"
)

func countText(c Count) string {
	if !c.Set {
		return "None"
	}
	return fmt.Sprint(c.N)
}

func countsLine(spec Spec) string {
	return fmt.Sprintf("mcq: %s, true-false: %s, short-answer: %s, essay: %s.",
		countText(spec.MCQ), countText(spec.TrueFalse), countText(spec.ShortAnswer), countText(spec.Essay))
}

// agentInstructions is the crew task for question generation.
func agentInstructions(spec Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %d concise questions about '%s'. Target counts -> %s ", spec.NumQuestions, spec.Topic, countsLine(spec))
	writeContext(&b, spec)
	b.WriteString("Return ONLY a JSON array of objects: {type, prompt, options(for mcq or true-false), answer(index or text)}. ")
	b.WriteString("MCQs must have exactly 4 options with one correct index. true-false must have options ['True','False'] and correct index.")
	return b.String()
}

// directPrompt is the single-shot generation prompt.
func directPrompt(spec Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %d concise, fair questions about '%s' for Islamic education.\n", spec.NumQuestions, spec.Topic)
	writeContext(&b, spec)
	b.WriteString("Use JSON array of objects: type (mcq|short-answer|true-false|essay), prompt, options (for mcq or true-false), answer (index or text).\n")
	b.WriteString("MCQs must include exactly 4 options and specify the correct answer index. For true-false, options should be ['True','False'] and answer an index (0 or 1).")
	if spec.HasCounts() {
		fmt.Fprintf(&b, " Aim for counts -> %s", countsLine(spec))
	}
	return b.String()
}

func writeContext(b *strings.Builder, spec Spec) {
	if spec.Difficulty != "" {
		fmt.Fprintf(b, "Difficulty: %s. ", spec.Difficulty)
	}
	if d := strings.TrimSpace(spec.Description); d != "" {
		fmt.Fprintf(b, "Assignment description: %s\n", d)
	}
}

// gradingInstructions asks for a JSON grade of the auto-graded questions.
func gradingInstructions(questions []GradeQuestion, answers []SubmittedAnswer) (string, error) {
	qs, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}
	if answers == nil {
		answers = []SubmittedAnswer{}
	}
	as, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal answers: %w", err)
	}

	return fmt.Sprintf(`Grade this student's submission carefully and fairly.

GRADING RULES:
1. Multiple choice: award 10 points only if selectedOption matches the correct answer index exactly, otherwise 0.
2. True/False: award 10 points only if selectedOption matches the correct answer exactly, otherwise 0.
3. Short answer: award 0-10 points for accuracy and completeness. Give 0 for wrong answers and partial credit only for partially correct ones.
4. Do not award points because an answer exists. It must be correct.
5. When a question has a rubric, score it against the rubric's criteria, scaled to 0-10.

Questions with correct answers:
%s

Student's submitted answers:
%s

Return ONLY a JSON object with this structure, no markdown:
{
  "perQuestion": [
    {"questionId": "the question id", "score": 0-10, "feedback": "why this score was given"}
  ],
  "totalScore": 0-100,
  "feedback": "overall assessment of the submission"
}`, qs, as), nil
}
