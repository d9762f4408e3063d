package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxGrade is the grading scale ceiling used across the workflow.
const MaxGrade = 20.0

const truncationMarker = "\n[... submission truncated to fit the model context ...]"

// PromptInput carries everything needed to build an evaluation exchange.
type PromptInput struct {
	StepName        string
	SubmissionText  string
	ReferenceAnswer string
	Instructions    string
}

// BuildEvaluationPrompts assembles the system and user prompts for grading
// one submission. budgetTokens bounds the estimated size of both prompts
// combined; when exceeded, the submission body is truncated first since the
// reference answer and the output contract must survive intact.
func BuildEvaluationPrompts(input PromptInput, budgetTokens int) (string, string) {
	system := evaluationSystemPrompt()
	user := buildEvaluationUserPrompt(input)

	if budgetTokens > 0 && EstimateTokens(system)+EstimateTokens(user) > budgetTokens {
		overheadTokens := EstimateTokens(system) + EstimateTokens(buildEvaluationUserPrompt(PromptInput{
			StepName:        input.StepName,
			ReferenceAnswer: input.ReferenceAnswer,
			Instructions:    input.Instructions,
		}))
		allowed := (budgetTokens - overheadTokens) * 4
		allowed -= len(truncationMarker)
		if allowed < 0 {
			allowed = 0
		}
		if allowed < len(input.SubmissionText) {
			// Back off to a rune boundary so the cut never produces
			// invalid UTF-8 in the request body.
			for allowed > 0 && !utf8.RuneStart(input.SubmissionText[allowed]) {
				allowed--
			}
			input.SubmissionText = input.SubmissionText[:allowed] + truncationMarker
			user = buildEvaluationUserPrompt(input)
		}
	}

	return system, user
}

func evaluationSystemPrompt() string {
	return fmt.Sprintf(`You are an experienced engineering teacher grading a student project deliverable on a 0-%.0f scale.
Respond with a single JSON object and nothing else, using exactly these keys:
{
  "grade": <number between 0 and %.0f>,
  "feedback": "<overall feedback for the student>",
  "criteria": [{"name": "<criterion>", "met": true|false|"partial", "comment": "<short comment>"}],
  "keywords_found": ["<expected notion present in the submission>"],
  "keywords_missing": ["<expected notion absent from the submission>"],
  "suggestions": ["<concrete improvement suggestion>"]
}
Do not wrap the JSON in Markdown fences and do not add surrounding prose.`, MaxGrade, MaxGrade)
}

func buildEvaluationUserPrompt(input PromptInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Workflow step\n")
	builder.WriteString(input.StepName)
	builder.WriteString("\n\n## Student submission\n")
	builder.WriteString(input.SubmissionText)
	if input.ReferenceAnswer != "" {
		builder.WriteString("\n\n## Teacher reference answer\n")
		builder.WriteString(input.ReferenceAnswer)
	}
	if input.Instructions != "" {
		builder.WriteString("\n\n## Grading instructions\n")
		builder.WriteString(input.Instructions)
	}
	builder.WriteString("\n\nGrade the submission against the reference and instructions. Return JSON.")
	return builder.String()
}

// SummaryEvidence is one completed evaluation contributing to a step synthesis.
type SummaryEvidence struct {
	Grade           *float64
	Feedback        string
	KeywordsMissing []string
	Suggestions     []string
}

// BuildSummaryPrompt assembles the system and user prompts for the aggregate
// step synthesis across all graded submissions.
func BuildSummaryPrompt(evidence []SummaryEvidence, stepName string) (string, string) {
	system := `You are an experienced engineering teacher reviewing AI-graded submissions for one project step.
Synthesize the class-wide picture. Respond with a single JSON object and nothing else, using exactly these keys:
{
  "difficulties": ["<recurring difficulty observed across submissions>"],
  "strengths": ["<recurring strength observed across submissions>"],
  "recommendations": ["<recommendation for the teacher>"],
  "general_observation": "<one paragraph overall observation>"
}
Do not wrap the JSON in Markdown fences and do not add surrounding prose.`

	builder := strings.Builder{}
	builder.WriteString("# Workflow step\n")
	builder.WriteString(stepName)
	builder.WriteString(fmt.Sprintf("\n\n# Graded submissions (%d)\n", len(evidence)))
	for i, item := range evidence {
		builder.WriteString(fmt.Sprintf("\n## Submission %d\n", i+1))
		if item.Grade != nil {
			builder.WriteString(fmt.Sprintf("Grade: %.1f/%.0f\n", *item.Grade, MaxGrade))
		}
		builder.WriteString("Feedback: ")
		builder.WriteString(item.Feedback)
		if len(item.KeywordsMissing) > 0 {
			builder.WriteString("\nMissing notions: ")
			builder.WriteString(strings.Join(item.KeywordsMissing, ", "))
		}
		if len(item.Suggestions) > 0 {
			builder.WriteString("\nSuggestions: ")
			builder.WriteString(strings.Join(item.Suggestions, "; "))
		}
		builder.WriteString("\n")
	}
	builder.WriteString("\nSynthesize the difficulties, strengths and recommendations. Return JSON.")

	return system, builder.String()
}
