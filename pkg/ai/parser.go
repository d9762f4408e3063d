package ai

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Criterion met values after coercion.
const (
	CriterionMet     = "true"
	CriterionUnmet   = "false"
	CriterionPartial = "partial"
)

// Criterion is one rubric line of an evaluation.
type Criterion struct {
	Name    string `json:"name"`
	Met     string `json:"met"`
	Comment string `json:"comment"`
}

// EvaluationResult is the structured grading object recovered from raw model
// text. A nil Grade means the model did not commit to a number and the
// submission needs human review.
type EvaluationResult struct {
	Grade           *float64    `json:"grade"`
	Feedback        string      `json:"feedback"`
	Criteria        []Criterion `json:"criteria"`
	KeywordsFound   []string    `json:"keywords_found"`
	KeywordsMissing []string    `json:"keywords_missing"`
	Suggestions     []string    `json:"suggestions"`
}

// SummaryResult is the structured synthesis recovered from a summary call.
type SummaryResult struct {
	Difficulties       []string `json:"difficulties"`
	Strengths          []string `json:"strengths"`
	Recommendations    []string `json:"recommendations"`
	GeneralObservation string   `json:"general_observation"`
}

type rawCriterion struct {
	Name    string          `json:"name"`
	Met     json.RawMessage `json:"met"`
	Comment string          `json:"comment"`
}

type rawEvaluation struct {
	Grade           json.RawMessage `json:"grade"`
	Feedback        string          `json:"feedback"`
	Criteria        []rawCriterion  `json:"criteria"`
	KeywordsFound   []any           `json:"keywords_found"`
	KeywordsMissing []any           `json:"keywords_missing"`
	Suggestions     []any           `json:"suggestions"`
}

type rawSummary struct {
	Difficulties       []any  `json:"difficulties"`
	Strengths          []any  `json:"strengths"`
	Recommendations    []any  `json:"recommendations"`
	GeneralObservation string `json:"general_observation"`
}

// ParseEvaluation converts raw provider text into an EvaluationResult.
// It tries the text as-is, then with a Markdown fence stripped, then the
// first top-level JSON object embedded in surrounding prose. Missing fields
// never fail: lists default to empty and the grade to nil. Only a text with
// no recoverable JSON object yields a *ParseError.
func ParseEvaluation(raw string) (EvaluationResult, error) {
	var data rawEvaluation
	if err := decodeFirst(raw, &data); err != nil {
		return EvaluationResult{}, err
	}

	return EvaluationResult{
		Grade:           coerceGrade(data.Grade),
		Feedback:        strings.TrimSpace(data.Feedback),
		Criteria:        coerceCriteria(data.Criteria),
		KeywordsFound:   coerceStringList(data.KeywordsFound),
		KeywordsMissing: coerceStringList(data.KeywordsMissing),
		Suggestions:     coerceStringList(data.Suggestions),
	}, nil
}

// ParseSummary applies the same extraction strategy to a synthesis response.
func ParseSummary(raw string) (SummaryResult, error) {
	var data rawSummary
	if err := decodeFirst(raw, &data); err != nil {
		return SummaryResult{}, err
	}

	return SummaryResult{
		Difficulties:       coerceStringList(data.Difficulties),
		Strengths:          coerceStringList(data.Strengths),
		Recommendations:    coerceStringList(data.Recommendations),
		GeneralObservation: strings.TrimSpace(data.GeneralObservation),
	}, nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.+?)\\s*```")

func decodeFirst(raw string, target any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ParseError{Reason: "empty response", Raw: raw}
	}

	candidates := []string{trimmed}
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		candidates = append(candidates, match[1])
	}
	if block, ok := firstJSONObject(trimmed); ok {
		candidates = append(candidates, block)
	}

	for _, candidate := range candidates {
		if json.Unmarshal([]byte(candidate), target) == nil {
			return nil
		}
	}
	return &ParseError{Reason: "no JSON object recoverable", Raw: raw}
}

// firstJSONObject returns the first balanced top-level {...} block, skipping
// braces inside string literals.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func coerceGrade(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil
		}
		number = parsed
	}

	if number < 0 {
		number = 0
	}
	if number > MaxGrade {
		number = MaxGrade
	}
	return &number
}

func coerceCriteria(raw []rawCriterion) []Criterion {
	criteria := make([]Criterion, 0, len(raw))
	for _, item := range raw {
		criteria = append(criteria, Criterion{
			Name:    strings.TrimSpace(item.Name),
			Met:     coerceMet(item.Met),
			Comment: strings.TrimSpace(item.Comment),
		})
	}
	return criteria
}

func coerceMet(raw json.RawMessage) string {
	if len(raw) == 0 {
		return CriterionUnmet
	}

	var flag bool
	if json.Unmarshal(raw, &flag) == nil {
		if flag {
			return CriterionMet
		}
		return CriterionUnmet
	}

	var text string
	if json.Unmarshal(raw, &text) == nil {
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true", "yes", "met":
			return CriterionMet
		case "partial", "partially":
			return CriterionPartial
		}
	}
	return CriterionUnmet
}

func coerceStringList(raw []any) []string {
	list := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				list = append(list, trimmed)
			}
		case float64:
			list = append(list, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return list
}
