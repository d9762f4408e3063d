package ai

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DisplayOptions mirrors the per-field visibility flags chosen by the teacher.
type DisplayOptions struct {
	ShowFeedback        bool
	ShowCriteria        bool
	ShowKeywordsFound   bool
	ShowKeywordsMissing bool
	ShowSuggestions     bool
}

// AllVisible returns options with every section shown.
func AllVisible() DisplayOptions {
	return DisplayOptions{
		ShowFeedback:        true,
		ShowCriteria:        true,
		ShowKeywordsFound:   true,
		ShowKeywordsMissing: true,
		ShowSuggestions:     true,
	}
}

// UGC policy, widened to keep the ai-* classes the activity view styles on.
var displayPolicy = func() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9\s_-]+$`)).OnElements("div", "p", "ul", "li", "span")
	return policy
}()

// FormatForDisplay renders an evaluation as an HTML block for the teacher
// review view. All model- and user-supplied text is escaped, and the final
// markup passes through a sanitizing policy.
func FormatForDisplay(result EvaluationResult, opts DisplayOptions) string {
	builder := strings.Builder{}
	builder.WriteString(`<div class="ai-evaluation">`)

	if result.Grade != nil {
		builder.WriteString(fmt.Sprintf(`<p class="ai-grade">%s / %.0f</p>`, html.EscapeString(formatGrade(*result.Grade)), MaxGrade))
	} else {
		builder.WriteString(`<p class="ai-grade ai-grade-pending">ungraded</p>`)
	}

	if opts.ShowFeedback && result.Feedback != "" {
		builder.WriteString(`<p class="ai-feedback">` + html.EscapeString(result.Feedback) + `</p>`)
	}

	if opts.ShowCriteria && len(result.Criteria) > 0 {
		builder.WriteString(`<ul class="ai-criteria">`)
		for _, criterion := range result.Criteria {
			builder.WriteString(fmt.Sprintf(`<li class="ai-criterion ai-criterion-%s">%s`,
				html.EscapeString(criterion.Met), html.EscapeString(criterion.Name)))
			if criterion.Comment != "" {
				builder.WriteString(` <span class="ai-criterion-comment">` + html.EscapeString(criterion.Comment) + `</span>`)
			}
			builder.WriteString(`</li>`)
		}
		builder.WriteString(`</ul>`)
	}

	if opts.ShowKeywordsFound {
		writeKeywordList(&builder, "ai-keywords-found", result.KeywordsFound)
	}
	if opts.ShowKeywordsMissing {
		writeKeywordList(&builder, "ai-keywords-missing", result.KeywordsMissing)
	}

	if opts.ShowSuggestions && len(result.Suggestions) > 0 {
		builder.WriteString(`<ul class="ai-suggestions">`)
		for _, suggestion := range result.Suggestions {
			builder.WriteString(`<li>` + html.EscapeString(suggestion) + `</li>`)
		}
		builder.WriteString(`</ul>`)
	}

	builder.WriteString(`</div>`)
	return displayPolicy.Sanitize(builder.String())
}

func writeKeywordList(builder *strings.Builder, class string, keywords []string) {
	if len(keywords) == 0 {
		return
	}
	builder.WriteString(`<ul class="` + class + `">`)
	for _, keyword := range keywords {
		builder.WriteString(`<li>` + html.EscapeString(keyword) + `</li>`)
	}
	builder.WriteString(`</ul>`)
}

func formatGrade(grade float64) string {
	text := fmt.Sprintf("%.2f", grade)
	text = strings.TrimRight(text, "0")
	return strings.TrimRight(text, ".")
}
