package dispatch

import (
	"regexp"
	"strings"

	"github.com/sells-group/leadflow/internal/model"
)

var placeholder = regexp.MustCompile(`{{\s*(\w+)\s*}}`)

var htmlTag = regexp.MustCompile(`<[^>]*>`)
var blankLines = regexp.MustCompile(`\n\s*\n`)

// Tokens resolves the placeholder vocabulary for one record.
func Tokens(r model.Record, senderName string) map[string]string {
	name := strings.Fields(r.String(model.FieldName))
	first := r.String(model.FieldFirstName)
	if first == "" && len(name) > 0 {
		first = name[0]
	}
	if first == "" {
		first = "there"
	}
	last := r.String(model.FieldLastName)
	if last == "" && len(name) > 1 {
		last = strings.Join(name[1:], " ")
	}
	company := r.String(model.FieldCompany)
	if company == "" {
		company = "your firm"
	}
	return map[string]string{
		"firstName":  first,
		"lastName":   last,
		"company":    company,
		"title":      r.String(model.FieldTitle),
		"location":   r.String(model.FieldLocation),
		"senderName": senderName,
	}
}

// Render substitutes {{ name }} placeholders. Unknown names render empty.
func Render(tmpl string, r model.Record, senderName string) string {
	tokens := Tokens(r, senderName)
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		return tokens[key]
	})
}

// PlainText strips tags from an HTML body.
func PlainText(html string) string {
	text := htmlTag.ReplaceAllString(html, "")
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n"))
}
