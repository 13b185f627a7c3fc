package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadflow/internal/model"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		rec  model.Record
		want string
	}{
		{"fallback first name", "Hi {{firstName}}", model.Record{}, "Hi there"},
		{"first name field", "Hi {{ firstName }}", model.Record{"first_name": "Asha"}, "Hi Asha"},
		{"first token of name", "Hi {{firstName}} {{lastName}}", model.Record{"name": "Ravi Kumar Iyer"}, "Hi Ravi Kumar Iyer"},
		{"company fallback", "at {{company}}", model.Record{}, "at your firm"},
		{"sender", "- {{senderName}}", model.Record{}, "- Team"},
		{"unknown placeholder", "x{{nope}}y", model.Record{}, "xy"},
		{"title and location", "{{title}} in {{location}}", model.Record{"job_title": "CFO", "location": "Pune"}, "CFO in Pune"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, tt.rec, "Team"))
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Hello\nWorld", PlainText("<p>Hello</p>\n\n  \n<p>World</p>"))
}
