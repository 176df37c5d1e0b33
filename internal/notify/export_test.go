package notify

import (
	"text/template"

	"alertrules/internal/templatefmt"
)

type templateT = template.Template

func parseForTest(body string) (*template.Template, error) {
	return templatefmt.ParseNotificationTemplate("test", body)
}
