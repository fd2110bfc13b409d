package sender

import (
	"fmt"
	"html"
	"strings"
)

// BuildEmailContent renders the HTML body for an email notification. Title
// and message are user-supplied and escaped before interpolation.
func BuildEmailContent(title, message string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(title)))
	b.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(message)))
	b.WriteString("<hr/>")
	b.WriteString("<p style=\"color:#888;font-size:12px\">This is an automated notification. Please do not reply to this email.</p>")
	b.WriteString("</body></html>")
	return b.String()
}
