// Package sanitizer converts email HTML to prompt-safe plain text and renders
// drafted reply text as minimal, safe HTML.
package sanitizer

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	scriptRegex    = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	styleRegex     = regexp.MustCompile(`(?i)<style[^>]*>[\s\S]*?</style>`)
	noscriptRegex  = regexp.MustCompile(`(?i)<noscript[^>]*>[\s\S]*?</noscript>`)
	lineBreakRegex = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6]|blockquote)\s*>`)
	blankRunRegex  = regexp.MustCompile(`\n{3,}`)
	spaceRunRegex  = regexp.MustCompile(`[ \t\f\r\v]+`)
)

// Sanitizer strips inbound HTML and builds outbound reply HTML
type Sanitizer struct {
	strict *bluemonday.Policy
	reply  *bluemonday.Policy
	ugc    *bluemonday.Policy
}

// New creates a Sanitizer with a strict inbound policy and a paragraph-only outbound policy
func New() *Sanitizer {
	reply := bluemonday.NewPolicy()
	reply.AllowElements("p", "br")

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		reply:  reply,
		ugc:    bluemonday.UGCPolicy(),
	}
}

// RemoveScripts removes script, style and noscript elements with their content
func (s *Sanitizer) RemoveScripts(body string) string {
	if body == "" {
		return ""
	}
	result := scriptRegex.ReplaceAllString(body, "")
	result = styleRegex.ReplaceAllString(result, "")
	return noscriptRegex.ReplaceAllString(result, "")
}

// ToPlainText turns an email body into plain text for a model prompt.
// Block boundaries become newlines and entities are decoded.
func (s *Sanitizer) ToPlainText(body string) string {
	if body == "" {
		return ""
	}

	result := s.RemoveScripts(body)
	result = lineBreakRegex.ReplaceAllString(result, "$0\n")
	result = s.strict.Sanitize(result)
	result = html.UnescapeString(result)

	lines := strings.Split(result, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRegex.ReplaceAllString(line, " "))
	}
	result = strings.Join(lines, "\n")
	result = blankRunRegex.ReplaceAllString(result, "\n\n")

	return strings.TrimSpace(result)
}

// ReplyHTML wraps reply text in a single paragraph, newlines becoming <br/>
func (s *Sanitizer) ReplyHTML(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br/>")
	return s.reply.Sanitize("<p>" + escaped + "</p>")
}

// SafeHTML keeps formatting markup but drops scripts, handlers and unsafe URLs.
// Used for model-written compose bodies and for message bodies shown to the user.
func (s *Sanitizer) SafeHTML(body string) string {
	if body == "" {
		return ""
	}
	return strings.TrimSpace(s.ugc.Sanitize(s.RemoveScripts(body)))
}
