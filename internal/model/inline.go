package model

import (
	"path/filepath"
	"regexp"
	"strings"
)

// inlineRefPattern matches cid:/cd: URI references in HTML attribute values,
// e.g. <img src="cid:abc123">. The scheme is case-insensitive and the
// identifier is restricted to word characters plus ".", "%", "*", "@", "-".
var inlineRefPattern = regexp.MustCompile(`(?i)(?:cid|cd):([\w.%*@-]+)`)

// FindInlinePlaceholders scans HTML for inline attachment references and
// returns every match keyed by the referenced identifier. When an identifier
// repeats, the last occurrence wins.
func FindInlinePlaceholders(html string) map[string]string {
	found := make(map[string]string)
	for _, m := range inlineRefPattern.FindAllStringSubmatch(html, -1) {
		found[m[1]] = m[0]
	}
	return found
}

// ResolveInlineHTML rewrites the message's HTML body, replacing every inline
// placeholder that refers to a known attachment with
// <baseURI>/<basename of the attachment's file>. Placeholders with no
// matching attachment, and attachments that were never written to disk, are
// left untouched. Substitution is purely textual; the HTML is not re-parsed.
func (m *Message) ResolveInlineHTML(baseURI string) string {
	html := m.TextHTML
	if html == "" {
		return html
	}

	base := strings.TrimRight(baseURI, "/") + "/"

	for id, placeholder := range FindInlinePlaceholders(html) {
		att, ok := m.AttachmentByID(id)
		if !ok || att.FilePath == "" {
			continue
		}
		html = strings.ReplaceAll(html, placeholder, base+filepath.Base(att.FilePath))
	}

	return html
}
