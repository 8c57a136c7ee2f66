package ai

import (
	"regexp"
	"strings"
)

// BulletGlyph replaces every markdown list marker.
const BulletGlyph = "•"

var bulletPattern = regexp.MustCompile(`^(\s*)[*+\-•]\s+`)

// FormatReply normalizes list markers to BulletGlyph and separates every
// non-blank line with a blank line. Inline emphasis such as **bold** is kept.
func FormatReply(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		line = bulletPattern.ReplaceAllString(line, "${1}"+BulletGlyph+" ")
		out = append(out, line)
	}
	return strings.Join(out, "\n\n")
}
