package nl2sql

import (
	"regexp"
	"strings"
)

var fencedSQLPattern = regexp.MustCompile("(?i)```(?:sql)?\\s*([\\s\\S]*?)```")

// ExtractSQL returns the body of the first fenced code block in text, or the
// whole trimmed text when there is none.
func ExtractSQL(text string) string {
	if match := fencedSQLPattern.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(text)
}
