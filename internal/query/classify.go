package query

import (
	"fmt"
	"strings"
	"unicode"
)

type StatementKind string

const (
	StatementSelect StatementKind = "select"
	StatementWith   StatementKind = "with"
	StatementValues StatementKind = "values"
	StatementTable  StatementKind = "table"
)

var readOnlyKinds = map[string]StatementKind{
	"select": StatementSelect,
	"with":   StatementWith,
	"values": StatementValues,
	"table":  StatementTable,
}

// Words that never belong in a read-only statement. "into" catches
// SELECT ... INTO, which creates a table in PostgreSQL.
var forbiddenWords = map[string]struct{}{
	"insert":   {},
	"update":   {},
	"delete":   {},
	"merge":    {},
	"upsert":   {},
	"truncate": {},
	"drop":     {},
	"alter":    {},
	"create":   {},
	"grant":    {},
	"revoke":   {},
	"copy":     {},
	"call":     {},
	"into":     {},
	"vacuum":   {},
	"attach":   {},
	"detach":   {},
	"install":  {},
	"load":     {},
	"pragma":   {},
	"export":   {},
	"import":   {},
}

// ClassifyStatement accepts exactly one read-only statement and reports its
// kind. Comments, string literals and quoted identifiers are ignored while
// scanning. Rejections are *ExecutionError with CodeStatementNotAllowed.
func ClassifyStatement(sqlText string) (StatementKind, error) {
	sanitized, err := sanitize(sqlText)
	if err != nil {
		return "", err
	}
	sanitized = StripTrailingSemicolons(sanitized)
	if sanitized == "" {
		return "", notAllowed("statement is empty")
	}
	if strings.Contains(sanitized, ";") {
		return "", notAllowed("only a single statement is allowed")
	}

	words := strings.FieldsFunc(strings.ToLower(sanitized), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(words) == 0 {
		return "", notAllowed("statement has no keyword")
	}
	kind, ok := readOnlyKinds[words[0]]
	if !ok {
		return "", notAllowed("%s statements are not allowed", strings.ToUpper(words[0]))
	}
	for _, word := range words[1:] {
		if _, bad := forbiddenWords[word]; bad {
			return "", notAllowed("statement contains %s", strings.ToUpper(word))
		}
	}
	return kind, nil
}

// PrepareStatement validates sqlText and wraps it so the store returns at most
// rowLimit+1 rows; the extra row only signals truncation.
func PrepareStatement(sqlText string, rowLimit int) (string, error) {
	if _, err := ClassifyStatement(sqlText); err != nil {
		return "", err
	}
	body := trimStatementTail(sqlText)
	if rowLimit <= 0 {
		return body, nil
	}
	return fmt.Sprintf("SELECT * FROM (\n%s\n) AS q LIMIT %d", body, rowLimit+1), nil
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// trimStatementTail drops trailing comments, semicolons and whitespace so the
// statement can sit inside a subquery. Comments before the last token stay.
func trimStatementTail(sqlText string) string {
	src := []rune(sqlText)
	end := 0
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			stop := indexFrom(src, i+2, []rune("*/"))
			if stop < 0 {
				i = len(src)
				continue
			}
			i = stop + 2
		case c == '\'' || c == '"':
			stop := closingQuote(src, i+1, c)
			if stop < 0 {
				stop = len(src) - 1
			}
			i = stop + 1
			end = i
		case c == '$':
			tag, ok := dollarTag(src, i)
			if !ok {
				i++
				end = i
				continue
			}
			stop := indexFrom(src, i+len(tag), tag)
			if stop < 0 {
				i = len(src)
			} else {
				i = stop + len(tag)
			}
			end = i
		default:
			i++
			if c != ';' && !unicode.IsSpace(c) {
				end = i
			}
		}
	}
	return strings.TrimSpace(string(src[:end]))
}

// sanitize blanks out comments, string literals, quoted identifiers and
// dollar-quoted bodies so keyword scanning only sees statement structure.
func sanitize(sqlText string) (string, error) {
	var out strings.Builder
	src := []rune(sqlText)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			out.WriteRune(' ')
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := indexFrom(src, i+2, []rune("*/"))
			if end < 0 {
				return "", notAllowed("unterminated block comment")
			}
			i = end + 2
			out.WriteRune(' ')
		case c == '\'' || c == '"':
			end := closingQuote(src, i+1, c)
			if end < 0 {
				return "", notAllowed("unterminated quoted text")
			}
			i = end + 1
			out.WriteString(" q ")
		case c == '$':
			tag, ok := dollarTag(src, i)
			if !ok {
				out.WriteRune(c)
				i++
				continue
			}
			end := indexFrom(src, i+len(tag), tag)
			if end < 0 {
				return "", notAllowed("unterminated dollar-quoted text")
			}
			i = end + len(tag)
			out.WriteString(" q ")
		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String(), nil
}

func closingQuote(src []rune, start int, quote rune) int {
	for i := start; i < len(src); i++ {
		if src[i] != quote {
			continue
		}
		if i+1 < len(src) && src[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return -1
}

// dollarTag recognises $$ and $tag$ openers; $1 style parameters are not tags.
func dollarTag(src []rune, start int) ([]rune, bool) {
	for i := start + 1; i < len(src); i++ {
		r := src[i]
		if r == '$' {
			return src[start : i+1], true
		}
		if i == start+1 && unicode.IsDigit(r) {
			return nil, false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return nil, false
		}
	}
	return nil, false
}

func indexFrom(src []rune, start int, needle []rune) int {
	for i := start; i+len(needle) <= len(src); i++ {
		match := true
		for j := range needle {
			if src[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
