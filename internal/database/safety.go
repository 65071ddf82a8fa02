package database

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// readOnlyVerbs are the statement verbs allowed on read-only profiles.
// WITH is resolved to the verb that follows its CTE definitions before
// lookup, so it never appears here.
var readOnlyVerbs = map[string]bool{
	"select":   true,
	"values":   true,
	"explain":  true,
	"show":     true,
	"describe": true,
	"desc":     true,
}

// CheckStatement verifies a statement is allowed under the profile's write
// policy. It returns ErrReadOnly (wrapped with the verb and profile name)
// when a mutating statement reaches a read-only profile.
//
// This centralizes the read-only check so every execution path applies the
// same policy.
func CheckStatement(profile Profile, query string) error {
	verb, err := ClassifyStatement(query)
	if err != nil {
		return err
	}
	return checkVerb(profile, verb)
}

// checkVerb applies the profile's write policy to an already classified
// verb.
func checkVerb(profile Profile, verb string) error {
	if !profile.ReadOnly || readOnlyVerbs[verb] {
		return nil
	}

	return fmt.Errorf("%w: %s statements are blocked on read-only database %q",
		ErrReadOnly, cases.Title(language.English).String(verb), profile.Name)
}

// ClassifyStatement returns the lowercased leading verb of a SQL statement
// with comments and enclosing parentheses stripped. WITH statements
// classify as the verb following their CTE definitions, so a CTE feeding a
// DELETE classifies as delete.
func ClassifyStatement(query string) (string, error) {
	s := stripLeadingComments(query)
	s = strings.TrimLeft(s, "( \t\r\n")
	if s == "" {
		return "", ErrEmptyQuery
	}

	i := 0
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	if i == 0 {
		return "", fmt.Errorf("statement does not start with a verb: %q", truncateForError(s))
	}

	verb := strings.ToLower(s[:i])
	if verb == "with" {
		return classifyAfterCTE(s[i:]), nil
	}
	return verb, nil
}

// classifyAfterCTE finds the statement verb that follows WITH's CTE
// definitions: the first known verb at parenthesis depth zero after at
// least one closing paren. String literals and quoted identifiers are
// skipped so their contents cannot confuse the depth tracking. When no
// verb is found the statement stays classified as with, which the verb
// set treats as mutating.
func classifyAfterCTE(s string) string {
	depth := 0
	closed := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' || c == '"':
			i = skipQuoted(s, i, c)
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				closed = true
			}
		case depth == 0 && closed && isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			switch word := strings.ToLower(s[i:j]); word {
			case "select", "values":
				return "select"
			case "insert", "update", "delete", "replace":
				return word
			}
			i = j - 1
		}
	}
	return "with"
}

// stripLeadingComments removes whitespace, line comments, and block
// comments from the front of a statement.
func stripLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}

// skipQuoted returns the index of the closing quote matching the opener at
// start, honoring doubled-quote escapes. Unterminated literals run to the
// end of the statement.
func skipQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return len(s) - 1
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func truncateForError(s string) string {
	const max = 20
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
