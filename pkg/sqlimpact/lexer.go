package sqlimpact

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokParam
	tokOperator
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokSemicolon
)

type token struct {
	kind  tokenKind
	text  string // original text; for words and quoted identifiers the unquoted name
	upper string // upper-cased text for words, used for keyword matching
	depth int    // parenthesis depth at which the token appears
}

func (t token) isKeyword(kw string) bool {
	return t.kind == tokWord && t.upper == kw
}

// syntaxError is reported as an invalid verdict, never as a Go error.
type syntaxError struct {
	msg string
}

func (e *syntaxError) Error() string { return e.msg }

func syntaxErrorf(format string, args ...any) *syntaxError {
	return &syntaxError{msg: fmt.Sprintf(format, args...)}
}

// tokenize splits statement text into tokens, dropping comments and whitespace.
// It rejects unterminated literals, identifiers and comments as well as
// unbalanced parentheses.
func tokenize(src string) ([]token, error) {
	runes := []rune(src)
	tokens := make([]token, 0, len(runes)/4)
	depth := 0

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := i + 2
			for end+1 < len(runes) && !(runes[end] == '*' && runes[end+1] == '/') {
				end++
			}
			if end+1 >= len(runes) {
				return nil, syntaxErrorf("unterminated block comment")
			}
			i = end + 2

		case r == '\'':
			text, next, ok := scanQuoted(runes, i, '\'')
			if !ok {
				return nil, syntaxErrorf("unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokString, text: text, depth: depth})
			i = next

		case r == '"' || r == '`':
			text, next, ok := scanQuoted(runes, i, r)
			if !ok {
				return nil, syntaxErrorf("unterminated quoted identifier")
			}
			tokens = append(tokens, token{kind: tokQuotedIdent, text: text, depth: depth})
			i = next

		case r == '[':
			end := i + 1
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			if end >= len(runes) {
				return nil, syntaxErrorf("unterminated bracketed identifier")
			}
			tokens = append(tokens, token{kind: tokQuotedIdent, text: string(runes[i+1 : end]), depth: depth})
			i = end + 1

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", depth: depth})
			depth++
			i++

		case r == ')':
			depth--
			if depth < 0 {
				return nil, syntaxErrorf("unexpected closing parenthesis")
			}
			tokens = append(tokens, token{kind: tokRParen, text: ")", depth: depth})
			i++

		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", depth: depth})
			i++

		case r == ';':
			tokens = append(tokens, token{kind: tokSemicolon, text: ";", depth: depth})
			i++

		case r == '.' && !(i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			tokens = append(tokens, token{kind: tokDot, text: ".", depth: depth})
			i++

		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), depth: depth})

		case r == '$' || r == '?' || (r == ':' && i+1 < len(runes) && isIdentStart(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (isIdentPart(runes[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokParam, text: string(runes[start:i]), depth: depth})

		case isIdentStart(r):
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			tokens = append(tokens, token{kind: tokWord, text: word, upper: strings.ToUpper(word), depth: depth})

		case strings.ContainsRune("=<>!+-*/%|&^~:@#", r):
			start := i
			for i < len(runes) && strings.ContainsRune("=<>!|&:", runes[i]) && i-start < 2 {
				i++
			}
			if i == start {
				i++
			}
			tokens = append(tokens, token{kind: tokOperator, text: string(runes[start:i]), depth: depth})

		default:
			return nil, syntaxErrorf("unexpected character %q at offset %d", r, i)
		}
	}

	if depth != 0 {
		return nil, syntaxErrorf("unbalanced parentheses")
	}
	return tokens, nil
}

// scanQuoted reads a quoted run starting at runes[start] == quote. A doubled
// quote inside the run is an escaped quote.
func scanQuoted(runes []rune, start int, quote rune) (string, int, bool) {
	var b strings.Builder
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			b.WriteRune(runes[i])
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			b.WriteRune(quote)
			i++
			continue
		}
		return b.String(), i + 1, true
	}
	return "", len(runes), false
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// splitStatements splits tokens on top-level semicolons, dropping empty statements.
func splitStatements(tokens []token) [][]token {
	var out [][]token
	start := 0
	for i, t := range tokens {
		if t.kind == tokSemicolon && t.depth == 0 {
			if i > start {
				out = append(out, tokens[start:i])
			}
			start = i + 1
		}
	}
	if start < len(tokens) {
		out = append(out, tokens[start:])
	}
	return out
}
