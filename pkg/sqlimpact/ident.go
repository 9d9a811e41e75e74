package sqlimpact

import "strings"

// readQualifiedName reads a possibly schema-qualified name starting at
// tokens[i]. Unquoted parts are lower-cased, quoted parts keep their case.
// It returns the normalized name and the index of the first token after it.
func readQualifiedName(tokens []token, i int) (string, int, bool) {
	var parts []string
	for i < len(tokens) {
		t := tokens[i]
		switch t.kind {
		case tokWord:
			parts = append(parts, strings.ToLower(t.text))
		case tokQuotedIdent:
			parts = append(parts, t.text)
		default:
			return joinParts(parts), i, len(parts) > 0
		}
		i++
		if i < len(tokens) && tokens[i].kind == tokDot {
			i++
			continue
		}
		break
	}
	return joinParts(parts), i, len(parts) > 0
}

func joinParts(parts []string) string {
	return strings.Join(parts, ".")
}

// skipAlias advances past an optional "[AS] alias" following a table reference.
func skipAlias(tokens []token, i int) int {
	if i < len(tokens) && tokens[i].isKeyword("AS") {
		i++
		if i < len(tokens) && (tokens[i].kind == tokWord || tokens[i].kind == tokQuotedIdent) {
			return i + 1
		}
		return i
	}
	if i < len(tokens) && tokens[i].kind == tokQuotedIdent {
		return i + 1
	}
	if i < len(tokens) && tokens[i].kind == tokWord && !clauseKeywords[tokens[i].upper] {
		return i + 1
	}
	return i
}

// clauseKeywords terminate a table reference; anything else after a table
// name is treated as its alias.
var clauseKeywords = map[string]bool{
	"WHERE": true, "SET": true, "FROM": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true, "NATURAL": true, "ON": true,
	"USING": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true, "RETURNING": true, "VALUES": true,
	"SELECT": true, "DEFAULT": true, "WINDOW": true, "FETCH": true, "FOR": true, "LATERAL": true,
	"OUTPUT": true, "WITH": true, "AS": true,
}
