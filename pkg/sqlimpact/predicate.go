package sqlimpact

import (
	"strconv"
	"strings"
)

// scope is the estimated number of rows a predicate selects from a table of
// base rows. unscoped marks predicates that do not narrow the table: a missing
// WHERE clause, one that is always true, or one that only excludes values
// (NOT, <>, NOT IN, IS NOT NULL).
type scope struct {
	rows     int64
	unscoped bool
}

// Selectivity divisors. Each weaker predicate class selects at least as many
// rows as every stronger one, which keeps the estimate monotonic.
const (
	equalityDivisor = 100
	rangeDivisor    = 10
	weakDivisor     = 2
)

var comparisonOps = map[string]bool{
	"=": true, "==": true, "<>": true, "!=": true,
	"<": true, ">": true, "<=": true, ">=": true,
}

var keywordOps = map[string]bool{
	"IN": true, "LIKE": true, "ILIKE": true, "BETWEEN": true, "IS": true,
	"SIMILAR": true, "REGEXP": true, "RLIKE": true,
}

// keyColumns are treated as unique: equality on them selects one row.
var keyColumns = map[string]bool{
	"id": true, "uuid": true, "guid": true, "pk": true, "rowid": true,
}

func unscopedOf(base int64) scope { return scope{rows: base, unscoped: true} }

// estimatePredicate walks an OR of ANDs. Conjunctions take the smallest
// term estimate, disjunctions add their branches up to base.
func estimatePredicate(toks []token, depth int, base int64) scope {
	var total int64
	unscoped := false
	for _, branch := range splitTopLevel(toks, depth, "OR") {
		s := estimateConjunction(branch, depth, base)
		total += s.rows
		unscoped = unscoped || s.unscoped
	}
	if unscoped || total > base {
		total = base
	}
	return scope{rows: total, unscoped: unscoped}
}

func estimateConjunction(toks []token, depth int, base int64) scope {
	result := unscopedOf(base)
	for _, term := range splitConjuncts(toks, depth) {
		s := estimateTerm(term, depth, base)
		if s.rows < result.rows {
			result.rows = s.rows
		}
		result.unscoped = result.unscoped && s.unscoped
	}
	return result
}

func estimateTerm(toks []token, depth int, base int64) scope {
	if len(toks) == 0 {
		return unscopedOf(base)
	}
	weak := scope{rows: ceilDiv(base, weakDivisor)}
	negated := unscopedOf(base)

	first := toks[0]
	if first.kind == tokLParen && skipParens(toks, 0) == len(toks) {
		inner := toks[1 : len(toks)-1]
		if len(inner) > 0 && (inner[0].isKeyword("SELECT") || inner[0].isKeyword("WITH")) {
			return weak
		}
		return estimatePredicate(inner, depth+1, base)
	}
	if first.isKeyword("NOT") {
		return negated
	}
	if first.isKeyword("EXISTS") {
		return weak
	}
	if len(toks) == 1 {
		if isTruthyLiteral(first) {
			return unscopedOf(base)
		}
		return weak
	}

	op, opText, negatedOp := findOperator(toks, depth)
	if op < 0 {
		return weak
	}
	if negatedOp {
		return negated
	}
	lhs := toks[:op]
	rhs := toks[op+1:]

	switch opText {
	case "=", "==":
		lcol, lok := columnOf(lhs)
		rcol, rok := columnOf(rhs)
		switch {
		case isLiteral(lhs) && isLiteral(rhs):
			if tokensText(lhs) == tokensText(rhs) {
				return unscopedOf(base)
			}
			return weak
		case lok && isConstant(rhs):
			return equality(lcol, base)
		case rok && isConstant(lhs):
			return equality(rcol, base)
		case lok && rok && tokensText(lhs) == tokensText(rhs):
			return unscopedOf(base)
		default:
			return weak
		}
	case "<>", "!=":
		if isLiteral(lhs) && isLiteral(rhs) && tokensText(lhs) == tokensText(rhs) {
			return weak
		}
		return negated
	case "<", ">", "<=", ">=":
		if holds, ok := compareNumbers(lhs, rhs, opText); ok {
			if holds {
				return unscopedOf(base)
			}
			return weak
		}
		if _, ok := columnOf(lhs); ok && isConstant(rhs) {
			return scope{rows: ceilDiv(base, rangeDivisor)}
		}
		if _, ok := columnOf(rhs); ok && isConstant(lhs) {
			return scope{rows: ceilDiv(base, rangeDivisor)}
		}
		return weak
	case "BETWEEN":
		if _, ok := columnOf(lhs); ok {
			return scope{rows: ceilDiv(base, rangeDivisor)}
		}
		return weak
	case "IN":
		col, ok := columnOf(lhs)
		n, listOK := inListSize(rhs)
		if !ok || !listOK {
			return weak
		}
		if keyColumns[col] {
			return scope{rows: minInt64(n, base)}
		}
		return scope{rows: minInt64(n*ceilDiv(base, equalityDivisor), base)}
	case "IS":
		if len(rhs) > 0 && rhs[0].isKeyword("NOT") {
			return negated
		}
		return weak
	default:
		return weak
	}
}

func equality(column string, base int64) scope {
	if keyColumns[column] {
		return scope{rows: minInt64(1, base)}
	}
	return scope{rows: ceilDiv(base, equalityDivisor)}
}

// findOperator locates the comparison operator of a term at the given depth.
// negated reports a NOT IN, NOT LIKE or NOT BETWEEN form, whose operator is
// the keyword following NOT.
func findOperator(toks []token, depth int) (int, string, bool) {
	for i := 1; i < len(toks); i++ {
		t := toks[i]
		if t.depth != depth {
			continue
		}
		if t.kind == tokOperator && comparisonOps[t.text] {
			return i, t.text, false
		}
		if t.kind != tokWord {
			continue
		}
		if t.upper == "NOT" && i+1 < len(toks) && keywordOps[toks[i+1].upper] {
			return i, toks[i+1].upper, true
		}
		if keywordOps[t.upper] {
			return i, t.upper, false
		}
	}
	return -1, "", false
}

func splitTopLevel(toks []token, depth int, keyword string) [][]token {
	var parts [][]token
	start := 0
	for i, t := range toks {
		if t.depth == depth && t.isKeyword(keyword) {
			parts = append(parts, toks[start:i])
			start = i + 1
		}
	}
	return append(parts, toks[start:])
}

// splitConjuncts splits on AND, except the AND that belongs to BETWEEN.
func splitConjuncts(toks []token, depth int) [][]token {
	var parts [][]token
	start := 0
	between := false
	for i, t := range toks {
		if t.depth != depth {
			continue
		}
		switch {
		case t.isKeyword("BETWEEN"):
			between = true
		case t.isKeyword("AND") && between:
			between = false
		case t.isKeyword("AND"):
			parts = append(parts, toks[start:i])
			start = i + 1
		}
	}
	return append(parts, toks[start:])
}

// columnOf returns the unqualified column name when toks is a bare,
// possibly qualified, column reference.
func columnOf(toks []token) (string, bool) {
	if len(toks) == 0 || toks[0].kind != tokWord && toks[0].kind != tokQuotedIdent {
		return "", false
	}
	if toks[0].kind == tokWord && isLiteralWord(toks[0].upper) {
		return "", false
	}
	name, next, ok := readQualifiedName(toks, 0)
	if !ok || next != len(toks) {
		return "", false
	}
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}
	return strings.ToLower(name), true
}

func isLiteralWord(upper string) bool {
	return upper == "TRUE" || upper == "FALSE" || upper == "NULL"
}

// isLiteral reports a literal whose value is known without binding.
func isLiteral(toks []token) bool {
	if len(toks) == 2 && toks[0].kind == tokOperator && toks[0].text == "-" && toks[1].kind == tokNumber {
		return true
	}
	if len(toks) != 1 {
		return false
	}
	t := toks[0]
	return t.kind == tokString || t.kind == tokNumber || t.kind == tokWord && isLiteralWord(t.upper)
}

// isConstant is isLiteral extended with bind parameters.
func isConstant(toks []token) bool {
	if len(toks) == 1 && toks[0].kind == tokParam {
		return true
	}
	return isLiteral(toks)
}

func isTruthyLiteral(t token) bool {
	switch t.kind {
	case tokWord:
		return t.upper == "TRUE"
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		return err == nil && f != 0
	default:
		return false
	}
}

func compareNumbers(lhs, rhs []token, op string) (bool, bool) {
	l, lok := numberOf(lhs)
	r, rok := numberOf(rhs)
	if !lok || !rok {
		return false, false
	}
	switch op {
	case "<":
		return l < r, true
	case ">":
		return l > r, true
	case "<=":
		return l <= r, true
	default:
		return l >= r, true
	}
}

func numberOf(toks []token) (float64, bool) {
	sign := 1.0
	if len(toks) == 2 && toks[0].kind == tokOperator && toks[0].text == "-" {
		sign = -1
		toks = toks[1:]
	}
	if len(toks) != 1 || toks[0].kind != tokNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(toks[0].text, 64)
	if err != nil {
		return 0, false
	}
	return sign * f, true
}

// inListSize counts the items of a literal IN list. Subqueries are not lists.
func inListSize(toks []token) (int64, bool) {
	if len(toks) < 2 || toks[0].kind != tokLParen || skipParens(toks, 0) != len(toks) {
		return 0, false
	}
	inner := toks[1 : len(toks)-1]
	if len(inner) == 0 || inner[0].isKeyword("SELECT") || inner[0].isKeyword("WITH") {
		return 0, false
	}
	var n int64 = 1
	for _, t := range inner {
		if t.kind == tokComma && t.depth == toks[0].depth+1 {
			n++
		}
	}
	return n, true
}

func tokensText(toks []token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		if t.kind == tokWord {
			parts[i] = t.upper
			continue
		}
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
