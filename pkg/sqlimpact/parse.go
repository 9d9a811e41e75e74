package sqlimpact

// parsedStatement is the structural outline the estimator works from. It is
// not a syntax tree: only clauses that move the row and table estimates are
// located.
type parsedStatement struct {
	stmtType StatementType
	verb     string
	object   string // DDL object keyword, e.g. TABLE or INDEX
	tokens   []token
	main     int
	target   string
	tables   []string

	hasWhere bool
	where    []token

	insertRows   int64
	insertSelect bool

	// writingWith marks a WITH query whose bodies change data.
	writingWith bool
}

var otherVerbs = map[string]bool{
	"TRUNCATE": true, "MERGE": true, "GRANT": true, "REVOKE": true, "CALL": true,
	"EXEC": true, "EXECUTE": true, "VACUUM": true, "ANALYZE": true, "REINDEX": true,
	"COMMENT": true, "COPY": true, "LOCK": true, "SET": true, "SHOW": true,
	"EXPLAIN": true, "REFRESH": true, "CLUSTER": true, "RENAME": true, "REPLACE": true,
	"UPSERT": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true, "DO": true,
}

// whereTerminators end a WHERE clause when they appear at statement level.
var whereTerminators = map[string]bool{
	"RETURNING": true, "ORDER": true, "LIMIT": true, "GROUP": true, "HAVING": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true, "OFFSET": true, "FETCH": true,
	"FOR": true, "WINDOW": true, "OPTION": true, "ON": true,
}

// notUpdateTarget lists keywords after which UPDATE is not a statement, as in
// FOR UPDATE, ON UPDATE CASCADE or DO UPDATE SET.
var notUpdateTarget = map[string]bool{
	"FOR": true, "DO": true, "KEY": true, "ON": true, "BEFORE": true,
	"AFTER": true, "OR": true, "OF": true, "THEN": true,
}

var ddlModifiers = map[string]bool{
	"OR": true, "REPLACE": true, "UNIQUE": true, "TEMP": true, "TEMPORARY": true,
	"GLOBAL": true, "LOCAL": true, "UNLOGGED": true, "MATERIALIZED": true,
	"CLUSTERED": true, "NONCLUSTERED": true,
}

func parse(text string) (*parsedStatement, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	stmts := splitStatements(tokens)
	switch len(stmts) {
	case 0:
		return nil, syntaxErrorf("no statement found")
	case 1:
	default:
		return nil, syntaxErrorf("expected a single statement, found %d", len(stmts))
	}

	toks := stmts[0]
	with, main, err := skipWith(toks)
	if err != nil {
		return nil, err
	}
	if main >= len(toks) || toks[main].kind != tokWord {
		return nil, syntaxErrorf("statement must begin with a keyword")
	}

	p := &parsedStatement{
		tokens:   toks,
		main:     main,
		verb:     toks[main].upper,
		stmtType: classify(toks[main].upper),
	}
	if err := p.parseMain(); err != nil {
		return nil, err
	}
	if writes := with.writes(); len(writes) > 0 {
		if err := p.adoptWrites(writes); err != nil {
			return nil, err
		}
	}

	p.collectTables(with.names)
	return p, nil
}

func (p *parsedStatement) parseMain() error {
	switch p.stmtType {
	case StatementSelect:
		return p.parseSelect()
	case StatementUpdate:
		return p.parseUpdate()
	case StatementDelete:
		return p.parseDelete()
	case StatementInsert:
		return p.parseInsert()
	case StatementDDL:
		return p.parseDDL()
	default:
		return p.parseOther()
	}
}

// withClause is the WITH list in front of the main statement.
type withClause struct {
	names  map[string]bool
	bodies [][]token // body tokens without the parentheses, depth rebased to 0
}

var writeVerbs = map[string]bool{
	"DELETE": true, "UPDATE": true, "INSERT": true, "MERGE": true,
}

// writes returns the bodies that change data, such as
// WITH gone AS (DELETE FROM t RETURNING id).
func (w withClause) writes() [][]token {
	var out [][]token
	for _, body := range w.bodies {
		if body[0].kind == tokWord && writeVerbs[body[0].upper] {
			out = append(out, body)
		}
	}
	return out
}

const writingWithVerb = "data-modifying WITH"

// adoptWrites makes a statement whose WITH bodies change data take the shape
// of the write. A single write is estimated as that statement; more than one
// write, counting the main statement, is not estimated.
func (p *parsedStatement) adoptWrites(writes [][]token) error {
	p.writingWith = true
	if len(writes) > 1 || p.stmtType != StatementSelect {
		p.stmtType = StatementOther
		p.verb = writingWithVerb
		p.object, p.target = "", ""
		p.hasWhere, p.where = false, nil
		p.insertRows, p.insertSelect = 0, false
		return nil
	}

	body := writes[0]
	sub := &parsedStatement{
		tokens:   body,
		verb:     body[0].upper,
		stmtType: classify(body[0].upper),
	}
	if err := sub.parseMain(); err != nil {
		return err
	}
	p.stmtType, p.verb, p.object, p.target = sub.stmtType, sub.verb, sub.object, sub.target
	p.hasWhere, p.where = sub.hasWhere, sub.where
	p.insertRows, p.insertSelect = sub.insertRows, sub.insertSelect
	for _, t := range sub.tables {
		p.addTable(t)
	}
	return nil
}

// skipWith records common table expression names and bodies and returns the
// index of the keyword that starts the main statement.
func skipWith(toks []token) (withClause, int, error) {
	with := withClause{names: make(map[string]bool)}
	if len(toks) == 0 || !toks[0].isKeyword("WITH") {
		return with, 0, nil
	}
	i := 1
	if i < len(toks) && toks[i].isKeyword("RECURSIVE") {
		i++
	}
	for {
		name, next, ok := readTableName(toks, i)
		if !ok {
			return with, 0, syntaxErrorf("WITH clause is missing a query name")
		}
		with.names[name] = true
		i = next
		if i < len(toks) && toks[i].kind == tokLParen {
			i = skipParens(toks, i)
		}
		if i >= len(toks) || !toks[i].isKeyword("AS") {
			return with, 0, syntaxErrorf("WITH query %s is missing AS", name)
		}
		i++
		if i < len(toks) && toks[i].isKeyword("NOT") {
			i++
		}
		if i < len(toks) && toks[i].isKeyword("MATERIALIZED") {
			i++
		}
		if i >= len(toks) || toks[i].kind != tokLParen {
			return with, 0, syntaxErrorf("WITH query %s is missing its body", name)
		}
		open := i
		i = skipParens(toks, i)
		if i-open < 3 {
			return with, 0, syntaxErrorf("WITH query %s has an empty body", name)
		}
		with.bodies = append(with.bodies, rebase(toks[open+1:i-1]))
		if i < len(toks) && toks[i].kind == tokComma {
			i++
			continue
		}
		return with, i, nil
	}
}

// rebase copies a parenthesized token run so its outermost depth is 0.
func rebase(toks []token) []token {
	out := make([]token, len(toks))
	shift := toks[0].depth
	for i, t := range toks {
		t.depth -= shift
		out[i] = t
	}
	return out
}

func (p *parsedStatement) parseSelect() error {
	if p.main+1 >= len(p.tokens) {
		return syntaxErrorf("SELECT statement has no select list")
	}
	if into := findTopLevel(p.tokens, p.main+1, "INTO"); into >= 0 {
		return p.parseSelectInto(into)
	}
	return p.locateWhere(p.main + 1)
}

// parseSelectInto handles SELECT ... INTO, which writes its result to a new
// table, a file or variables. It is not estimated as a read.
func (p *parsedStatement) parseSelectInto(into int) error {
	toks := p.tokens
	i := into + 1
	for i < len(toks) && toks[i].kind == tokWord && (ddlModifiers[toks[i].upper] || toks[i].upper == "TABLE") {
		i++
	}
	if i >= len(toks) {
		return syntaxErrorf("SELECT INTO is missing a target")
	}
	p.stmtType = StatementOther
	p.verb = "SELECT INTO"
	if !toks[i].isKeyword("OUTFILE") && !toks[i].isKeyword("DUMPFILE") {
		if name, next, ok := readTableName(toks, i); ok {
			p.target = name
			p.addTable(name)
			i = next
		}
	}
	return p.locateWhere(i)
}

func (p *parsedStatement) parseUpdate() error {
	toks := p.tokens
	i := p.main + 1
	if i < len(toks) && toks[i].isKeyword("ONLY") {
		i++
	}
	target, next, ok := readTableName(toks, i)
	if !ok {
		return syntaxErrorf("UPDATE statement is missing a target table")
	}
	p.target = target
	p.addTable(target)

	set := findTopLevel(toks, next, "SET")
	if set < 0 {
		return syntaxErrorf("UPDATE statement is missing a SET clause")
	}
	if !hasTopLevelOperator(toks[set+1:], "=") {
		return syntaxErrorf("SET clause has no assignments")
	}
	return p.locateWhere(set + 1)
}

func (p *parsedStatement) parseDelete() error {
	toks := p.tokens
	i := p.main + 1
	if i < len(toks) && toks[i].isKeyword("FROM") {
		i++
	}
	if i < len(toks) && toks[i].isKeyword("ONLY") {
		i++
	}
	target, next, ok := readTableName(toks, i)
	if !ok {
		return syntaxErrorf("DELETE statement is missing a target table")
	}
	p.target = target
	p.addTable(target)
	return p.locateWhere(next)
}

func (p *parsedStatement) parseInsert() error {
	toks := p.tokens
	i := p.main + 1
	if i < len(toks) && toks[i].isKeyword("IGNORE") {
		i++
	}
	if i < len(toks) && toks[i].isKeyword("INTO") {
		i++
	}
	target, next, ok := readTableName(toks, i)
	if !ok {
		return syntaxErrorf("INSERT statement is missing a target table")
	}
	p.target = target
	p.addTable(target)
	i = next

	if i+1 < len(toks) && toks[i].isKeyword("AS") {
		i += 2
	}
	if i < len(toks) && toks[i].kind == tokLParen {
		if i+1 < len(toks) && (toks[i+1].isKeyword("SELECT") || toks[i+1].isKeyword("WITH")) {
			p.insertSelect = true
			return p.locateWhere(i)
		}
		i = skipParens(toks, i)
	}
	if i >= len(toks) {
		return syntaxErrorf("INSERT statement is missing VALUES or SELECT")
	}

	switch {
	case toks[i].isKeyword("VALUES"):
		var rows int64
		for j := i + 1; j < len(toks); j++ {
			t := toks[j]
			if t.depth != 0 {
				continue
			}
			if t.isKeyword("ON") || t.isKeyword("RETURNING") {
				break
			}
			if t.kind == tokLParen {
				rows++
			}
		}
		if rows == 0 {
			return syntaxErrorf("VALUES clause has no rows")
		}
		p.insertRows = rows
		return nil
	case toks[i].isKeyword("SELECT"), toks[i].isKeyword("WITH"):
		p.insertSelect = true
		return p.locateWhere(i)
	case toks[i].isKeyword("DEFAULT"), toks[i].isKeyword("SET"):
		p.insertRows = 1
		return nil
	default:
		return syntaxErrorf("INSERT statement is missing VALUES or SELECT")
	}
}

func (p *parsedStatement) parseDDL() error {
	toks := p.tokens
	i := p.main + 1
	for i < len(toks) && toks[i].kind == tokWord && ddlModifiers[toks[i].upper] {
		i++
	}
	if i >= len(toks) || toks[i].kind != tokWord {
		return syntaxErrorf("%s statement is missing an object type", p.verb)
	}
	p.object = toks[i].upper
	i++
	i = skipIfExists(toks, i)

	switch p.object {
	case "TABLE":
		for {
			name, next, ok := readTableName(toks, i)
			if !ok {
				return syntaxErrorf("%s TABLE is missing a table name", p.verb)
			}
			if p.target == "" {
				p.target = name
			}
			p.addTable(name)
			i = next
			if p.verb == "DROP" && i < len(toks) && toks[i].kind == tokComma {
				i++
				continue
			}
			break
		}
		if p.verb == "ALTER" && i >= len(toks) {
			return syntaxErrorf("ALTER TABLE statement has no action")
		}
		return nil

	case "INDEX":
		if p.verb != "CREATE" {
			if _, _, ok := readTableName(toks, i); !ok {
				return syntaxErrorf("%s INDEX is missing an index name", p.verb)
			}
			return nil
		}
		on := findTopLevel(toks, i, "ON")
		if on < 0 {
			return syntaxErrorf("CREATE INDEX is missing ON table")
		}
		j := on + 1
		if j < len(toks) && toks[j].isKeyword("ONLY") {
			j++
		}
		name, _, ok := readTableName(toks, j)
		if !ok {
			return syntaxErrorf("CREATE INDEX is missing ON table")
		}
		p.target = name
		p.addTable(name)
		return nil

	default:
		if _, _, ok := readTableName(toks, i); !ok {
			return syntaxErrorf("%s %s is missing an object name", p.verb, p.object)
		}
		return nil
	}
}

func (p *parsedStatement) parseOther() error {
	if !otherVerbs[p.verb] {
		return syntaxErrorf("unrecognized statement keyword %s", p.verb)
	}
	if p.verb != "TRUNCATE" {
		return nil
	}
	toks := p.tokens
	i := p.main + 1
	if i < len(toks) && toks[i].isKeyword("TABLE") {
		i++
	}
	if i < len(toks) && toks[i].isKeyword("ONLY") {
		i++
	}
	for {
		name, next, ok := readTableName(toks, i)
		if !ok {
			return syntaxErrorf("TRUNCATE statement is missing a table name")
		}
		p.addTable(name)
		if next < len(toks) && toks[next].kind == tokComma {
			i = next + 1
			continue
		}
		return nil
	}
}

// locateWhere finds the statement-level WHERE clause at or after from.
func (p *parsedStatement) locateWhere(from int) error {
	toks := p.tokens
	w := findTopLevel(toks, from, "WHERE")
	if w < 0 {
		return nil
	}
	end := w + 1
	for end < len(toks) {
		t := toks[end]
		if t.depth == 0 && t.kind == tokWord && whereTerminators[t.upper] {
			break
		}
		end++
	}
	if end == w+1 {
		return syntaxErrorf("WHERE clause is empty")
	}
	p.hasWhere = true
	p.where = toks[w+1 : end]
	return nil
}

// collectTables adds every table read or written anywhere in the statement,
// including subqueries, excluding common table expression names.
func (p *parsedStatement) collectTables(ctes map[string]bool) {
	toks := p.tokens
	for i, t := range toks {
		if t.kind != tokWord {
			continue
		}
		switch t.upper {
		case "FROM":
			if p.queryContext(i) {
				p.readTableList(i+1, t.depth, ctes)
			}
		case "JOIN":
			p.readTableRef(i+1, ctes)
		case "INTO":
			if i > 0 && (toks[i-1].isKeyword("INSERT") || toks[i-1].isKeyword("MERGE") || toks[i-1].isKeyword("IGNORE")) {
				// INTO is followed by a column list, not table function arguments.
				if name, _, ok := readTableName(toks, i+1); ok && !ctes[name] {
					p.addTable(name)
				}
			}
		case "UPDATE":
			if i > 0 && toks[i-1].kind == tokWord && notUpdateTarget[toks[i-1].upper] {
				continue
			}
			p.readTableRef(i+1, ctes)
		case "USING":
			if p.verb == "DELETE" || p.verb == "MERGE" || p.writingWith {
				p.readTableList(i+1, t.depth, ctes)
			}
		}
	}
}

// queryContext reports whether the FROM at index i belongs to a query or a
// nested DELETE rather than to a function argument such as
// EXTRACT(YEAR FROM ts).
func (p *parsedStatement) queryContext(i int) bool {
	toks := p.tokens
	d := toks[i].depth
	if d == 0 {
		return true
	}
	for j := i - 1; j >= 0; j-- {
		if toks[j].kind == tokLParen && toks[j].depth == d-1 {
			if j+1 >= len(toks) {
				return false
			}
			next := toks[j+1]
			return next.isKeyword("SELECT") || next.isKeyword("WITH") || next.isKeyword("DELETE")
		}
	}
	return false
}

func (p *parsedStatement) readTableList(i, depth int, ctes map[string]bool) {
	for {
		next := p.readTableRef(i, ctes)
		if next < len(p.tokens) && p.tokens[next].kind == tokComma && p.tokens[next].depth == depth {
			i = next + 1
			continue
		}
		return
	}
}

// readTableRef records the table reference at i and returns the index after
// it and its alias. Subqueries and table functions are skipped.
func (p *parsedStatement) readTableRef(i int, ctes map[string]bool) int {
	toks := p.tokens
	if i < len(toks) && (toks[i].isKeyword("ONLY") || toks[i].isKeyword("LATERAL")) {
		i++
	}
	if i >= len(toks) {
		return i
	}
	if toks[i].kind == tokLParen {
		return skipAlias(toks, skipParens(toks, i))
	}
	name, next, ok := readTableName(toks, i)
	if !ok {
		return i
	}
	if next < len(toks) && toks[next].kind == tokLParen {
		return skipAlias(toks, skipParens(toks, next))
	}
	if !ctes[name] {
		p.addTable(name)
	}
	return skipAlias(toks, next)
}

func (p *parsedStatement) addTable(name string) {
	for _, existing := range p.tables {
		if existing == name {
			return
		}
	}
	p.tables = append(p.tables, name)
}

// readTableName is readQualifiedName that refuses clause keywords, so
// "DELETE FROM WHERE" is not read as a table named "where".
func readTableName(toks []token, i int) (string, int, bool) {
	if i >= len(toks) {
		return "", i, false
	}
	if toks[i].kind == tokWord && clauseKeywords[toks[i].upper] {
		return "", i, false
	}
	return readQualifiedName(toks, i)
}

func skipIfExists(toks []token, i int) int {
	if i < len(toks) && toks[i].isKeyword("IF") {
		i++
		if i < len(toks) && toks[i].isKeyword("NOT") {
			i++
		}
		if i < len(toks) && toks[i].isKeyword("EXISTS") {
			i++
		}
	}
	if i < len(toks) && toks[i].isKeyword("CONCURRENTLY") {
		i++
	}
	return i
}

// skipParens returns the index after the parenthesis matching toks[i].
func skipParens(toks []token, i int) int {
	d := toks[i].depth
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind == tokRParen && toks[j].depth == d {
			return j + 1
		}
	}
	return len(toks)
}

func findTopLevel(toks []token, from int, keyword string) int {
	for i := from; i < len(toks); i++ {
		if toks[i].depth == 0 && toks[i].isKeyword(keyword) {
			return i
		}
	}
	return -1
}

func hasTopLevelOperator(toks []token, op string) bool {
	for _, t := range toks {
		if t.depth == 0 && t.kind == tokOperator && t.text == op {
			return true
		}
	}
	return false
}
