// Package sqlimpact classifies a single SQL statement and estimates its blast
// radius (affected tables and rows, execution time, lock scope) without
// connecting to a database. Estimates are heuristic but deterministic and
// conservative: loosening a predicate never lowers the estimate.
package sqlimpact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Version is bumped whenever estimation rules change, so stored verdicts can
// be told apart from ones the current rules would produce.
const Version = "sqlimpact/2"

type StatementType string

const (
	StatementSelect StatementType = "SELECT"
	StatementUpdate StatementType = "UPDATE"
	StatementDelete StatementType = "DELETE"
	StatementInsert StatementType = "INSERT"
	StatementDDL    StatementType = "DDL"
	StatementOther  StatementType = "OTHER"
)

type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "LOW"
	ImpactMedium ImpactLevel = "MEDIUM"
	ImpactHigh   ImpactLevel = "HIGH"
)

// LockScope is the widest lock the statement is expected to take.
type LockScope string

const (
	LockNone  LockScope = "NONE"
	LockRow   LockScope = "ROW"
	LockTable LockScope = "TABLE"
)

// ErrEmptyStatement is the only error Analyze returns. Unparseable SQL is a
// normal verdict with IsValid set to false.
var ErrEmptyStatement = errors.New("sqlimpact: statement is empty")

// Verdict is the immutable result of analyzing one statement text.
type Verdict struct {
	IsValid               bool            `json:"is_valid"`
	Message               string          `json:"message"`
	StatementType         StatementType   `json:"statement_type"`
	StatementHash         string          `json:"statement_hash"`
	EstimatedAffectedRows int64           `json:"estimated_affected_rows"`
	EstimatedScannedRows  int64           `json:"estimated_scanned_rows"`
	EstimatedSeconds      decimal.Decimal `json:"estimated_seconds"`
	LockScope             LockScope       `json:"lock_scope"`
	LockSeconds           decimal.Decimal `json:"lock_seconds"`
	ImpactLevel           ImpactLevel     `json:"impact_level"`
	AffectedTables        []string        `json:"affected_tables"`
	Findings              []string        `json:"findings,omitempty"`
	AnalyzerVersion       string          `json:"analyzer_version"`
}

// Options tunes the row estimator. TableRows holds known cardinalities keyed
// by normalized table name; other tables use DefaultTableRows.
type Options struct {
	DefaultTableRows int64
	TableRows        map[string]int64
}

const defaultTableRows = 100_000

type Analyzer struct {
	defaultRows int64
	tableRows   map[string]int64
}

// New builds an Analyzer. The options are copied; the Analyzer is safe for
// concurrent use.
func New(opts Options) *Analyzer {
	rows := opts.DefaultTableRows
	if rows <= 0 {
		rows = defaultTableRows
	}
	tableRows := make(map[string]int64, len(opts.TableRows))
	for name, n := range opts.TableRows {
		if n > 0 {
			tableRows[strings.ToLower(strings.TrimSpace(name))] = n
		}
	}
	return &Analyzer{defaultRows: rows, tableRows: tableRows}
}

var defaultAnalyzer = New(Options{})

// Analyze runs the default analyzer.
func Analyze(statement string) (Verdict, error) {
	return defaultAnalyzer.Analyze(statement)
}

// Fingerprint identifies statement text; a verdict is current for a statement
// only while their fingerprints match.
func Fingerprint(statement string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(statement)))
	return hex.EncodeToString(sum[:])
}

func (a *Analyzer) Analyze(statement string) (Verdict, error) {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return Verdict{}, ErrEmptyStatement
	}

	verdict := Verdict{
		StatementHash:   Fingerprint(trimmed),
		AnalyzerVersion: Version,
		AffectedTables:  []string{},
	}

	parsed, err := parse(trimmed)
	if err != nil {
		verdict.IsValid = false
		verdict.Message = "SQL syntax error: " + err.Error()
		verdict.StatementType = guessType(trimmed)
		verdict.ImpactLevel = ImpactHigh
		verdict.LockScope = LockTable
		verdict.EstimatedSeconds = decimal.Zero
		verdict.LockSeconds = decimal.Zero
		return verdict, nil
	}

	verdict.IsValid = true
	verdict.Message = "SQL syntax is valid"
	verdict.StatementType = parsed.stmtType
	verdict.AffectedTables = append(verdict.AffectedTables, parsed.tables...)
	a.estimate(parsed, &verdict)
	return verdict, nil
}

func (a *Analyzer) rowsFor(table string) int64 {
	if n, ok := a.tableRows[table]; ok {
		return n
	}
	return a.defaultRows
}

// guessType classifies text the lexer rejected, by leading keyword only.
func guessType(text string) StatementType {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return StatementOther
	}
	word := strings.ToUpper(strings.TrimLeft(fields[0], "("))
	return classify(word)
}

func classify(keyword string) StatementType {
	switch keyword {
	case "SELECT":
		return StatementSelect
	case "UPDATE":
		return StatementUpdate
	case "DELETE":
		return StatementDelete
	case "INSERT":
		return StatementInsert
	case "CREATE", "ALTER", "DROP":
		return StatementDDL
	default:
		return StatementOther
	}
}
