package sqlimpact

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Impact thresholds on estimated affected rows.
const (
	lowImpactMaxRows    = 100
	mediumImpactMaxRows = 10_000

	// lockEscalationRows is where row locks are assumed to escalate to a
	// table lock.
	lockEscalationRows = 10_000
)

var (
	statementOverhead = decimal.RequireFromString("0.005")
	scanCostPerRow    = decimal.RequireFromString("0.00001")
	writeCostPerRow   = decimal.RequireFromString("0.0001")
)

func (a *Analyzer) estimate(p *parsedStatement, v *Verdict) {
	var findings []string

	primary := p.primaryTable()
	base := a.rowsFor(primary)
	sc := unscopedOf(base)
	if p.hasWhere {
		sc = estimatePredicate(p.where, 0, base)
	}

	var affected, scanned int64
	switch p.stmtType {
	case StatementSelect:
		if len(p.tables) > 0 {
			scanned = sc.rows + a.otherRows(p.tables, primary)
		}
	case StatementUpdate, StatementDelete:
		affected = sc.rows
		scanned = sc.rows + a.otherRows(p.tables, primary)
		if !p.hasWhere {
			findings = append(findings, fmt.Sprintf("%s has no WHERE clause and affects every row of %s", p.verb, p.target))
		} else if sc.unscoped {
			findings = append(findings, fmt.Sprintf("%s predicate does not narrow %s and may affect every row", p.verb, p.target))
		}
	case StatementInsert:
		if p.insertSelect {
			affected = sc.rows
			scanned = sc.rows + a.otherRows(p.tables, primary, p.target)
		} else {
			affected = p.insertRows
		}
	case StatementDDL:
		switch {
		case p.object == "INDEX" && p.verb == "CREATE":
			scanned = a.rowsFor(p.target)
		case p.object == "TABLE" && p.verb == "CREATE":
			affected = a.otherRows(p.tables, p.target)
			scanned = affected
		case p.object == "TABLE":
			affected = a.sumRows(p.tables)
			scanned = affected
		}
	default:
		affected = a.sumRows(p.tables)
		scanned = affected
	}

	level := levelForRows(affected)
	switch {
	case p.stmtType == StatementOther:
		level = ImpactHigh
		findings = append(findings, fmt.Sprintf("%s statements are not estimated and are treated as HIGH impact", p.verb))
	case (p.stmtType == StatementUpdate || p.stmtType == StatementDelete) && sc.unscoped:
		level = ImpactHigh
	case len(p.tables) > 1:
		level = ImpactHigh
		findings = append(findings, fmt.Sprintf("statement touches %d tables: %s", len(p.tables), strings.Join(p.tables, ", ")))
	case p.stmtType == StatementDDL && (p.verb == "DROP" || p.verb == "ALTER"):
		level = ImpactHigh
		findings = append(findings, fmt.Sprintf("%s %s changes schema irreversibly", p.verb, p.object))
	case p.stmtType == StatementDDL:
		level = ImpactMedium
	case p.stmtType == StatementSelect:
		level = ImpactLow
	}

	seconds := statementOverhead.
		Add(scanCostPerRow.Mul(decimal.NewFromInt(scanned))).
		Add(writeCostPerRow.Mul(decimal.NewFromInt(affected))).
		Round(3)

	lock := p.lockScope(sc, affected)
	lockSeconds := decimal.Zero
	if lock != LockNone {
		lockSeconds = seconds
	}
	if lock == LockTable && p.stmtType != StatementDDL && p.stmtType != StatementOther {
		findings = append(findings, fmt.Sprintf("expected to lock all of %s", primary))
	}

	v.EstimatedAffectedRows = affected
	v.EstimatedScannedRows = scanned
	v.EstimatedSeconds = seconds
	v.LockScope = lock
	v.LockSeconds = lockSeconds
	v.ImpactLevel = level
	v.Findings = findings
}

// primaryTable is the table the WHERE clause filters: the written table for
// UPDATE and DELETE, the first source table otherwise.
func (p *parsedStatement) primaryTable() string {
	switch {
	case p.stmtType == StatementUpdate || p.stmtType == StatementDelete:
		return p.target
	case p.stmtType == StatementInsert && p.insertSelect:
		for _, t := range p.tables {
			if t != p.target {
				return t
			}
		}
		return ""
	case len(p.tables) > 0:
		return p.tables[0]
	default:
		return ""
	}
}

func (p *parsedStatement) lockScope(sc scope, affected int64) LockScope {
	switch p.stmtType {
	case StatementSelect:
		return LockNone
	case StatementInsert:
		if affected > lockEscalationRows {
			return LockTable
		}
		return LockRow
	case StatementUpdate, StatementDelete:
		if sc.unscoped || affected > lockEscalationRows {
			return LockTable
		}
		return LockRow
	case StatementDDL:
		if p.verb == "CREATE" && p.object != "INDEX" {
			return LockNone
		}
		return LockTable
	default:
		return LockTable
	}
}

func (a *Analyzer) otherRows(tables []string, exclude ...string) int64 {
	var total int64
	for _, t := range tables {
		skip := false
		for _, e := range exclude {
			if t == e {
				skip = true
				break
			}
		}
		if !skip {
			total += a.rowsFor(t)
		}
	}
	return total
}

func (a *Analyzer) sumRows(tables []string) int64 {
	return a.otherRows(tables)
}

func levelForRows(rows int64) ImpactLevel {
	switch {
	case rows <= lowImpactMaxRows:
		return ImpactLow
	case rows <= mediumImpactMaxRows:
		return ImpactMedium
	default:
		return ImpactHigh
	}
}

var levelRank = map[ImpactLevel]int{ImpactLow: 0, ImpactMedium: 1, ImpactHigh: 2}

// AtLeast reports whether l is as severe as other.
func (l ImpactLevel) AtLeast(other ImpactLevel) bool {
	return levelRank[l] >= levelRank[other]
}
