package storage

import (
	"math"
	"strings"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
)

// TrialColumns is the column list shared by the SQL stores, in scan order.
const TrialColumns = "id, person, source, command, response_time, accuracy, error_rate, timestamp"

// Statements below use '?' placeholders; Postgres callers rebind them.
const (
	InsertTrialSQL = `INSERT INTO trials (` + TrialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	CountByCommandSQL = `SELECT command, COUNT(*) AS count FROM trials GROUP BY command ORDER BY count DESC, command ASC`

	DeleteAllTrialsSQL = `DELETE FROM trials`
)

// SelectTrialsSQL renders the filtered, sorted and paginated listing for q.
func SelectTrialsSQL(q trial.Query) (string, []any) {
	where, args := whereClause(q.Filter)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(TrialColumns)
	b.WriteString(" FROM trials")
	b.WriteString(where)

	switch q.Sort {
	case trial.SortResponseTimeAsc:
		b.WriteString(" ORDER BY response_time ASC, seq ASC")
	default:
		b.WriteString(" ORDER BY timestamp DESC, seq DESC")
	}

	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	case q.Skip > 0:
		// OFFSET requires a LIMIT in SQLite.
		b.WriteString(" LIMIT ?")
		args = append(args, int64(math.MaxInt64))
	}
	if q.Skip > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, q.Skip)
	}
	return b.String(), args
}

// CountTrialsSQL renders the count of trials matching f.
func CountTrialsSQL(f trial.Filter) (string, []any) {
	where, args := whereClause(f)
	return "SELECT COUNT(*) FROM trials" + where, args
}

func whereClause(f trial.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Person != nil {
		conds = append(conds, "person = ?")
		args = append(args, *f.Person)
	}
	if f.Source != nil {
		conds = append(conds, "source = ?")
		args = append(args, string(*f.Source))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
