package storage

import (
	"fmt"
	"strings"
	"time"
)

type placeholderDialect int

const (
	dialectQuestion placeholderDialect = iota // ?
	dialectDollar                             // $1, $2
)

// recordRangeQuery builds the record window query shared by the SQL record
// backends. idExpr and tsColumn adapt it to the backend's column types.
func recordRangeQuery(d placeholderDialect, idExpr, tsColumn, petID string, start, end time.Time, bounded bool) (string, []any) {
	var sb strings.Builder
	args := []any{petID, start}

	ph := func(i int) string {
		if d == dialectDollar {
			return fmt.Sprintf("$%d", i)
		}
		return "?"
	}

	fmt.Fprintf(&sb, "SELECT %s, pet_id, %s, shape_code, health_status, confidence FROM records", idExpr, tsColumn)
	fmt.Fprintf(&sb, " WHERE pet_id = %s AND %s >= %s", ph(1), tsColumn, ph(2))
	if bounded {
		args = append(args, end)
		fmt.Fprintf(&sb, " AND %s < %s", tsColumn, ph(3))
	}
	fmt.Fprintf(&sb, " ORDER BY %s ASC, id ASC", tsColumn)

	return sb.String(), args
}
