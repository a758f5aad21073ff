package analyzer

import (
	"context"
	"strings"
)

type sqliteExplainer struct{}

// Explain runs EXPLAIN QUERY PLAN, which yields one (id, parent, notused,
// detail) row per plan step.
func (sqliteExplainer) Explain(ctx context.Context, q Querier, query string, args []any) (*Plan, error) {
	rows, err := q.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []string
	for rows.Next() {
		var id, parent, notused int64
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return parseSQLite(details), nil
}

// parseSQLite reads plan steps such as
//
//	SCAN posts
//	SEARCH posts USING INDEX posts_status (status<?)
//	SEARCH posts USING INTEGER PRIMARY KEY (rowid=?)
func parseSQLite(details []string) *Plan {
	p := &Plan{Database: "sqlite", Raw: strings.Join(details, "\n")}
	for _, d := range details {
		upper := strings.ToUpper(strings.TrimSpace(d))
		switch {
		case strings.Contains(upper, "USING COVERING INDEX "):
			p.noteIndex(wordAfter(d, "USING COVERING INDEX "))
		case strings.Contains(upper, "USING INDEX "):
			p.noteIndex(wordAfter(d, "USING INDEX "))
		case strings.Contains(upper, "USING INTEGER PRIMARY KEY"):
			p.noteIndex("PRIMARY KEY")
		case strings.Contains(upper, "USING AUTOMATIC"):
			p.noteIndex("AUTOMATIC INDEX")
		case strings.HasPrefix(upper, "SCAN "):
			p.FullScan = true
		}
	}
	return p
}

// wordAfter returns the word following marker in s, matched case-insensitively.
func wordAfter(s, marker string) string {
	i := strings.Index(strings.ToUpper(s), marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimSpace(s[i+len(marker):])
	if end := strings.IndexAny(rest, " ("); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
