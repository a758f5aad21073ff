// Package dialects provides the SQL dialects for PostgreSQL, MySQL and SQLite.
// A Dialect owns everything that differs between backends: identifier
// quoting, placeholders, regex and full-text comparisons, LIMIT/OFFSET,
// RETURNING, UPSERT syntax and recognition of the "undefined table" error.
package dialects

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupported is returned by Registry.Lookup for an unknown dialect name.
var ErrUnsupported = errors.New("dialects: unsupported dialect")

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the canonical dialect name.
	Name() string
	QuoteIdentifier(string) string
	// Placeholder returns the positional placeholder for the 1-based index.
	Placeholder(int) string
	// Comparison renders "column operator placeholder" for operators whose
	// spelling differs between backends (REGEXP, MATCH).
	Comparison(column, operator, placeholder string) string
	Limit(n int) string
	Offset(n int) string
	// Returning returns a RETURNING suffix for INSERT, or "" when the backend
	// reports generated keys through LastInsertId.
	Returning(column string) string
	// UpsertSQL returns the conflict clause appended to an INSERT.
	UpsertSQL(table string, conflict, update []string) string
	// IsUndefinedTable reports whether err signals a missing table.
	IsUndefinedTable(err error) bool
}

// Registry maps driver names to dialects.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Dialect
}

// NewRegistry returns a registry holding the built-in dialects under their
// usual driver names.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Dialect)}
	pg := &PostgresDialect{}
	r.Register("postgres", pg)
	r.Register("postgresql", pg)
	r.Register("pgx", pg)
	r.Register("mysql", &MySQLDialect{})
	lite := &SQLiteDialect{}
	r.Register("sqlite", lite)
	r.Register("sqlite3", lite)
	return r
}

// Register registers a dialect by driver name, replacing any previous one.
func (r *Registry) Register(name string, d Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[strings.ToLower(name)] = d
}

// Lookup retrieves a registered dialect by driver name.
func (r *Registry) Lookup(name string) (Dialect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byName[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Names returns the registered driver names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// IsIdentifier reports whether s is a plain (optionally dotted) identifier.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// Quote quotes a plain identifier such as "status" or "posts.status" part by
// part. Anything else (expressions, aliases, "*") is returned verbatim.
func Quote(d Dialect, name string) string {
	if !IsIdentifier(name) {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func quoteAll(d Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = Quote(d, c)
	}
	return out
}

func limitClause(n int) string {
	if n < 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d", n)
}

func offsetClause(n int) string {
	if n < 0 {
		return ""
	}
	return fmt.Sprintf("OFFSET %d", n)
}

func binaryComparison(column, operator, placeholder string) string {
	return column + " " + operator + " " + placeholder
}
