package clause

import (
	"regexp"
	"strings"

	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/dialects"
)

// Statement is SQL text with :name placeholders and the values they bind.
type Statement struct {
	SQL   string
	Binds *condition.Binds
}

// Raw builds a Statement from hand written SQL and named parameters.
func Raw(sql string, params map[string]any) Statement {
	b := condition.NewBinds()
	for k, v := range params {
		b.Add(k, v)
	}
	return Statement{SQL: sql, Binds: b}
}

// tokenRegex matches, in order: quoted literals, {{table}} and [[column]]
// quoting markers, the PostgreSQL cast operator, and :name placeholders.
var tokenRegex = regexp.MustCompile(`'(?:[^']|'')*'|\{\{[^}]+\}\}|\[\[[^\]]+\]\]|::|:([A-Za-z_]\w*)`)

// Positional rewrites the :name placeholders into d's positional form and
// returns the arguments in placeholder order. A name that appears twice is
// bound twice. {{table}} and [[column]] markers are quoted with d. A
// placeholder without a bind is a validation error.
func (s Statement) Positional(d dialects.Dialect) (string, []any, error) {
	var (
		args []any
		err  error
	)
	sql := tokenRegex.ReplaceAllStringFunc(s.SQL, func(tok string) string {
		switch {
		case err != nil, tok == "::", tok[0] == '\'':
			return tok
		case strings.HasPrefix(tok, "{{"), strings.HasPrefix(tok, "[["):
			return dialects.Quote(d, strings.TrimSpace(tok[2:len(tok)-2]))
		}
		name := tok[1:]
		v, ok := s.Binds.Value(name)
		if !ok {
			err = &condition.ValidationError{Column: name, Reason: "placeholder :" + name + " has no bind"}
			return tok
		}
		args = append(args, v)
		return d.Placeholder(len(args))
	})
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// String returns the SQL text.
func (s Statement) String() string { return s.SQL }
