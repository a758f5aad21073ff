// Package security screens raw statements for injection patterns and writes
// an audit trail of executed statements.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrRejected is matched by every *RejectedError.
var ErrRejected = errors.New("relmap: statement rejected")

// RejectedError reports the construct that caused a statement or one of its
// bind values to be refused.
type RejectedError struct {
	// Bind names the offending bind value; empty when the SQL text matched.
	Bind    string
	Pattern string
}

func (e *RejectedError) Error() string {
	if e.Bind != "" {
		return fmt.Sprintf("relmap: bind %q looks like SQL injection", e.Bind)
	}
	return fmt.Sprintf("relmap: statement matches unsafe pattern %s", e.Pattern)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Values is the view of a bind set the validator inspects.
type Values interface {
	Names() []string
	Value(name string) (any, bool)
}

// Validator refuses statements carrying stacked queries, comment tricks,
// UNION probes or timing functions.
type Validator struct {
	patterns []*regexp.Regexp
}

// Option configures a Validator.
type Option func(*validatorConfig)

type validatorConfig struct {
	strict bool
	extra  []string
}

// WithStrict also rejects any UNION or EXEC keyword.
func WithStrict() Option {
	return func(c *validatorConfig) { c.strict = true }
}

// WithPatterns adds case-insensitive patterns. Invalid expressions panic.
func WithPatterns(patterns ...string) Option {
	return func(c *validatorConfig) { c.extra = append(c.extra, patterns...) }
}

var unsafePatterns = []string{
	`--\s`,
	`/\*.*\*/`,
	`#\s`,
	`;\s*(DROP|DELETE|TRUNCATE|ALTER|CREATE|INSERT|UPDATE)\s`,
	`UNION(\s+ALL)?\s+SELECT`,
	`XP_CMDSHELL`,
	`SP_EXECUTESQL`,
	`\bEXEC(UTE)?\s*\(`,
	`INFORMATION_SCHEMA`,
	`PG_SLEEP\s*\(`,
	`BENCHMARK\s*\(`,
	`WAITFOR\s+DELAY`,
	`\sOR\s+1\s*=\s*1\b`,
	`\sOR\s+'1'\s*=\s*'1'`,
}

var strictPatterns = []string{
	`\bUNION\b`,
	`\bEXEC(UTE)?\b`,
}

var bindIndicators = []string{"'--", "';", "' OR ", "' AND ", "/*", "*/", "' UNION ", "' DROP ", "XP_"}

// NewValidator compiles the default pattern set plus any option additions.
func NewValidator(opts ...Option) *Validator {
	var cfg validatorConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	src := append([]string(nil), unsafePatterns...)
	if cfg.strict {
		src = append(src, strictPatterns...)
	}
	src = append(src, cfg.extra...)

	v := &Validator{patterns: make([]*regexp.Regexp, 0, len(src))}
	for _, p := range src {
		v.patterns = append(v.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return v
}

// CheckSQL rejects sql when it matches an unsafe pattern.
func (v *Validator) CheckSQL(sql string) error {
	for _, re := range v.patterns {
		if re.MatchString(sql) {
			return &RejectedError{Pattern: re.String()}
		}
	}
	return nil
}

// CheckBinds rejects string bind values that carry injection markers. Binds
// are sent out of band, so these only indicate a probing caller.
func (v *Validator) CheckBinds(values Values) error {
	if values == nil {
		return nil
	}
	for _, name := range values.Names() {
		raw, _ := values.Value(name)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		upper := strings.ToUpper(s)
		for _, ind := range bindIndicators {
			if strings.Contains(upper, ind) {
				return &RejectedError{Bind: name, Pattern: ind}
			}
		}
	}
	return nil
}

// Check runs CheckSQL then CheckBinds.
func (v *Validator) Check(sql string, values Values) error {
	if err := v.CheckSQL(sql); err != nil {
		return err
	}
	return v.CheckBinds(values)
}
