package logger

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSensitiveFields are masked when no explicit list is configured.
var DefaultSensitiveFields = []string{
	"password", "password_hash", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "social_security",
	"private_key", "priv_key",
}

// mask replaces sensitive values in logs.
const mask = "***REDACTED***"

// NamedValues is an ordered set of named bind values.
type NamedValues interface {
	Names() []string
	Value(name string) (any, bool)
}

// Sanitizer masks bind values whose names refer to sensitive columns. Binds
// are named after their column ("password0", "users_token3_1"), so the
// decision is made per value rather than per statement.
type Sanitizer struct {
	fields []string
}

// NewSanitizer returns a sanitizer for the given column names, or for
// DefaultSensitiveFields when none are given.
func NewSanitizer(fields []string) *Sanitizer {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return &Sanitizer{fields: out}
}

// bindSuffix is the column index and list position appended to bind names.
var bindSuffix = regexp.MustCompile(`[0-9_]+$`)

// IsSensitive reports whether the bind or column name refers to a sensitive
// field. The field must make up the trailing "_"-separated segments of the
// name: "password1", "user_password0" and "users_api_key2" match, while
// "author" does not match "auth" and "token_count0" does not match "token".
func (s *Sanitizer) IsSensitive(name string) bool {
	stem := strings.ToLower(bindSuffix.ReplaceAllString(name, ""))
	if stem == "" {
		return false
	}
	for _, f := range s.fields {
		if stem == f || strings.HasSuffix(stem, "_"+f) {
			return true
		}
	}
	return false
}

// Mask returns v, or the mask when name is sensitive.
func (s *Sanitizer) Mask(name string, v any) any {
	if s.IsSensitive(name) {
		return mask
	}
	return v
}

// FormatBinds renders binds as "{name=value, ...}" in bind order, masking
// sensitive values and truncating long ones.
func (s *Sanitizer) FormatBinds(b NamedValues) string {
	if b == nil {
		return "{}"
	}
	names := b.Names()
	parts := make([]string, 0, len(names))
	for _, n := range names {
		v, _ := b.Value(n)
		parts = append(parts, n+"="+formatValue(s.Mask(n, v)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	var str string
	if b, ok := v.([]byte); ok {
		str = fmt.Sprintf("<%d bytes>", len(b))
	} else {
		str = fmt.Sprintf("%v", v)
	}

	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
