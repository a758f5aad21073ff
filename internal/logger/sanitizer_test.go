package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type binds struct {
	names  []string
	values map[string]any
}

func (b binds) Names() []string { return b.names }
func (b binds) Value(n string) (any, bool) {
	v, ok := b.values[n]
	return v, ok
}

func TestSanitizer_IsSensitive(t *testing.T) {
	s := NewSanitizer(nil)

	tests := []struct {
		name string
		want bool
	}{
		{"password0", true},
		{"password", true},
		{"user_password3", true},
		{"password_hash1_2", true},
		{"api_key0", true},
		{"users_token2_0", true},
		{"author0", false},
		{"status0", false},
		{"title", false},
		{"tokens_count", false},
		{"token_count0", false},
		{"password_reset_at1", false},
		{"author_auth_token0", true},
		{"users_api_key2", true},
		{"0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsSensitive(tt.name))
		})
	}
}

func TestSanitizer_CustomFields(t *testing.T) {
	s := NewSanitizer([]string{" PIN ", ""})
	assert.True(t, s.IsSensitive("pin0"))
	assert.False(t, s.IsSensitive("password0"))
}

func TestSanitizer_FormatBinds(t *testing.T) {
	s := NewSanitizer(nil)
	b := binds{
		names: []string{"email0", "password1", "avatar", "deleted_at2"},
		values: map[string]any{
			"email0":      "a@example.com",
			"password1":   "hunter2",
			"avatar":      []byte{1, 2, 3},
			"deleted_at2": nil,
		},
	}

	got := s.FormatBinds(b)
	assert.Equal(t, "{email0=a@example.com, password1=***REDACTED***, avatar=<3 bytes>, deleted_at2=NULL}", got)
	assert.NotContains(t, got, "hunter2")
	assert.Equal(t, "{}", s.FormatBinds(nil))
}

func TestSanitizer_TruncatesLongValues(t *testing.T) {
	s := NewSanitizer(nil)
	long := strings.Repeat("x", 150)
	got := s.FormatBinds(binds{names: []string{"body0"}, values: map[string]any{"body0": long}})
	assert.Equal(t, "{body0="+strings.Repeat("x", 100)+"...}", got)
}

func TestSanitizer_Mask(t *testing.T) {
	s := NewSanitizer(nil)
	assert.Equal(t, "***REDACTED***", s.Mask("secret0", "s3cr3t"))
	assert.Equal(t, 5, s.Mask("status0", 5))
}
