package condition

import (
	"regexp"
	"strconv"
	"unicode"
)

var nonWord = regexp.MustCompile(`\W+`)

// Sanitize turns a column expression into a bind-name stem: every run of
// non-word characters becomes "_", and a stem that does not start with a
// letter or underscore is prefixed with "p".
func Sanitize(column string) string {
	s := nonWord.ReplaceAllString(column, "_")
	if s == "" {
		return "p"
	}
	r := rune(s[0])
	if r != '_' && !unicode.IsLetter(r) {
		s = "p" + s
	}
	return s
}

// Binds is an insertion-ordered map of bind names to values.
type Binds struct {
	names  []string
	values map[string]any
}

// NewBinds returns an empty bind map.
func NewBinds() *Binds {
	return &Binds{values: make(map[string]any)}
}

// Add stores v under name and returns the name actually used. When name is
// already taken a numeric suffix is appended until it is unique.
func (b *Binds) Add(name string, v any) string {
	if b.values == nil {
		b.values = make(map[string]any)
	}
	final := name
	for k := 1; ; k++ {
		if _, taken := b.values[final]; !taken {
			break
		}
		final = name + "_" + strconv.Itoa(k)
	}
	b.names = append(b.names, final)
	b.values[final] = v
	return final
}

// Names returns the bind names in insertion order.
func (b *Binds) Names() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Value returns the value bound to name.
func (b *Binds) Value(name string) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b.values[name]
	return v, ok
}

// Len returns the number of binds.
func (b *Binds) Len() int {
	if b == nil {
		return 0
	}
	return len(b.names)
}

// Map returns a copy of the binds as a plain map.
func (b *Binds) Map() map[string]any {
	out := make(map[string]any, b.Len())
	if b == nil {
		return out
	}
	for k, v := range b.values {
		out[k] = v
	}
	return out
}
