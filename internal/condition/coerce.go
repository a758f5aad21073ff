package condition

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// DefaultDateTimeFormat is the layout used for time.Time binds.
const DefaultDateTimeFormat = "2006-01-02 15:04:05"

// Coercer converts condition values into driver-friendly scalars before they
// are bound.
type Coercer struct {
	// DateTimeFormat formats time.Time values. Empty means DefaultDateTimeFormat.
	DateTimeFormat string
}

// Coerce converts v. Booleans become 0/1, times become formatted strings,
// driver.Valuer values are resolved, pointers are dereferenced and other
// composite values use their string form. Lists stay lists with each element
// coerced.
func (c Coercer) Coerce(v any) (any, error) {
	if isNull(v) {
		return nil, nil
	}

	switch t := v.(type) {
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return nil, fmt.Errorf("relmap: value of %T: %w", v, err)
		}
		if dv == nil {
			return nil, nil
		}
		return c.Coerce(dv)
	case bool:
		return boolInt(t), nil
	case time.Time:
		return t.Format(c.layout()), nil
	case string, []byte, int64, float64:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		return c.Coerce(rv.Elem().Interface())
	case reflect.Bool:
		return boolInt(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		if !isList(v) {
			return bytesOf(rv), nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			ev, err := c.Coerce(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}

	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return fmt.Sprint(v), nil
}

func (c Coercer) layout() string {
	if c.DateTimeFormat == "" {
		return DefaultDateTimeFormat
	}
	return c.DateTimeFormat
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func bytesOf(rv reflect.Value) []byte {
	if rv.Kind() == reflect.Slice {
		return rv.Bytes()
	}
	out := make([]byte, rv.Len())
	for i := range out {
		out[i] = byte(rv.Index(i).Uint())
	}
	return out
}
