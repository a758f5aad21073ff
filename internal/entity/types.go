package entity

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownType is returned for a field type with no registered handler.
var ErrUnknownType = errors.New("relmap: unknown field type")

// Default layouts used by the date and time handlers.
const (
	DefaultDateFormat     = "2006-01-02"
	DefaultTimeFormat     = "15:04:05"
	DefaultDateTimeFormat = "2006-01-02 15:04:05"
)

// TypeHandler converts a field between its Go value and the value stored in
// the database.
type TypeHandler interface {
	// Dump converts a non-nil field value into a driver value.
	Dump(v any) (any, error)
	// Load stores a non-nil database value into dst, a settable field.
	Load(src any, dst reflect.Value) error
}

// Formats holds the layouts of the temporal handlers.
type Formats struct {
	Date     string
	Time     string
	DateTime string
}

func (f Formats) withDefaults() Formats {
	if f.Date == "" {
		f.Date = DefaultDateFormat
	}
	if f.Time == "" {
		f.Time = DefaultTimeFormat
	}
	if f.DateTime == "" {
		f.DateTime = DefaultDateTimeFormat
	}
	return f
}

// TypeRegistry maps type names used in `type:"..."` tags to handlers.
type TypeRegistry struct {
	mu       sync.RWMutex
	handlers map[string]TypeHandler
	formats  Formats
}

// NewTypeRegistry returns a registry with the built-in handlers: string, text,
// integer, float, boolean, date, time, datetime, binary, json, msgpack, uuid
// and native (sql.Scanner / driver.Valuer types).
func NewTypeRegistry(f Formats) *TypeRegistry {
	f = f.withDefaults()
	r := &TypeRegistry{handlers: make(map[string]TypeHandler), formats: f}
	r.Register("string", stringType{})
	r.Register("text", stringType{})
	r.Register("integer", integerType{})
	r.Register("float", floatType{})
	r.Register("boolean", booleanType{})
	r.Register("date", timeType{layout: f.Date})
	r.Register("time", timeType{layout: f.Time})
	r.Register("datetime", timeType{layout: f.DateTime})
	r.Register("binary", binaryType{})
	r.Register("json", jsonType{})
	r.Register("msgpack", msgpackType{})
	r.Register("uuid", uuidType{})
	r.Register("native", nativeType{})
	return r
}

// Formats returns the temporal layouts in use.
func (r *TypeRegistry) Formats() Formats {
	return r.formats
}

// Register adds or replaces a handler.
func (r *TypeRegistry) Register(name string, h TypeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler registered under name.
func (r *TypeRegistry) Lookup(name string) (TypeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return h, nil
}

var (
	typeOfTime    = reflect.TypeOf(time.Time{})
	typeOfUUID    = reflect.TypeOf(uuid.UUID{})
	typeOfScanner = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	typeOfValuer  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// inferType picks a handler name for a Go type without a `type` tag.
func inferType(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case typeOfTime:
		return "datetime"
	case typeOfUUID:
		return "uuid"
	}
	if reflect.PointerTo(t).Implements(typeOfScanner) && t.Implements(typeOfValuer) {
		return "native"
	}

	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "binary"
		}
	}
	return "json"
}

type stringType struct{}

func (stringType) Dump(v any) (any, error) {
	return reflect.ValueOf(v).String(), nil
}

func (stringType) Load(src any, dst reflect.Value) error {
	switch s := src.(type) {
	case string:
		dst.SetString(s)
	case []byte:
		dst.SetString(string(s))
	default:
		dst.SetString(fmt.Sprint(src))
	}
	return nil
}

type integerType struct{}

func (integerType) Dump(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("relmap: integer field holds %T", v)
}

func (integerType) Load(src any, dst reflect.Value) error {
	n, err := ToInt64(src)
	if err != nil {
		return err
	}
	switch dst.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("relmap: %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	default:
		if dst.OverflowInt(n) {
			return fmt.Errorf("relmap: %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	}
	return nil
}

// ToInt64 converts the integer representations drivers return.
func ToInt64(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("relmap: cannot convert %T to integer", src)
}

type floatType struct{}

func (floatType) Dump(v any) (any, error) {
	return reflect.ValueOf(v).Float(), nil
}

func (floatType) Load(src any, dst reflect.Value) error {
	var f float64
	switch v := src.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case []byte:
		p, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return err
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		f = p
	default:
		return fmt.Errorf("relmap: cannot convert %T to float", src)
	}
	dst.SetFloat(f)
	return nil
}

// booleanType stores booleans as 0/1 so that every backend compares them the
// same way conditions bind them.
type booleanType struct{}

func (booleanType) Dump(v any) (any, error) {
	if reflect.ValueOf(v).Bool() {
		return int64(1), nil
	}
	return int64(0), nil
}

func (booleanType) Load(src any, dst reflect.Value) error {
	switch v := src.(type) {
	case bool:
		dst.SetBool(v)
		return nil
	case []byte:
		src = string(v)
	}
	if s, ok := src.(string); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("relmap: cannot convert %q to boolean: %w", s, err)
		}
		dst.SetBool(b)
		return nil
	}
	n, err := ToInt64(src)
	if err != nil {
		return err
	}
	dst.SetBool(n != 0)
	return nil
}

type timeType struct {
	layout string
}

// Dump formats t with the handler's layout; the zero time is stored as NULL.
func (h timeType) Dump(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("relmap: time field holds %T", v)
	}
	if t.IsZero() {
		return nil, nil
	}
	return t.Format(h.layout), nil
}

var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	DefaultDateTimeFormat,
	DefaultDateFormat,
	DefaultTimeFormat,
}

func (h timeType) Load(src any, dst reflect.Value) error {
	var s string
	switch v := src.(type) {
	case time.Time:
		dst.Set(reflect.ValueOf(v))
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("relmap: cannot convert %T to time", src)
	}

	if t, err := time.Parse(h.layout, s); err == nil {
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("relmap: cannot parse time %q", s)
}

type binaryType struct{}

func (binaryType) Dump(v any) (any, error) {
	return reflect.ValueOf(v).Bytes(), nil
}

func (binaryType) Load(src any, dst reflect.Value) error {
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("relmap: cannot convert %T to bytes", src)
	}
	dst.SetBytes(b)
	return nil
}

type jsonType struct{}

func (jsonType) Dump(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (jsonType) Load(src any, dst reflect.Value) error {
	b, err := rawBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst.Addr().Interface())
}

type msgpackType struct{}

func (msgpackType) Dump(v any) (any, error) {
	return msgpack.Marshal(v)
}

func (msgpackType) Load(src any, dst reflect.Value) error {
	b, err := rawBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return msgpack.Unmarshal(b, dst.Addr().Interface())
}

type uuidType struct{}

func (uuidType) Dump(v any) (any, error) {
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("relmap: uuid field holds %T", v)
	}
	return id.String(), nil
}

func (uuidType) Load(src any, dst reflect.Value) error {
	var (
		id  uuid.UUID
		err error
	)
	switch v := src.(type) {
	case string:
		id, err = uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			id, err = uuid.FromBytes(v)
		} else {
			id, err = uuid.ParseBytes(v)
		}
	default:
		return fmt.Errorf("relmap: cannot convert %T to uuid", src)
	}
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(id))
	return nil
}

// nativeType defers to the value's own driver.Valuer and sql.Scanner.
type nativeType struct{}

func (nativeType) Dump(v any) (any, error) {
	if dv, ok := v.(driver.Valuer); ok {
		return dv.Value()
	}
	return v, nil
}

func (nativeType) Load(src any, dst reflect.Value) error {
	sc, ok := dst.Addr().Interface().(sql.Scanner)
	if !ok {
		return fmt.Errorf("relmap: %s does not implement sql.Scanner", dst.Type())
	}
	return sc.Scan(src)
}

func rawBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("relmap: cannot decode %T", src)
}
