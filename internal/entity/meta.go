// Package entity describes how Go structs map onto tables: the datasource
// name, the column of every field, the primary key, the type handler of each
// field and the declared relations. The description is built once per Go type
// and cached by a Registry.
//
// Fields are configured with struct tags:
//
//	type Post struct {
//	    ID        int64          `db:"id,pk"`           // integer keys are serial unless tagged "manual"
//	    Title     string         `db:"title,required"`
//	    Meta      map[string]any `db:"meta" type:"json"`
//	    CreatedAt time.Time      `db:"created_at" type:"datetime"`
//	    Draft     bool           // column "draft"
//	    cache     string         // unexported, ignored
//	}
package entity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
)

// ErrInvalidEntity is returned when a value is not a struct or pointer to one.
var ErrInvalidEntity = errors.New("relmap: invalid entity type")

// Datasourcer lets an entity name its table.
type Datasourcer interface {
	Datasource() string
}

// Relater lets an entity declare its relations.
type Relater interface {
	Relations() []Relation
}

// Field is one mapped struct field.
type Field struct {
	Name       string
	Column     string
	Index      []int
	Type       reflect.Type
	TypeName   string
	PrimaryKey bool
	Serial     bool

	handler TypeHandler
	manual  bool
}

// Nullable reports whether the field can hold NULL.
func (f *Field) Nullable() bool {
	return f.Type.Kind() == reflect.Pointer
}

// Meta is the mapping of one entity type.
type Meta struct {
	Type       reflect.Type
	Datasource string
	Fields     []*Field

	primary   *Field
	byColumn  map[string]*Field
	relations map[string]Relation
	order     []string
}

// PrimaryKey returns the primary key field, or nil when the entity has none.
func (m *Meta) PrimaryKey() *Field {
	return m.primary
}

// Field returns the field mapped to column (case-insensitive).
func (m *Meta) Field(column string) (*Field, bool) {
	f, ok := m.byColumn[strings.ToLower(column)]
	return f, ok
}

// Columns returns every mapped column in declaration order.
func (m *Meta) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Relation returns the relation declared under name.
func (m *Meta) Relation(name string) (Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// Relations returns the declared relations in declaration order.
func (m *Meta) Relations() []Relation {
	out := make([]Relation, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.relations[n])
	}
	return out
}

// Registry caches entity metadata per Go type.
type Registry struct {
	mu    sync.RWMutex
	cache map[reflect.Type]*Meta
	types *TypeRegistry
}

// NewRegistry returns a metadata registry resolving field handlers in types.
// A nil types uses NewTypeRegistry with default formats.
func NewRegistry(types *TypeRegistry) *Registry {
	if types == nil {
		types = NewTypeRegistry(Formats{})
	}
	return &Registry{cache: make(map[reflect.Type]*Meta), types: types}
}

// Types returns the type-handler registry.
func (r *Registry) Types() *TypeRegistry {
	return r.types
}

// Meta returns the metadata for v, which may be a struct, a pointer to a
// struct or a reflect.Type of either.
func (r *Registry) Meta(v any) (*Meta, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidEntity)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntity, t)
	}

	r.mu.RLock()
	m, ok := r.cache[t]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.cache[t]; ok {
		return m, nil
	}
	m, err := r.build(t)
	if err != nil {
		return nil, err
	}
	r.cache[t] = m
	return m, nil
}

func (r *Registry) build(t reflect.Type) (*Meta, error) {
	m := &Meta{
		Type:      t,
		byColumn:  make(map[string]*Field),
		relations: make(map[string]Relation),
	}
	if err := r.collect(m, t, nil); err != nil {
		return nil, err
	}

	if m.primary == nil {
		if f, ok := m.byColumn["id"]; ok {
			f.PrimaryKey = true
			m.primary = f
		}
	}
	// Integer keys are generated by the database unless tagged otherwise.
	if pk := m.primary; pk != nil && pk.TypeName == "integer" && !pk.manual {
		pk.Serial = true
	}

	zero := reflect.New(t).Interface()
	if ds, ok := zero.(Datasourcer); ok {
		m.Datasource = ds.Datasource()
	} else {
		m.Datasource = inflect.Pluralize(inflect.Underscore(t.Name()))
	}

	if rel, ok := zero.(Relater); ok {
		for _, rl := range rel.Relations() {
			if rl.Name == "" {
				return nil, fmt.Errorf("relmap: %s declares a relation without a name", t)
			}
			if _, dup := m.relations[rl.Name]; dup {
				return nil, fmt.Errorf("relmap: %s declares relation %q twice", t, rl.Name)
			}
			m.relations[rl.Name] = rl
			m.order = append(m.order, rl.Name)
		}
	}
	return m, nil
}

func (r *Registry) collect(m *Meta, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		idx := append(append([]int{}, index...), i)

		tag, hasTag := sf.Tag.Lookup("db")
		if tag == "-" {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && !hasTag {
			if err := r.collect(m, sf.Type, idx); err != nil {
				return err
			}
			continue
		}

		f, err := r.field(sf, tag, idx)
		if err != nil {
			return fmt.Errorf("relmap: %s.%s: %w", m.Type, sf.Name, err)
		}
		key := strings.ToLower(f.Column)
		if _, dup := m.byColumn[key]; dup {
			return fmt.Errorf("relmap: %s maps column %q twice", m.Type, f.Column)
		}
		if f.PrimaryKey {
			if m.primary != nil {
				return fmt.Errorf("relmap: %s has more than one primary key", m.Type)
			}
			m.primary = f
		}
		m.byColumn[key] = f
		m.Fields = append(m.Fields, f)
	}
	return nil
}

func (r *Registry) field(sf reflect.StructField, tag string, idx []int) (*Field, error) {
	f := &Field{Name: sf.Name, Index: idx, Type: sf.Type}

	parts := strings.Split(tag, ",")
	f.Column = strings.TrimSpace(parts[0])
	if f.Column == "" {
		f.Column = columnName(sf.Name)
	}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "pk", "primary":
			f.PrimaryKey = true
		case "serial", "autoincrement":
			f.Serial = true
		case "manual":
			f.manual = true
		}
	}

	f.TypeName = sf.Tag.Get("type")
	if f.TypeName == "" {
		f.TypeName = inferType(sf.Type)
	}
	h, err := r.types.Lookup(f.TypeName)
	if err != nil {
		return nil, err
	}
	f.handler = h
	return f, nil
}

// columnName derives a column from a Go field name: "CreatedAt" becomes
// "created_at" and an all-caps name like "ID" is lower-cased.
func columnName(name string) string {
	if strings.ToUpper(name) == name {
		return strings.ToLower(name)
	}
	return inflect.Underscore(name)
}
