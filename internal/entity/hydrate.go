package entity

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrMissingPrimaryKey is returned for operations that need a primary key on
// an entity that has none.
var ErrMissingPrimaryKey = errors.New("relmap: entity has no primary key")

// Hydrate decodes one row into dst, an addressable struct value of m's type.
// Columns without a mapped field are ignored.
func (m *Meta) Hydrate(columns []string, row []any, dst reflect.Value) error {
	if len(columns) != len(row) {
		return fmt.Errorf("relmap: %d columns, %d values", len(columns), len(row))
	}
	for i, col := range columns {
		f, ok := m.Field(col)
		if !ok {
			continue
		}
		if err := f.Load(row[i], dst.FieldByIndex(f.Index)); err != nil {
			return fmt.Errorf("relmap: hydrate %s.%s: %w", m.Datasource, f.Column, err)
		}
	}
	return nil
}

// Load decodes src into the field value fv. NULL resets the field to its zero
// value; pointer fields are allocated as needed.
func (f *Field) Load(src any, fv reflect.Value) error {
	if src == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	return f.handler.Load(src, fv)
}

// Dump encodes the field value fv for the driver. A nil pointer is NULL.
func (f *Field) Dump(fv reflect.Value) (any, error) {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	return f.handler.Dump(fv.Interface())
}

// Values dumps the fields of the struct value v. The primary key is skipped
// when it is serial and still zero, so the database can generate it.
func (m *Meta) Values(v reflect.Value) (columns []string, values []any, err error) {
	v = indirect(v)
	for _, f := range m.Fields {
		fv := v.FieldByIndex(f.Index)
		if f.PrimaryKey && f.Serial && fv.IsZero() {
			continue
		}
		dv, err := f.Dump(fv)
		if err != nil {
			return nil, nil, fmt.Errorf("relmap: dump %s.%s: %w", m.Datasource, f.Column, err)
		}
		columns = append(columns, f.Column)
		values = append(values, dv)
	}
	return columns, values, nil
}

// PrimaryValue returns the dumped primary key of v and whether it is set.
func (m *Meta) PrimaryValue(v reflect.Value) (any, bool, error) {
	if m.primary == nil {
		return nil, false, ErrMissingPrimaryKey
	}
	fv := indirect(v).FieldByIndex(m.primary.Index)
	if fv.IsZero() {
		return nil, false, nil
	}
	dv, err := m.primary.Dump(fv)
	return dv, true, err
}

// SetPrimary stores a generated key into the primary key field of v.
func (m *Meta) SetPrimary(v reflect.Value, id any) error {
	if m.primary == nil {
		return ErrMissingPrimaryKey
	}
	return m.primary.Load(id, indirect(v).FieldByIndex(m.primary.Index))
}

// ColumnValue returns the dumped value of column in v.
func (m *Meta) ColumnValue(v reflect.Value, column string) (any, error) {
	f, ok := m.Field(column)
	if !ok {
		return nil, fmt.Errorf("relmap: %s has no column %q", m.Datasource, column)
	}
	return f.Dump(indirect(v).FieldByIndex(f.Index))
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v
}

// Assign sets fields of the struct value v from Go values keyed by column.
// Values assignable or convertible to the field type are stored directly;
// anything else goes through the field's type handler.
func (m *Meta) Assign(v reflect.Value, data map[string]any) error {
	v = indirect(v)
	for col, val := range data {
		f, ok := m.Field(col)
		if !ok {
			return fmt.Errorf("relmap: %s has no column %q", m.Datasource, col)
		}
		fv := v.FieldByIndex(f.Index)
		if val == nil {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		rv := reflect.ValueOf(val)
		switch {
		case rv.Type().AssignableTo(fv.Type()):
			fv.Set(rv)
		case fv.Kind() == reflect.Pointer && rv.Type().AssignableTo(fv.Type().Elem()):
			p := reflect.New(fv.Type().Elem())
			p.Elem().Set(rv)
			fv.Set(p)
		case rv.Type().ConvertibleTo(fv.Type()) && (fv.Kind() != reflect.String || rv.Kind() == reflect.String):
			fv.Set(rv.Convert(fv.Type()))
		default:
			if err := f.Load(val, fv); err != nil {
				return fmt.Errorf("relmap: assign %s.%s: %w", m.Datasource, f.Column, err)
			}
		}
	}
	return nil
}
