package core

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/coregx/relmap/internal/clause"
	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/entity"
)

// relationShape is what a relation builder needs to shape the query.
type relationShape struct {
	rel     entity.Relation
	target  *entity.Meta
	local   any
	dialect dialects.Dialect
}

// relationBuilders shape the related-rows query for each relation kind.
var relationBuilders = map[entity.RelationKind]func(d *descriptor, s relationShape) error{
	entity.KindHasOne: func(d *descriptor, s relationShape) error {
		d.where = add(d.where, condition.Map{s.rel.ForeignKey: s.local}.ToGroup())
		d.limit = 1
		return nil
	},
	entity.KindHasMany: func(d *descriptor, s relationShape) error {
		d.where = add(d.where, condition.Map{s.rel.ForeignKey: s.local}.ToGroup())
		return nil
	},
	entity.KindHasManyThrough: func(d *descriptor, s relationShape) error {
		pk := s.target.PrimaryKey()
		if pk == nil {
			return fmt.Errorf("relation %s: %s: %w", s.rel.Name, s.target.Datasource, entity.ErrMissingPrimaryKey)
		}
		on := dialects.Quote(s.dialect, s.rel.Through+"."+s.rel.ThroughForeignKey) +
			" = " + dialects.Quote(s.dialect, s.target.Datasource+"."+pk.Column)
		d.fields = []string{s.target.Datasource + ".*"}
		d.joins = add(d.joins, clause.Join{Table: s.rel.Through, On: on, Kind: "INNER"})
		d.where = add(d.where, condition.Map{s.rel.Through + "." + s.rel.ThroughLocalKey: s.local}.ToGroup())
		return nil
	},
}

// Related builds the query for the relation name declared by owner's type.
// The query is snapshotted, so Reset returns to the relation's own
// conditions.
func Related[T any](m *Mapper, owner any, name string) (Query[T], error) {
	ownerMeta, err := m.db.entities.Meta(owner)
	if err != nil {
		return Query[T]{}, err
	}
	rel, ok := ownerMeta.Relation(name)
	if !ok {
		return Query[T]{}, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, ownerMeta.Datasource, name)
	}

	q := newQuery[T](m)
	if q.err != nil {
		return Query[T]{}, q.err
	}
	if tt := indirectType(reflect.TypeOf(rel.Target)); tt != q.meta.Type {
		return Query[T]{}, fmt.Errorf("relmap: relation %s targets %v, not %v", name, tt, q.meta.Type)
	}

	localKey := rel.LocalKey
	if localKey == "" {
		pk := ownerMeta.PrimaryKey()
		if pk == nil {
			return Query[T]{}, fmt.Errorf("relation %s: %w", name, entity.ErrMissingPrimaryKey)
		}
		localKey = pk.Column
	}
	local, err := ownerMeta.ColumnValue(reflect.ValueOf(owner), localKey)
	if err != nil {
		return Query[T]{}, err
	}

	build, ok := relationBuilders[rel.Kind]
	if !ok {
		return Query[T]{}, fmt.Errorf("%w: %s has kind %s", ErrUnknownRelation, name, rel.Kind)
	}
	d := emptyDescriptor()
	shape := relationShape{rel: rel, target: q.meta, local: local, dialect: m.db.dialect}
	if err := build(&d, shape); err != nil {
		return Query[T]{}, err
	}
	if len(rel.Where) > 0 {
		d.where = add(d.where, rel.Where.ToGroup())
	}
	if rel.OrderBy != "" {
		d.order = add(d.order, parseOrder(rel.OrderBy)...)
	}

	q.state = d
	return q.Snapshot(), nil
}

// parseOrder splits "created_at DESC, id" into order terms.
func parseOrder(order string) []clause.Order {
	var out []clause.Order
	for _, term := range strings.Split(order, ",") {
		fields := strings.Fields(term)
		switch len(fields) {
		case 0:
			continue
		case 1:
			out = append(out, clause.Order{Column: fields[0]})
		default:
			out = append(out, clause.Order{
				Column:    strings.Join(fields[:len(fields)-1], " "),
				Direction: fields[len(fields)-1],
			})
		}
	}
	return out
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
