package entity

import (
	"github.com/coregx/relmap/internal/condition"
)

// RelationKind tags the shape of a relation.
type RelationKind int

const (
	KindHasOne RelationKind = iota + 1
	KindHasMany
	KindHasManyThrough
)

func (k RelationKind) String() string {
	switch k {
	case KindHasOne:
		return "has_one"
	case KindHasMany:
		return "has_many"
	case KindHasManyThrough:
		return "has_many_through"
	}
	return "unknown"
}

// Relation links an owner entity to related entities.
//
// HasOne and HasMany match Target.ForeignKey against Owner.LocalKey.
// HasManyThrough joins Through on Through.ThroughForeignKey = Target primary
// key and matches Through.ThroughLocalKey against Owner.LocalKey.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target any

	ForeignKey string
	// LocalKey defaults to the owner's primary key column.
	LocalKey string

	Through           string
	ThroughLocalKey   string
	ThroughForeignKey string

	// Where adds conditions on the related rows.
	Where condition.Map
	// OrderBy sorts the related rows, e.g. "created_at DESC".
	OrderBy string
}

// HasOne declares a one-to-one relation on target.foreignKey.
func HasOne(name string, target any, foreignKey string) Relation {
	return Relation{Name: name, Kind: KindHasOne, Target: target, ForeignKey: foreignKey}
}

// HasMany declares a one-to-many relation on target.foreignKey.
func HasMany(name string, target any, foreignKey string) Relation {
	return Relation{Name: name, Kind: KindHasMany, Target: target, ForeignKey: foreignKey}
}

// HasManyThrough declares a many-to-many relation through a join table.
func HasManyThrough(name string, target any, through, throughLocalKey, throughForeignKey string) Relation {
	return Relation{
		Name:              name,
		Kind:              KindHasManyThrough,
		Target:            target,
		Through:           through,
		ThroughLocalKey:   throughLocalKey,
		ThroughForeignKey: throughForeignKey,
	}
}
