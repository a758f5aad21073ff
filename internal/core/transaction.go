package core

import (
	"context"
	"errors"
)

// Transaction runs fn inside a transaction. The transaction commits when fn
// returns nil. It rolls back when fn returns an error, which is then
// returned, except for ErrRollback, which rolls back and returns nil. A panic
// in fn rolls back and is re-raised. Called on a mapper that is already in a
// transaction, fn joins it.
func (m *Mapper) Transaction(ctx context.Context, fn func(tx *Mapper) error) (err error) {
	if m.tx != nil {
		return fn(m)
	}

	tx, err := m.db.Begin(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Mapper()); err != nil {
		rbErr := tx.Rollback()
		if errors.Is(err, ErrRollback) {
			return rbErr
		}
		if rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
