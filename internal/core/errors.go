package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a single-row read matches nothing.
	ErrNotFound = errors.New("relmap: not found")
	// ErrRollback, returned from a Transaction callback, rolls the
	// transaction back without reporting an error.
	ErrRollback = errors.New("relmap: rollback")
	// ErrDatasourceMissing is matched by *DatasourceMissingError.
	ErrDatasourceMissing = errors.New("relmap: datasource missing")
	// ErrAdapter is matched by *AdapterError.
	ErrAdapter = errors.New("relmap: adapter failure")
	// ErrConfiguration is matched by *ConfigurationError.
	ErrConfiguration = errors.New("relmap: invalid configuration")
	// ErrUnknownRelation is returned by Related for an undeclared relation.
	ErrUnknownRelation = errors.New("relmap: unknown relation")
)

// DatasourceMissingError reports a statement against a table that does not
// exist.
type DatasourceMissingError struct {
	Datasource string
	Err        error
}

func (e *DatasourceMissingError) Error() string {
	if e.Datasource == "" {
		return fmt.Sprintf("relmap: datasource missing: %v", e.Err)
	}
	return fmt.Sprintf("relmap: datasource %q missing: %v", e.Datasource, e.Err)
}

func (e *DatasourceMissingError) Is(target error) bool { return target == ErrDatasourceMissing }
func (e *DatasourceMissingError) Unwrap() error        { return e.Err }

// AdapterError wraps any other backend failure.
type AdapterError struct {
	// Op is prepare, query, exec, scan, begin or commit.
	Op  string
	SQL string
	Err error
}

func (e *AdapterError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("relmap: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("relmap: %s %q: %v", e.Op, e.SQL, e.Err)
}

func (e *AdapterError) Is(target error) bool { return target == ErrAdapter }
func (e *AdapterError) Unwrap() error        { return e.Err }

// ConfigurationError reports an option or setting that cannot be used.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("relmap: configuration %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
func (e *ConfigurationError) Unwrap() error        { return e.Err }
