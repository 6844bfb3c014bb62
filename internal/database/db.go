package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Queryable is the union of the sqlx methods the stores require. Both
// *sqlx.DB and *sqlx.Tx satisfy this interface, allowing store methods
// to be composed inside transactions via WrapTx.
type Queryable interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// JsonColumn wraps any JSON-serialisable type so that it can be scanned
// from (and valued in to) a JSONB database column.
type JsonColumn[T any] struct {
	val *T
}

func NewJsonColumn[T any](val *T) JsonColumn[T] { return JsonColumn[T]{val: val} }

func (j *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		j.val = nil
		return nil
	}

	srcBytes, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan JsonColumn: source %T is not []byte", src)
	}

	var out T
	if err := json.Unmarshal(srcBytes, &out); err != nil {
		return fmt.Errorf("cannot scan JsonColumn: %w", err)
	}

	j.val = &out
	return nil
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	if j.val == nil {
		return nil, nil
	}

	return json.Marshal(j.val)
}

// Get returns the wrapped value, which may be nil if the underlying
// column was NULL.
func (j *JsonColumn[T]) Get() *T { return j.val }
