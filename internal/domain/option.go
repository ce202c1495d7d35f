package domain

import (
	"bytes"
	"encoding/json"
)

// Option models three-valued PATCH semantics: the field may be absent
// from the request body (leave unchanged), present and JSON null (clear),
// or present with a value (set). encoding/json alone collapses "absent"
// and "null" into the same zero value, losing information PATCH handlers
// need, so Option tracks presence explicitly.
type Option[T any] struct {
	present bool
	null    bool
	value   T
}

// Absent reports the field was not present in the request body at all.
func (o Option[T]) Absent() bool { return !o.present }

// Null reports the field was present and explicitly set to JSON null.
func (o Option[T]) Null() bool { return o.present && o.null }

// Set reports the field was present with a concrete value.
func (o Option[T]) Set() bool { return o.present && !o.null }

// Value returns the decoded value; only meaningful when Set() is true.
func (o Option[T]) Value() T { return o.value }

func (o *Option[T]) UnmarshalJSON(b []byte) error {
	o.present = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.null = true
		var zero T
		o.value = zero
		return nil
	}
	return json.Unmarshal(b, &o.value)
}

func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.present || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// OptionOf builds a "set" Option, used by tests and internal callers.
func OptionOf[T any](v T) Option[T] {
	return Option[T]{present: true, value: v}
}
