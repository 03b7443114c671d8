package protocol

import (
	"bytes"
	"encoding/json"
)

// Opt is a patch field that distinguishes "absent" from "present but null".
//
//   - Set == false: the field was not part of the patch, leave it alone
//   - Set && !Valid: the field was explicitly cleared (JSON null)
//   - Set && Valid: the field is replaced with Value
//
// Struct fields of type Opt should be tagged `json:",omitzero"` so that an
// unset Opt is omitted on the wire.
type Opt[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Some returns an Opt that replaces the field with v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Valid: true, Value: v}
}

// Clear returns an Opt that clears the field.
func Clear[T any]() Opt[T] {
	return Opt[T]{Set: true}
}

// IsZero reports whether the Opt is absent. Used by encoding/json omitzero.
func (o Opt[T]) IsZero() bool {
	return !o.Set
}

// Ptr returns a pointer to the value, or nil when the Opt clears the field.
func (o Opt[T]) Ptr() *T {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// MarshalJSON encodes a cleared Opt as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON marks the Opt as set; null clears it.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Valid = false
		o.Value = zero
		return nil
	}
	o.Valid = true
	return json.Unmarshal(data, &o.Value)
}
