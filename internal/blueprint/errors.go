package blueprint

import (
	"errors"
	"fmt"
)

// ErrSchemaValidation is matched (via errors.Is) by every error returned
// from Load, Parse and Validate.
var ErrSchemaValidation = errors.New("schema validation failed")

// NotFoundError is returned when the schema path does not resolve to a file.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return "blueprint: schema path is empty"
	}
	return fmt.Sprintf("blueprint: schema file %q not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrSchemaValidation }

// ParseError is returned when the schema file is not well-formed JSON (or
// YAML, for .yaml/.yml files).
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("blueprint: parse %q: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrSchemaValidation }

// SchemaShapeError reports a missing or malformed top-level key, including
// the primary key block.
type SchemaShapeError struct {
	Field  string
	Reason string
}

func (e *SchemaShapeError) Error() string {
	return fmt.Sprintf("blueprint: %s: %s", e.Field, e.Reason)
}

func (e *SchemaShapeError) Is(target error) bool { return target == ErrSchemaValidation }

// FieldShapeError reports a malformed entry in the fields array. Field is
// the field name when known, otherwise "fields[<index>]".
type FieldShapeError struct {
	Index  int
	Field  string
	Reason string
}

func (e *FieldShapeError) Error() string {
	return fmt.Sprintf("blueprint: field %s: %s", e.Field, e.Reason)
}

func (e *FieldShapeError) Is(target error) bool { return target == ErrSchemaValidation }

// DuplicateFieldError is returned when two fields share a name.
type DuplicateFieldError struct {
	Name   string
	First  int
	Second int
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("blueprint: duplicate field %q at fields[%d] and fields[%d]", e.Name, e.First, e.Second)
}

func (e *DuplicateFieldError) Is(target error) bool { return target == ErrSchemaValidation }

// DefaultTypeMismatchError is returned when a field's default value does not
// agree with its declared type.
type DefaultTypeMismatchError struct {
	Field string
	Want  FieldType
	Got   string
}

func (e *DefaultTypeMismatchError) Error() string {
	return fmt.Sprintf("blueprint: field %q: default value of type %s does not match declared type %s", e.Field, e.Got, e.Want)
}

func (e *DefaultTypeMismatchError) Is(target error) bool { return target == ErrSchemaValidation }
