// Package blueprint loads and validates entity schema definitions
// ("blueprints") that a data store binding declares it implements.
package blueprint

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeTimestamp:
		return true
	}
	return false
}

// Schema is a validated blueprint. Values returned by Load and Validate must
// be treated as immutable.
type Schema struct {
	SchemaVersion string     `json:"schemaVersion"`
	Entity        string     `json:"entity,omitempty"`
	Namespace     string     `json:"namespace,omitempty"`
	Description   string     `json:"description,omitempty"`
	PrimaryKey    PrimaryKey `json:"primaryKey"`
	Fields        []Field    `json:"fields"`
}

// PrimaryKey names the entity's partition and optional sort fields.
type PrimaryKey struct {
	PartitionKey string `json:"partitionKey"`
	SortKey      string `json:"sortKey,omitempty"`
}

// Field is one attribute of the entity.
type Field struct {
	Name        string         `json:"name"`
	Type        FieldType      `json:"type"`
	Required    bool           `json:"required,omitempty"`
	Default     any            `json:"default,omitempty"`
	Enum        []any          `json:"enum,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty"`
}

// EntityName returns the entity name, falling back to the namespace for
// schemas that only declare one.
func (s *Schema) EntityName() string {
	if s.Entity != "" {
		return s.Entity
	}
	return s.Namespace
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
