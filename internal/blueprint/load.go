package blueprint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// namePattern limits entity and namespace names to characters that are
// safe in resource ids and cache file names.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Options tunes validation.
type Options struct {
	// RequirePartitionKeyField rejects schemas whose primary key names a
	// partition field that is not declared in fields.
	RequirePartitionKeyField bool
}

// Load reads the schema file at path and validates it. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON. Validation
// stops at the first violation.
func Load(path string, opts Options) (*Schema, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &NotFoundError{}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &NotFoundError{Path: path, Err: fs.ErrInvalid}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}

	doc, err := decode(path, data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return Validate(doc, opts)
}

// Parse decodes JSON schema bytes and validates them.
func Parse(data []byte, opts Options) (*Schema, error) {
	doc, err := decodeJSON(data)
	if err != nil {
		return nil, &ParseError{Path: "<inline>", Err: err}
	}
	return Validate(doc, opts)
}

func decode(path string, data []byte) (map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, errors.New("document is empty")
		}
		return doc, nil
	default:
		return decodeJSON(data)
	}
}

func decodeJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level value")
	}

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value must be an object, got %s", kindOf(v))
	}
	return doc, nil
}

// checkName rejects a non-empty name that is not a single safe path
// segment.
func checkName(field, name string) error {
	if name == "" {
		return nil
	}
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return &SchemaShapeError{Field: field, Reason: fmt.Sprintf("%q must match %s and must not be \".\" or \"..\"", name, namePattern)}
	}
	return nil
}

// Validate checks a decoded schema document and returns the typed Schema.
func Validate(doc map[string]any, opts Options) (*Schema, error) {
	s := &Schema{}

	// Required top-level keys.
	rawVersion, ok := doc["schemaVersion"]
	if !ok {
		return nil, &SchemaShapeError{Field: "schemaVersion", Reason: "is required"}
	}
	version, err := versionString(rawVersion)
	if err != nil {
		return nil, &SchemaShapeError{Field: "schemaVersion", Reason: err.Error()}
	}
	s.SchemaVersion = version

	entity, hasEntity, err := optionalString(doc, "entity")
	if err != nil {
		return nil, &SchemaShapeError{Field: "entity", Reason: err.Error()}
	}
	namespace, hasNamespace, err := optionalString(doc, "namespace")
	if err != nil {
		return nil, &SchemaShapeError{Field: "namespace", Reason: err.Error()}
	}
	if (!hasEntity || entity == "") && (!hasNamespace || namespace == "") {
		return nil, &SchemaShapeError{Field: "entity", Reason: "one of entity or namespace is required"}
	}
	if err := checkName("entity", entity); err != nil {
		return nil, err
	}
	if err := checkName("namespace", namespace); err != nil {
		return nil, err
	}
	s.Entity = entity
	s.Namespace = namespace

	description, _, err := optionalString(doc, "description")
	if err != nil {
		return nil, &SchemaShapeError{Field: "description", Reason: err.Error()}
	}
	s.Description = description

	rawPK, ok := doc["primaryKey"]
	if !ok {
		return nil, &SchemaShapeError{Field: "primaryKey", Reason: "is required"}
	}
	rawFields, ok := doc["fields"]
	if !ok {
		return nil, &SchemaShapeError{Field: "fields", Reason: "is required"}
	}

	// Primary key.
	pk, ok := rawPK.(map[string]any)
	if !ok {
		return nil, &SchemaShapeError{Field: "primaryKey", Reason: "must be an object, got " + kindOf(rawPK)}
	}
	partition, hasPartition, err := optionalString(pk, "partitionKey")
	if err != nil {
		return nil, &SchemaShapeError{Field: "primaryKey.partitionKey", Reason: err.Error()}
	}
	if !hasPartition || strings.TrimSpace(partition) == "" {
		return nil, &SchemaShapeError{Field: "primaryKey.partitionKey", Reason: "must be a non-empty string"}
	}
	sortKey, _, err := optionalString(pk, "sortKey")
	if err != nil {
		return nil, &SchemaShapeError{Field: "primaryKey.sortKey", Reason: err.Error()}
	}
	s.PrimaryKey = PrimaryKey{PartitionKey: partition, SortKey: sortKey}

	// Field shape.
	list, ok := rawFields.([]any)
	if !ok {
		return nil, &FieldShapeError{Index: -1, Field: "fields", Reason: "must be an array, got " + kindOf(rawFields)}
	}
	if len(list) == 0 {
		return nil, &FieldShapeError{Index: -1, Field: "fields", Reason: "must contain at least one field"}
	}

	raws := make([]map[string]any, len(list))
	s.Fields = make([]Field, len(list))
	for i, item := range list {
		label := fmt.Sprintf("fields[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &FieldShapeError{Index: i, Field: label, Reason: "must be an object, got " + kindOf(item)}
		}
		name, hasName, err := optionalString(m, "name")
		if err != nil || !hasName || name == "" {
			return nil, &FieldShapeError{Index: i, Field: label, Reason: "name must be a non-empty string"}
		}
		typ, hasType, err := optionalString(m, "type")
		if err != nil || !hasType {
			return nil, &FieldShapeError{Index: i, Field: quoted(name), Reason: "type must be a string"}
		}
		if !FieldType(typ).Valid() {
			return nil, &FieldShapeError{Index: i, Field: quoted(name), Reason: fmt.Sprintf("type %q is not one of string, number, boolean, timestamp", typ)}
		}
		required := false
		if rv, ok := m["required"]; ok {
			b, ok := rv.(bool)
			if !ok {
				return nil, &FieldShapeError{Index: i, Field: quoted(name), Reason: "required must be a boolean"}
			}
			required = b
		}
		var annotations map[string]any
		if av, ok := m["annotations"]; ok && av != nil {
			am, ok := av.(map[string]any)
			if !ok {
				return nil, &FieldShapeError{Index: i, Field: quoted(name), Reason: "annotations must be an object"}
			}
			annotations = am
		}

		raws[i] = m
		s.Fields[i] = Field{
			Name:        name,
			Type:        FieldType(typ),
			Required:    required,
			Annotations: annotations,
		}
	}

	// Uniqueness.
	seen := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if first, dup := seen[f.Name]; dup {
			return nil, &DuplicateFieldError{Name: f.Name, First: first, Second: i}
		}
		seen[f.Name] = i
	}

	// Enum shape.
	for i, m := range raws {
		ev, ok := m["enum"]
		if !ok {
			continue
		}
		values, ok := ev.([]any)
		if !ok || len(values) == 0 {
			return nil, &FieldShapeError{Index: i, Field: quoted(s.Fields[i].Name), Reason: "enum must be a non-empty array"}
		}
		s.Fields[i].Enum = values
	}

	// Default type agreement.
	for i, m := range raws {
		dv, ok := m["default"]
		if !ok {
			continue
		}
		f := s.Fields[i]
		if !defaultMatches(f.Type, dv) {
			return nil, &DefaultTypeMismatchError{Field: f.Name, Want: f.Type, Got: kindOf(dv)}
		}
		s.Fields[i].Default = dv
	}

	if opts.RequirePartitionKeyField {
		if _, ok := s.Field(s.PrimaryKey.PartitionKey); !ok {
			return nil, &SchemaShapeError{
				Field:  "primaryKey.partitionKey",
				Reason: fmt.Sprintf("%q is not declared in fields", s.PrimaryKey.PartitionKey),
			}
		}
	}

	return s, nil
}

func optionalString(m map[string]any, key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("must be a string, got %s", kindOf(v))
	}
	return s, true, nil
}

func versionString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", errors.New("must not be empty")
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	case int, int64, uint64, float64:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("must be a string or number, got %s", kindOf(v))
	}
}

func defaultMatches(t FieldType, v any) bool {
	switch t {
	case FieldTypeString:
		_, ok := v.(string)
		return ok
	case FieldTypeTimestamp:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case FieldTypeNumber:
		return kindOf(v) == "number"
	case FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// kindOf names the JSON kind of a decoded value.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func quoted(name string) string {
	return fmt.Sprintf("%q", name)
}
