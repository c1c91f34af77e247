package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore"
	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

// Table is a read-only descriptor of a DynamoDB table, expressed in the SDK's
// own types so it can be filled from configuration or from DescribeTable.
type Table struct {
	Name   identity.Value
	ARN    identity.Value
	Region identity.Value

	KeySchema              []types.KeySchemaElement
	GlobalSecondaryIndexes []types.GlobalSecondaryIndex
	LocalSecondaryIndexes  []types.LocalSecondaryIndex
	TimeToLive             *types.TimeToLiveSpecification
	Stream                 *types.StreamSpecification
	BillingMode            types.BillingMode
	SSE                    *types.SSESpecification
}

// KeySchemaError is returned when a key schema lacks a required element.
type KeySchemaError struct {
	// Index is empty for the table's own key schema.
	Index  string
	Reason string
}

func (e *KeySchemaError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("dynamo: table key schema: %s", e.Reason)
	}
	return fmt.Sprintf("dynamo: index %q key schema: %s", e.Index, e.Reason)
}

func (e *KeySchemaError) Is(target error) bool { return target == datastore.ErrMetadataExtraction }

// Extractor implements datastore.Extractor for DynamoDB tables.
type Extractor struct{}

var _ datastore.Extractor[Table] = Extractor{}

// Extract derives Metadata from t. Either the whole record is returned or
// an error; partial metadata is never produced.
func (Extractor) Extract(t Table) (datastore.Metadata, error) {
	pk, sk := splitKeySchema(t.KeySchema)
	if pk == "" {
		return nil, &KeySchemaError{Reason: "no HASH key element"}
	}

	m := &Metadata{
		Type:         Type,
		TableName:    t.Name,
		TableArn:     t.ARN,
		Region:       t.Region,
		PartitionKey: pk,
		SortKey:      sk,
	}

	for _, gsi := range t.GlobalSecondaryIndexes {
		name := aws.ToString(gsi.IndexName)
		if name == "" {
			return nil, &KeySchemaError{Index: "<unnamed>", Reason: "global secondary index has no name"}
		}
		ipk, isk := splitKeySchema(gsi.KeySchema)
		if ipk == "" {
			return nil, &KeySchemaError{Index: name, Reason: "no HASH key element"}
		}
		projection, nonKey := projectionOf(gsi.Projection)
		m.GlobalSecondaryIndexes = append(m.GlobalSecondaryIndexes, GlobalSecondaryIndex{
			IndexName:        name,
			PartitionKey:     ipk,
			SortKey:          isk,
			ProjectionType:   projection,
			NonKeyAttributes: nonKey,
		})
	}

	for _, lsi := range t.LocalSecondaryIndexes {
		name := aws.ToString(lsi.IndexName)
		if name == "" {
			return nil, &KeySchemaError{Index: "<unnamed>", Reason: "local secondary index has no name"}
		}
		_, isk := splitKeySchema(lsi.KeySchema)
		if isk == "" {
			return nil, &KeySchemaError{Index: name, Reason: "no RANGE key element"}
		}
		projection, nonKey := projectionOf(lsi.Projection)
		m.LocalSecondaryIndexes = append(m.LocalSecondaryIndexes, LocalSecondaryIndex{
			IndexName:        name,
			SortKey:          isk,
			ProjectionType:   projection,
			NonKeyAttributes: nonKey,
		})
	}

	if ttl := t.TimeToLive; ttl != nil && aws.ToBool(ttl.Enabled) && aws.ToString(ttl.AttributeName) != "" {
		m.TTLAttribute = aws.ToString(ttl.AttributeName)
	}

	if s := t.Stream; s != nil && s.StreamViewType != "" {
		m.StreamEnabled = true
		m.StreamViewType = string(s.StreamViewType)
	}

	switch t.BillingMode {
	case types.BillingModeProvisioned, types.BillingModePayPerRequest:
		m.BillingMode = string(t.BillingMode)
	}

	if sse := t.SSE; sse != nil {
		m.EncryptionKeyArn = aws.ToString(sse.KMSMasterKeyId)
	}

	return m, nil
}

func splitKeySchema(elems []types.KeySchemaElement) (partition, sort string) {
	for _, e := range elems {
		switch e.KeyType {
		case types.KeyTypeHash:
			partition = aws.ToString(e.AttributeName)
		case types.KeyTypeRange:
			sort = aws.ToString(e.AttributeName)
		}
	}
	return partition, sort
}

// projectionOf returns the projection type, defaulting to ALL, and the
// non-key attributes when the projection is INCLUDE.
func projectionOf(p *types.Projection) (string, []string) {
	if p == nil || p.ProjectionType == "" {
		return string(types.ProjectionTypeAll), nil
	}
	if p.ProjectionType == types.ProjectionTypeInclude && len(p.NonKeyAttributes) > 0 {
		attrs := make([]string, len(p.NonKeyAttributes))
		copy(attrs, p.NonKeyAttributes)
		return string(p.ProjectionType), attrs
	}
	return string(p.ProjectionType), nil
}
