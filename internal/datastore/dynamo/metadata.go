// Package dynamo extracts binding metadata from DynamoDB table descriptors.
package dynamo

import (
	"encoding/json"
	"fmt"

	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore"
	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

// Type is the data store discriminator for DynamoDB.
const Type = "dynamodb"

// Metadata is the DynamoDB variant of datastore.Metadata.
type Metadata struct {
	Type                   string                 `json:"type"`
	TableName              identity.Value         `json:"tableName"`
	TableArn               identity.Value         `json:"tableArn"`
	Region                 identity.Value         `json:"region"`
	PartitionKey           string                 `json:"partitionKey"`
	SortKey                string                 `json:"sortKey,omitempty"`
	GlobalSecondaryIndexes []GlobalSecondaryIndex `json:"globalSecondaryIndexes,omitempty"`
	LocalSecondaryIndexes  []LocalSecondaryIndex  `json:"localSecondaryIndexes,omitempty"`
	TTLAttribute           string                 `json:"ttlAttribute,omitempty"`
	StreamEnabled          bool                   `json:"streamEnabled"`
	StreamViewType         string                 `json:"streamViewType,omitempty"`
	BillingMode            string                 `json:"billingMode,omitempty"`
	EncryptionKeyArn       string                 `json:"encryptionKeyArn,omitempty"`
}

// GlobalSecondaryIndex describes one GSI.
type GlobalSecondaryIndex struct {
	IndexName        string   `json:"indexName"`
	PartitionKey     string   `json:"partitionKey"`
	SortKey          string   `json:"sortKey,omitempty"`
	ProjectionType   string   `json:"projectionType"`
	NonKeyAttributes []string `json:"nonKeyAttributes,omitempty"`
}

// LocalSecondaryIndex describes one LSI.
type LocalSecondaryIndex struct {
	IndexName        string   `json:"indexName"`
	SortKey          string   `json:"sortKey"`
	ProjectionType   string   `json:"projectionType"`
	NonKeyAttributes []string `json:"nonKeyAttributes,omitempty"`
}

var _ datastore.Metadata = (*Metadata)(nil)

func (m *Metadata) DataStoreType() string { return Type }

func (m *Metadata) ResourceARN() identity.Value { return m.TableArn }

func init() {
	datastore.Register(Type, func(data json.RawMessage) (datastore.Metadata, error) {
		var m Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding dynamodb metadata: %w", err)
		}
		return &m, nil
	})
}
