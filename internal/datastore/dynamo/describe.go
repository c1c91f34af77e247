package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

// DescribeAPI is the subset of the DynamoDB client used by Describe.
type DescribeAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DescribeTimeToLive(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
}

// Describe builds a Table descriptor from a live table.
func Describe(ctx context.Context, api DescribeAPI, tableName string) (Table, error) {
	out, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return Table{}, fmt.Errorf("describing table %q: %w", tableName, err)
	}
	if out.Table == nil {
		return Table{}, fmt.Errorf("describing table %q: empty response", tableName)
	}
	desc := out.Table

	t := Table{
		Name:      identity.Resolved(aws.ToString(desc.TableName)),
		ARN:       identity.Resolved(aws.ToString(desc.TableArn)),
		KeySchema: desc.KeySchema,
		Stream:    desc.StreamSpecification,
	}
	if parsed, err := arn.Parse(aws.ToString(desc.TableArn)); err == nil {
		t.Region = identity.Resolved(parsed.Region)
	}

	for _, g := range desc.GlobalSecondaryIndexes {
		t.GlobalSecondaryIndexes = append(t.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  g.IndexName,
			KeySchema:  g.KeySchema,
			Projection: g.Projection,
		})
	}
	for _, l := range desc.LocalSecondaryIndexes {
		t.LocalSecondaryIndexes = append(t.LocalSecondaryIndexes, types.LocalSecondaryIndex{
			IndexName:  l.IndexName,
			KeySchema:  l.KeySchema,
			Projection: l.Projection,
		})
	}

	if desc.BillingModeSummary != nil {
		t.BillingMode = desc.BillingModeSummary.BillingMode
	} else if pt := desc.ProvisionedThroughput; pt != nil && aws.ToInt64(pt.ReadCapacityUnits) > 0 {
		t.BillingMode = types.BillingModeProvisioned
	}

	if sse := desc.SSEDescription; sse != nil && sse.KMSMasterKeyArn != nil {
		t.SSE = &types.SSESpecification{
			Enabled:        aws.Bool(true),
			KMSMasterKeyId: sse.KMSMasterKeyArn,
			SSEType:        sse.SSEType,
		}
	}

	ttl, err := api.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return Table{}, fmt.Errorf("describing time to live for %q: %w", tableName, err)
	}
	if d := ttl.TimeToLiveDescription; d != nil && d.AttributeName != nil {
		enabled := d.TimeToLiveStatus == types.TimeToLiveStatusEnabled ||
			d.TimeToLiveStatus == types.TimeToLiveStatusEnabling
		t.TimeToLive = &types.TimeToLiveSpecification{
			AttributeName: d.AttributeName,
			Enabled:       aws.Bool(enabled),
		}
	}

	return t, nil
}
