package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

func TestStagingConfig_Defaults(t *testing.T) {
	cfg := stagingConfig(StagingConfigModel{
		Name:         types.StringNull(),
		Type:         types.StringValue("s3"),
		Bucket:       types.StringValue("bundles"),
		Region:       types.StringValue("eu-west-1"),
		MaxRetries:   types.Int64Null(),
		RetryBackoff: types.StringNull(),
	})

	if cfg.Name != "staging" {
		t.Errorf("Name = %q, want staging", cfg.Name)
	}
	if cfg.Type != "s3" || cfg.Bucket != "bundles" || cfg.Region != "eu-west-1" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBackoff != "exponential" {
		t.Errorf("RetryBackoff = %q, want exponential", cfg.RetryBackoff)
	}
}

func TestStagingConfig_Overrides(t *testing.T) {
	cfg := stagingConfig(StagingConfigModel{
		Name:         types.StringValue("bundles"),
		Type:         types.StringValue("local"),
		Directory:    types.StringValue("/var/blueprint"),
		MaxRetries:   types.Int64Value(0),
		RetryBackoff: types.StringValue("linear"),
	})

	if cfg.Name != "bundles" || cfg.Directory != "/var/blueprint" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MaxRetries != 0 || cfg.RetryBackoff != "linear" {
		t.Errorf("retry settings not applied: %+v", cfg)
	}
}

type fakeSTS struct {
	account *string
	err     error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: f.account}, nil
}

func TestLookupAccountID(t *testing.T) {
	got, err := lookupAccountID(context.Background(), fakeSTS{account: aws.String("123456789012")})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != "123456789012" {
		t.Errorf("account = %q", got)
	}

	if _, err := lookupAccountID(context.Background(), fakeSTS{}); err == nil {
		t.Error("expected error for missing account")
	}
	if _, err := lookupAccountID(context.Background(), fakeSTS{err: errors.New("denied")}); err == nil {
		t.Error("expected error from STS")
	}
}
