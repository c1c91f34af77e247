package acctest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"

	"github.com/blueprintio/terraform-provider-blueprint/internal/provider"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// TestProtoV6ProviderFactories is a map of provider factory functions
// suitable for use with the terraform-plugin-testing framework.
var TestProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"blueprint": providerserver.NewProtocol6WithError(provider.New("test")()),
}

// UserSchema is a minimal schema declaring the User entity.
const UserSchema = `{
  "schemaVersion": "1.0",
  "entity": "User",
  "primaryKey": {"partitionKey": "pk"},
  "fields": [
    {"name": "pk", "type": "string", "required": true},
    {"name": "email", "type": "string"}
  ]
}`

// SetupTest resets the global MemoryTarget registry so each test starts
// with a clean slate.
func SetupTest(t *testing.T) {
	t.Helper()
	target.ResetMemoryTargets()
	t.Cleanup(func() {
		target.ResetMemoryTargets()
	})
}

// WriteSchemaFile writes content to a schema file in a temporary
// directory and returns its absolute path.
func WriteSchemaFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write schema file %s: %s", name, err)
	}
	return path
}

// ProviderConfig returns an HCL snippet that configures the blueprint
// provider with a memory staging target, the given cache directory and the
// given governance base URL.
func ProviderConfig(cacheDir, baseURL string) string {
	return ProviderConfigWithMode(cacheDir, baseURL, "BEST_EFFORT")
}

// ProviderConfigWithMode is ProviderConfig with an explicit provider-level
// failure mode.
func ProviderConfigWithMode(cacheDir, baseURL, failureMode string) string {
	return fmt.Sprintf(`
provider "blueprint" {
  stack_name      = "prod"
  account_id      = "123456789012"
  region          = "us-east-1"
  cache_dir       = %q
  api_base_url    = %q
  failure_mode    = %q
  max_retries     = 0
  timeout_seconds = 5

  staging {
    name = "acc-staging"
    type = "memory"
  }
}
`, cacheDir, baseURL, failureMode)
}

// BindingConfig returns an HCL snippet for a blueprint_dynamodb_binding
// named "users" with direct credentials.
func BindingConfig(schemaPath, tableName, failureMode string) string {
	mode := ""
	if failureMode != "" {
		mode = fmt.Sprintf("  failure_mode  = %q\n", failureMode)
	}
	return fmt.Sprintf(`
resource "blueprint_dynamodb_binding" "users" {
  schema_path   = %q
  app_id        = "app-1"
  resource_name = "UsersTable"
%s
  table {
    name          = %q
    arn           = "arn:aws:dynamodb:us-east-1:123456789012:table/%s"
    region        = "us-east-1"
    partition_key = "pk"
  }

  credentials {
    credential_type = "direct"
    api_key         = "test-key"
    api_secret      = "test-secret"
  }
}
`, schemaPath, mode, tableName, tableName)
}
