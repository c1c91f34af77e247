package provider_test

import (
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/hashicorp/terraform-plugin-testing/helper/resource"

	"github.com/blueprintio/terraform-provider-blueprint/internal/acctest"
)

func TestAccProvider_InvalidFailureMode(t *testing.T) {
	acctest.SetupTest(t)

	schemaPath := acctest.WriteSchemaFile(t, "user.json", acctest.UserSchema)

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfigWithMode(t.TempDir(), "http://127.0.0.1:1", "SOMETIMES") +
					acctest.BindingConfig(schemaPath, "Users", ""),
				ExpectError: regexp.MustCompile("Invalid Attribute Value Match"),
			},
		},
	})
}

func TestAccProvider_InvalidBaseURL(t *testing.T) {
	acctest.SetupTest(t)

	schemaPath := acctest.WriteSchemaFile(t, "user.json", acctest.UserSchema)

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfig(t.TempDir(), "not a url") +
					acctest.BindingConfig(schemaPath, "Users", ""),
				ExpectError: regexp.MustCompile("Invalid Provider Configuration"),
			},
		},
	})
}

func TestAccProvider_InvalidStagingType(t *testing.T) {
	acctest.SetupTest(t)

	schemaPath := acctest.WriteSchemaFile(t, "user.json", acctest.UserSchema)

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: fmt.Sprintf(`
provider "blueprint" {
  stack_name   = "prod"
  cache_dir    = %q
  api_base_url = "http://127.0.0.1:1"

  staging {
    type = "ftp"
  }
}
`, t.TempDir()) + acctest.BindingConfig(schemaPath, "Users", ""),
				ExpectError: regexp.MustCompile("Invalid Attribute Value Match"),
			},
		},
	})
}

func TestAccLocalSnapshots_ListsBinding(t *testing.T) {
	acctest.SetupTest(t)

	mock := acctest.NewMockGovernanceServer(t)
	schemaPath := acctest.WriteSchemaFile(t, "user.json", acctest.UserSchema)
	cacheDir := filepath.Join(t.TempDir(), "cache")

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfig(cacheDir, mock.URL()) +
					acctest.BindingConfig(schemaPath, "Users", "") + `
data "blueprint_local_snapshots" "all" {
  depends_on = [blueprint_dynamodb_binding.users]
}
`,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("data.blueprint_local_snapshots.all", "snapshots.#", "1"),
					resource.TestCheckResourceAttr("data.blueprint_local_snapshots.all", "snapshots.0.resource_id", "UsersTable__User"),
					resource.TestCheckResourceAttr("data.blueprint_local_snapshots.all", "snapshots.0.action", "UPSERT"),
					resource.TestCheckResourceAttr("data.blueprint_local_snapshots.all", "snapshots.0.entity_name", "User"),
					resource.TestCheckResourceAttr("data.blueprint_local_snapshots.all", "snapshots.0.stack_name", "prod"),
					resource.TestCheckResourceAttrPair(
						"data.blueprint_local_snapshots.all", "snapshots.0.path",
						"blueprint_dynamodb_binding.users", "snapshot_path",
					),
				),
			},
		},
	})
}
