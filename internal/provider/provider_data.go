package provider

import "github.com/blueprintio/terraform-provider-blueprint/internal/providerdata"

// ProviderData is an alias for the shared ProviderData type. The canonical
// definition lives in the providerdata package so resource packages can use
// it without importing provider.
type ProviderData = providerdata.ProviderData

// StagingConfigModel is an alias for the shared StagingConfigModel type.
type StagingConfigModel = providerdata.StagingConfigModel
