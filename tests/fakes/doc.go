// Package fakes provides test doubles for the Azure SDK clients and the OS
// keyring used by kvault.
//
// The Azure fakes are stateful, in-memory vaults. They keep version history,
// model the soft-delete recycle bin, page list results and return
// *azcore.ResponseError values with the status codes and bodies the real
// service produces. Fakes are manually implemented (not generated) to provide
// precise control over test behavior.
//
// Usage:
//
//	fake := fakes.NewFakeAzureSecretsClient()
//	fake.AddSecretString("Db--Password", "hunter2")
//	fake.DeletePendingPolls = 2 // deleted copy appears on the third poll
//
//	client, err := keyvault.NewSecretClient(cfg, keyvault.WithSecretsAPI(fake))
//	// Test client methods...
package fakes
