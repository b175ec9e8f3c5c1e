// Package keyvault is a convenience layer over the Azure Key Vault SDK
// (azsecrets and azkeys).
//
// The SDK exposes primitives: get, set, delete, purge, list. This package
// adds the workflows built from them that applications keep rewriting:
//   - existence checks that turn a 404 into false instead of an error
//   - "safe set", which only writes a new version when the value changed
//   - bulk reads with an explicit sequential or concurrent mode
//   - soft-delete and purge helpers, including waiting for a delete to land
//   - cryptographic operations that always use the key's current version
//
// # Construction
//
// Clients take an explicit Config. Nothing reads the environment unless the
// caller opts in with FromEnvironment:
//
//	cfg := keyvault.Config{VaultName: "my-vault"}
//	secrets, err := keyvault.NewSecretClient(cfg)
//	if err != nil {
//	    return err
//	}
//	changed, err := secrets.SafeSetValue(ctx, "Db--Password", password)
//
// When Config.Credential is nil, azidentity's DefaultAzureCredential is used.
//
// # Error Handling
//
// Operations on a missing secret or key return *NotFoundError, which matches
// ErrSecretNotFound or ErrKeyNotFound with errors.Is. Invalid arguments are
// rejected with *ArgumentError before any remote call. Every other service
// failure is returned unchanged as *azcore.ResponseError.
//
// Classify maps an error onto an ErrorKind. The "IfExists" and "IfDeleted"
// variants only absorb KindNotFound. Purging a secret that is still live
// returns the raw service error, which classifies as KindNotYetDeleted:
//
//	if err := secrets.Purge(ctx, name); keyvault.IsNotYetDeleted(err) {
//	    // delete first, or use PurgeIfDeleted
//	}
//
// # Concurrency
//
// Clients hold no mutable state and are safe for concurrent use. Fan-out
// operations (DeleteAll, PurgeAllDeleted, GetAll and concurrent
// GetValuesIfExists) start one goroutine per item, wait for all of them, and
// return the first failure.
package keyvault
