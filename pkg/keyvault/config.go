package keyvault

import (
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"
)

// Default delete-wait settings.
const (
	DefaultDeletePollInterval = 2 * time.Second
	DefaultDeleteTimeout      = 5 * time.Minute
)

// Config holds everything needed to construct a SecretClient or KeyClient.
// Exactly one of VaultURL or VaultName must be set.
type Config struct {
	// VaultURL is the full vault endpoint, e.g. https://my-vault.vault.azure.net/.
	VaultURL string

	// VaultName is the short vault name; the endpoint is built with VaultURI.
	VaultName string

	// Credential authenticates requests. When nil, azidentity's
	// DefaultAzureCredential chain is used.
	Credential azcore.TokenCredential

	// ClientOptions is passed to the SDK clients (retry, transport, cloud).
	ClientOptions *azcore.ClientOptions

	// Logger receives debug entries for remote operations. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics, when set, records per-operation counters and latencies.
	Metrics *Metrics

	// DeletePollInterval is the delay between checks while waiting for a
	// delete to complete. Default: 2s.
	DeletePollInterval time.Duration

	// DeleteTimeout bounds how long a waiting delete polls. Default: 5m.
	DeleteTimeout time.Duration
}

// Endpoint resolves the vault endpoint from VaultURL or VaultName.
func (c Config) Endpoint() (string, error) {
	switch {
	case c.VaultURL != "" && c.VaultName != "":
		return "", &ArgumentError{Param: "Config", Message: "set either VaultURL or VaultName, not both"}
	case c.VaultURL != "":
		return validateVaultURL(c.VaultURL)
	case c.VaultName != "":
		return VaultURI(c.VaultName)
	default:
		return "", &ArgumentError{Param: "Config", Message: "a vault URL or vault name is required"}
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.DeletePollInterval <= 0 {
		c.DeletePollInterval = DefaultDeletePollInterval
	}
	if c.DeleteTimeout <= 0 {
		c.DeleteTimeout = DefaultDeleteTimeout
	}
	return c
}

func (c Config) credential() (azcore.TokenCredential, error) {
	if c.Credential != nil {
		return c.Credential, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default Azure credential: %w", err)
	}
	return cred, nil
}
