package commands

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/systmms/kvault/internal/config"
	"github.com/systmms/kvault/internal/credential"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/pkg/keyvault"
)

// App is the state shared by every command: parsed global flags, the
// loaded configuration, and the clients built from it.
type App struct {
	Config   *config.Config
	Vault    string
	Keyring  credential.Keyring
	Registry *prometheus.Registry

	secretsAPI keyvault.SecretsAPI
	keysAPI    keyvault.KeysAPI
	metrics    *keyvault.Metrics
}

// NewApp creates an App backed by the OS keyring.
func NewApp(cfg *config.Config) *App {
	return &App{
		Config:   cfg,
		Keyring:  credential.SystemKeyring(),
		Registry: prometheus.NewRegistry(),
	}
}

func (a *App) keyvaultConfig() (keyvault.Config, error) {
	if a.Config.Definition == nil {
		if err := a.Config.LoadIfExists(); err != nil {
			return keyvault.Config{}, err
		}
	}

	var cred azcore.TokenCredential
	if a.secretsAPI == nil || a.keysAPI == nil {
		c, err := credential.New(a.Config.Definition.Auth, a.Keyring)
		if err != nil {
			return keyvault.Config{}, err
		}
		cred = c
	}

	kv, err := a.Config.KeyvaultConfig(a.Vault, cred)
	if err != nil {
		return keyvault.Config{}, err
	}

	if a.metrics == nil && a.Registry != nil {
		m, err := keyvault.NewMetrics(a.Registry)
		if err != nil {
			return keyvault.Config{}, err
		}
		a.metrics = m
	}
	kv.Metrics = a.metrics
	return kv, nil
}

// SecretClient builds a SecretClient for the selected vault.
func (a *App) SecretClient() (*keyvault.SecretClient, error) {
	kv, err := a.keyvaultConfig()
	if err != nil {
		return nil, err
	}
	var opts []keyvault.SecretClientOption
	if a.secretsAPI != nil {
		opts = append(opts, keyvault.WithSecretsAPI(a.secretsAPI))
	}
	client, err := keyvault.NewSecretClient(kv, opts...)
	if err != nil {
		return nil, dserrors.VaultError("connect", err)
	}
	return client, nil
}

// KeyClient builds a KeyClient for the selected vault.
func (a *App) KeyClient() (*keyvault.KeyClient, error) {
	kv, err := a.keyvaultConfig()
	if err != nil {
		return nil, err
	}
	var opts []keyvault.KeyClientOption
	if a.keysAPI != nil {
		opts = append(opts, keyvault.WithKeysAPI(a.keysAPI))
	}
	client, err := keyvault.NewKeyClient(kv, opts...)
	if err != nil {
		return nil, dserrors.VaultError("connect", err)
	}
	return client, nil
}
