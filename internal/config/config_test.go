package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvault/internal/config"
	dserrors "github.com/systmms/kvault/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
version: 1
vault:
  name: prod-kv
auth:
  method: client_secret
  tenant_id: 00000000-0000-0000-0000-000000000001
  client_id: 00000000-0000-0000-0000-000000000002
delete:
  poll_interval: 500ms
  timeout: 2m
`)

	cfg := &config.Config{Path: path}
	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, 1, def.Version)
	assert.Equal(t, "prod-kv", def.Vault.Name)
	assert.Equal(t, config.AuthClientSecret, def.Auth.Method)
	assert.Equal(t, 500*time.Millisecond, def.Delete.PollInterval)
	assert.Equal(t, 2*time.Minute, def.Delete.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Path: filepath.Join(t.TempDir(), "missing.yaml")}
	err := cfg.Load()
	require.Error(t, err)
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "path", cfgErr.Field)

	require.NoError(t, cfg.LoadIfExists())
	assert.Equal(t, 1, cfg.Definition.Version)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		inMsg   string
	}{
		{name: "empty", content: "", inMsg: "version"},
		{name: "wrong_version", content: "version: 2\n", inMsg: "version"},
		{name: "bad_yaml", content: "version: [1\n", inMsg: "YAML"},
		{name: "unknown_key", content: "version: 1\nproviders: {}\n", inMsg: "providers"},
		{name: "both_name_and_url", content: "version: 1\nvault:\n  name: kv1\n  url: https://kv1.vault.azure.net/\n", inMsg: "vault"},
		{name: "bad_vault_name", content: "version: 1\nvault:\n  name: my.vault\n", inMsg: "vault.name"},
		{name: "unknown_auth_method", content: "version: 1\nauth:\n  method: password\n", inMsg: "auth.method"},
		{name: "numeric_duration", content: "version: 1\ndelete:\n  timeout: 30\n", inMsg: "delete.timeout"},
		{name: "client_secret_without_ids", content: "version: 1\nauth:\n  method: client_secret\n", inMsg: "tenant_id"},
		{name: "certificate_without_path", content: "version: 1\nauth:\n  method: certificate\n  tenant_id: t\n  client_id: c\n", inMsg: "certificate_path"},
		{name: "poll_longer_than_timeout", content: "version: 1\ndelete:\n  poll_interval: 10m\n  timeout: 1m\n", inMsg: "poll interval"},
		{name: "too_many_retries", content: "version: 1\nretry:\n  max_retries: 50\n", inMsg: "retry.max_retries"},
		{name: "retry_delay_above_max", content: "version: 1\nretry:\n  retry_delay: 1m\n  max_retry_delay: 5s\n", inMsg: "retry delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.inMsg)

			var cfgErr dserrors.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestKeyvaultConfigPrecedence(t *testing.T) {
	def := &config.Definition{
		Version: 1,
		Vault:   config.VaultConfig{Name: "file-kv"},
		Delete:  config.DeleteConfig{PollInterval: time.Second, Timeout: time.Minute},
	}
	cfg := &config.Config{Definition: def}

	t.Setenv("KEYVAULT_ENDPOINT", "env-kv")

	t.Run("flag_wins", func(t *testing.T) {
		kv, err := cfg.KeyvaultConfig("https://flag-kv.vault.azure.net/", nil)
		require.NoError(t, err)
		assert.Equal(t, "https://flag-kv.vault.azure.net/", kv.VaultURL)
		assert.Empty(t, kv.VaultName)
		assert.Equal(t, time.Second, kv.DeletePollInterval)
		assert.Equal(t, time.Minute, kv.DeleteTimeout)
	})

	t.Run("flag_short_name", func(t *testing.T) {
		kv, err := cfg.KeyvaultConfig("flag-kv", nil)
		require.NoError(t, err)
		assert.Equal(t, "flag-kv", kv.VaultName)
	})

	t.Run("file_before_environment", func(t *testing.T) {
		kv, err := cfg.KeyvaultConfig("", nil)
		require.NoError(t, err)
		assert.Equal(t, "file-kv", kv.VaultName)
	})

	t.Run("environment_last", func(t *testing.T) {
		kv, err := (&config.Config{}).KeyvaultConfig("", nil)
		require.NoError(t, err)
		assert.Equal(t, "env-kv", kv.VaultName)
	})

	t.Run("invalid_flag", func(t *testing.T) {
		_, err := cfg.KeyvaultConfig("bad.name", nil)
		var cfgErr dserrors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "vault", cfgErr.Field)
	})
}

func TestKeyvaultConfigRetryPolicy(t *testing.T) {
	t.Parallel()

	t.Run("sdk_defaults", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Definition: &config.Definition{Version: 1}}
		kv, err := cfg.KeyvaultConfig("kv1", nil)
		require.NoError(t, err)
		assert.Nil(t, kv.ClientOptions)
	})

	t.Run("from_file", func(t *testing.T) {
		t.Parallel()
		def, err := config.Parse([]byte("version: 1\nretry:\n  max_retries: 5\n  try_timeout: 20s\n  retry_delay: 2s\n  max_retry_delay: 30s\n"))
		require.NoError(t, err)

		kv, err := (&config.Config{Definition: def}).KeyvaultConfig("kv1", nil)
		require.NoError(t, err)
		require.NotNil(t, kv.ClientOptions)
		assert.Equal(t, int32(5), kv.ClientOptions.Retry.MaxRetries)
		assert.Equal(t, 20*time.Second, kv.ClientOptions.Retry.TryTimeout)
		assert.Equal(t, 2*time.Second, kv.ClientOptions.Retry.RetryDelay)
		assert.Equal(t, 30*time.Second, kv.ClientOptions.Retry.MaxRetryDelay)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		def, err := config.Parse([]byte("version: 1\nretry:\n  max_retries: -1\n"))
		require.NoError(t, err)
		opts := def.Retry.ClientOptions()
		require.NotNil(t, opts)
		assert.Equal(t, int32(-1), opts.Retry.MaxRetries)
	})
}

func TestKeyvaultConfigWithoutVault(t *testing.T) {
	t.Setenv("KEYVAULT_ENDPOINT", "")

	_, err := (&config.Config{}).KeyvaultConfig("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vault configured")
}
