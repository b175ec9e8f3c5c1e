package config

import (
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/internal/logging"
	"github.com/systmms/kvault/pkg/keyvault"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when --config is not given.
const DefaultPath = "kvault.yaml"

// Auth methods accepted in auth.method.
const (
	AuthDefault         = "default"
	AuthManagedIdentity = "managed_identity"
	AuthClientSecret    = "client_secret"
	AuthCertificate     = "certificate"
	AuthCLI             = "cli"
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the kvault.yaml structure
type Definition struct {
	Version int          `yaml:"version"`
	Vault   VaultConfig  `yaml:"vault"`
	Auth    AuthConfig   `yaml:"auth"`
	Delete  DeleteConfig `yaml:"delete"`
	Retry   RetryConfig  `yaml:"retry"`
}

// VaultConfig selects the vault; name and url are mutually exclusive.
type VaultConfig struct {
	Name string `yaml:"name,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

// AuthConfig selects and parameterizes the Azure credential.
type AuthConfig struct {
	Method              string `yaml:"method,omitempty"`
	TenantID            string `yaml:"tenant_id,omitempty"`
	ClientID            string `yaml:"client_id,omitempty"`
	ClientSecret        string `yaml:"client_secret,omitempty"`
	CertificatePath     string `yaml:"certificate_path,omitempty"`
	CertificatePassword string `yaml:"certificate_password,omitempty"`
	UserAssignedID      string `yaml:"user_assigned_id,omitempty"`
}

// DeleteConfig tunes waiting for soft-deletes to complete.
type DeleteConfig struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// RetryConfig tunes the Azure SDK retry policy. Zero values keep the SDK
// defaults; max_retries -1 disables retries.
type RetryConfig struct {
	MaxRetries    int32         `yaml:"max_retries,omitempty"`
	TryTimeout    time.Duration `yaml:"try_timeout,omitempty"`
	RetryDelay    time.Duration `yaml:"retry_delay,omitempty"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay,omitempty"`
}

// ClientOptions returns SDK client options carrying the retry policy, or nil
// when nothing is configured.
func (r RetryConfig) ClientOptions() *azcore.ClientOptions {
	if r == (RetryConfig{}) {
		return nil
	}
	return &azcore.ClientOptions{
		Retry: policy.RetryOptions{
			MaxRetries:    r.MaxRetries,
			TryTimeout:    r.TryTimeout,
			RetryDelay:    r.RetryDelay,
			MaxRetryDelay: r.MaxRetryDelay,
		},
	}
}

// Load reads, validates and parses the kvault.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a kvault.yaml or pass --vault instead",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	return nil
}

// LoadIfExists is Load that leaves an empty Definition when the file is missing.
func (c *Config) LoadIfExists() error {
	if _, err := os.Stat(c.Path); os.IsNotExist(err) {
		if c.Logger != nil {
			c.Logger.Debug("No configuration file at %s", c.Path)
		}
		c.Definition = &Definition{Version: 1}
		return nil
	}
	return c.Load()
}

// Parse validates and decodes kvault.yaml content.
func Parse(data []byte) (*Definition, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid value in configuration file: " + err.Error(),
			Suggestion: "Durations use Go syntax, e.g. 2s or 5m",
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the cross-field rules the schema does not express.
func (d *Definition) Validate() error {
	switch d.Auth.Method {
	case AuthClientSecret:
		if d.Auth.TenantID == "" || d.Auth.ClientID == "" {
			return dserrors.ConfigError{
				Field:      "auth",
				Message:    "client_secret authentication requires tenant_id and client_id",
				Suggestion: "Set auth.tenant_id and auth.client_id; store the secret with 'kvault login'",
			}
		}
	case AuthCertificate:
		if d.Auth.TenantID == "" || d.Auth.ClientID == "" || d.Auth.CertificatePath == "" {
			return dserrors.ConfigError{
				Field:      "auth",
				Message:    "certificate authentication requires tenant_id, client_id and certificate_path",
				Suggestion: "Point auth.certificate_path at a PEM or PKCS#12 file",
			}
		}
	}
	if d.Delete.PollInterval > 0 && d.Delete.Timeout > 0 && d.Delete.PollInterval > d.Delete.Timeout {
		return dserrors.ConfigError{
			Field:      "delete.poll_interval",
			Value:      d.Delete.PollInterval,
			Message:    "poll interval is longer than the timeout",
			Suggestion: "Use a poll interval shorter than delete.timeout",
		}
	}
	if d.Retry.RetryDelay > 0 && d.Retry.MaxRetryDelay > 0 && d.Retry.RetryDelay > d.Retry.MaxRetryDelay {
		return dserrors.ConfigError{
			Field:      "retry.retry_delay",
			Value:      d.Retry.RetryDelay,
			Message:    "retry delay is longer than the maximum retry delay",
			Suggestion: "Use a retry_delay shorter than retry.max_retry_delay",
		}
	}
	return nil
}

// KeyvaultConfig builds the library configuration. The vault is taken from
// flagVault, then the file, then KEYVAULT_ENDPOINT.
func (c *Config) KeyvaultConfig(flagVault string, cred azcore.TokenCredential) (keyvault.Config, error) {
	def := c.Definition
	if def == nil {
		def = &Definition{}
	}

	var kv keyvault.Config
	switch {
	case strings.TrimSpace(flagVault) != "":
		setVault(&kv, strings.TrimSpace(flagVault))
	case def.Vault.URL != "":
		kv.VaultURL = def.Vault.URL
	case def.Vault.Name != "":
		kv.VaultName = def.Vault.Name
	default:
		env, err := keyvault.FromEnvironment()
		if err != nil {
			return keyvault.Config{}, dserrors.ConfigError{
				Field:      "vault",
				Message:    "no vault configured",
				Suggestion: "Pass --vault, set vault.name in kvault.yaml, or export " + keyvault.EnvEndpoint,
			}
		}
		kv = env
	}

	if _, err := kv.Endpoint(); err != nil {
		return keyvault.Config{}, dserrors.ConfigError{
			Field:   "vault",
			Message: err.Error(),
		}
	}

	kv.Credential = cred
	kv.DeletePollInterval = def.Delete.PollInterval
	kv.DeleteTimeout = def.Delete.Timeout
	kv.ClientOptions = def.Retry.ClientOptions()
	if c.Logger != nil {
		kv.Logger = c.Logger.Zap()
	}
	return kv, nil
}

func setVault(kv *keyvault.Config, value string) {
	if strings.Contains(value, "://") {
		kv.VaultURL = value
		return
	}
	kv.VaultName = value
}
