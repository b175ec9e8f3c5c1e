package keyvault

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of the environment variables read by FromEnvironment.
const EnvPrefix = "KEYVAULT_"

// EnvEndpoint holds the vault endpoint for FromEnvironment.
const EnvEndpoint = EnvPrefix + "ENDPOINT"

// FromEnvironment builds a Config from KEYVAULT_ENDPOINT. The value may be a
// full URL or a vault short name. Nothing else in this package reads the
// environment; callers opt in by using this function.
func FromEnvironment() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	endpoint := strings.TrimSpace(k.String("endpoint"))
	if endpoint == "" {
		return Config{}, &ArgumentError{
			Param:   EnvEndpoint,
			Message: "environment variable is not set",
		}
	}

	var cfg Config
	if strings.Contains(endpoint, "://") {
		cfg.VaultURL = endpoint
	} else {
		cfg.VaultName = endpoint
	}
	if _, err := cfg.Endpoint(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
