package keyvault

import (
	"fmt"
	"net/url"
	"strings"
)

// vaultHostSuffix is the public-cloud DNS suffix for Key Vault instances.
const vaultHostSuffix = "vault.azure.net"

// VaultURI builds the canonical endpoint for a vault short name,
// e.g. "my-vault" becomes "https://my-vault.vault.azure.net/".
func VaultURI(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ArgumentError{Param: "name", Message: "vault name must not be empty"}
	}
	if strings.ContainsAny(name, "/:.") {
		return "", &ArgumentError{
			Param:   "name",
			Message: fmt.Sprintf("%q is not a vault short name; pass a full URL as VaultURL instead", name),
		}
	}
	return fmt.Sprintf("https://%s.%s/", name, vaultHostSuffix), nil
}

// validateVaultURL checks that raw is an absolute URL with a host and
// returns it with a trailing slash.
func validateVaultURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &ArgumentError{Param: "VaultURL", Message: fmt.Sprintf("invalid vault URL: %v", err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &ArgumentError{
			Param:   "VaultURL",
			Message: fmt.Sprintf("vault URL %q must be absolute, e.g. https://my-vault.%s/", raw, vaultHostSuffix),
		}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}
