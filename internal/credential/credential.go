// Package credential selects the Azure credential described by the auth
// section of kvault.yaml.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/systmms/kvault/internal/config"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service under which client secrets are stored.
const KeyringService = "kvault"

// Keyring stores service principal secrets.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
}

type systemKeyring struct{}

func (systemKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

func (systemKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// SystemKeyring returns the OS keyring (Keychain, Secret Service, Windows Credential Manager).
func SystemKeyring() Keyring {
	return systemKeyring{}
}

// KeyringUser is the keyring account name for a service principal.
func KeyringUser(tenantID, clientID string) string {
	return tenantID + "/" + clientID
}

// StoreClientSecret saves a service principal secret for later client_secret logins.
func StoreClientSecret(kr Keyring, tenantID, clientID, secret string) error {
	if tenantID == "" || clientID == "" {
		return dserrors.UserError{
			Message:    "tenant and client ID are required",
			Suggestion: "Pass --tenant and --client-id",
		}
	}
	if secret == "" {
		return dserrors.UserError{Message: "client secret is empty"}
	}
	if err := kr.Set(KeyringService, KeyringUser(tenantID, clientID), secret); err != nil {
		return dserrors.UserError{
			Message:    "Failed to store client secret in the OS keyring",
			Details:    err.Error(),
			Suggestion: "Ensure a keyring service is available (Keychain, Secret Service or Credential Manager)",
			Err:        err,
		}
	}
	return nil
}

// New creates an Azure credential based on configuration. kr is consulted
// for client_secret auth when the file does not carry the secret.
func New(auth config.AuthConfig, kr Keyring) (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	switch auth.Method {
	case "", config.AuthDefault:
		cred, err = azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: auth.TenantID,
		})

	case config.AuthManagedIdentity:
		var opts *azidentity.ManagedIdentityCredentialOptions
		if auth.UserAssignedID != "" {
			// User-assigned managed identity
			opts = &azidentity.ManagedIdentityCredentialOptions{
				ID: azidentity.ClientID(auth.UserAssignedID),
			}
		}
		cred, err = azidentity.NewManagedIdentityCredential(opts)

	case config.AuthClientSecret:
		secret, lookupErr := clientSecret(auth, kr)
		if lookupErr != nil {
			return nil, lookupErr
		}
		cred, err = azidentity.NewClientSecretCredential(auth.TenantID, auth.ClientID, secret, nil)

	case config.AuthCertificate:
		cred, err = certificateCredential(auth)

	case config.AuthCLI:
		cred, err = azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
			TenantID: auth.TenantID,
		})

	default:
		return nil, dserrors.ConfigError{
			Field:      "auth.method",
			Value:      auth.Method,
			Message:    "unknown authentication method",
			Suggestion: "Use one of: default, managed_identity, client_secret, certificate, cli",
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}

func clientSecret(auth config.AuthConfig, kr Keyring) (string, error) {
	if auth.TenantID == "" || auth.ClientID == "" {
		return "", dserrors.ConfigError{
			Field:   "auth",
			Message: "tenant_id and client_id are required for service principal authentication",
		}
	}
	if auth.ClientSecret != "" {
		return auth.ClientSecret, nil
	}
	if kr == nil {
		kr = SystemKeyring()
	}

	secret, err := kr.Get(KeyringService, KeyringUser(auth.TenantID, auth.ClientID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", dserrors.UserError{
				Message:    "No client secret found for this service principal",
				Suggestion: fmt.Sprintf("Run 'kvault login --tenant %s --client-id %s' and paste the secret", auth.TenantID, auth.ClientID),
				Err:        err,
			}
		}
		return "", dserrors.UserError{
			Message:    "Failed to read client secret from the OS keyring",
			Details:    err.Error(),
			Suggestion: "Unlock the keyring or set auth.client_secret",
			Err:        err,
		}
	}
	return secret, nil
}

func certificateCredential(auth config.AuthConfig) (azcore.TokenCredential, error) {
	if auth.TenantID == "" || auth.ClientID == "" {
		return nil, dserrors.ConfigError{
			Field:   "auth",
			Message: "tenant_id and client_id are required for certificate authentication",
		}
	}

	data, err := os.ReadFile(auth.CertificatePath)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to read certificate",
			Details:    err.Error(),
			Suggestion: "Check auth.certificate_path",
			Err:        err,
		}
	}

	var password []byte
	if auth.CertificatePassword != "" {
		password = []byte(auth.CertificatePassword)
	}
	certs, key, err := azidentity.ParseCertificates(data, password)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to parse certificate",
			Details:    err.Error(),
			Suggestion: "Check certificate path and format. PEM and PKCS#12 files are supported",
			Err:        err,
		}
	}
	return azidentity.NewClientCertificateCredential(auth.TenantID, auth.ClientID, certs, key, nil)
}
