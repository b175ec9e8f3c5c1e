package credential_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvault/internal/config"
	"github.com/systmms/kvault/internal/credential"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/tests/fakes"
)

const (
	tenantID = "00000000-0000-0000-0000-000000000001"
	clientID = "00000000-0000-0000-0000-000000000002"
)

func TestNewSelectsCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		auth config.AuthConfig
		want interface{}
	}{
		{name: "default", auth: config.AuthConfig{}, want: &azidentity.DefaultAzureCredential{}},
		{name: "explicit_default", auth: config.AuthConfig{Method: config.AuthDefault}, want: &azidentity.DefaultAzureCredential{}},
		{name: "system_managed_identity", auth: config.AuthConfig{Method: config.AuthManagedIdentity}, want: &azidentity.ManagedIdentityCredential{}},
		{
			name: "user_managed_identity",
			auth: config.AuthConfig{Method: config.AuthManagedIdentity, UserAssignedID: clientID},
			want: &azidentity.ManagedIdentityCredential{},
		},
		{
			name: "client_secret_inline",
			auth: config.AuthConfig{Method: config.AuthClientSecret, TenantID: tenantID, ClientID: clientID, ClientSecret: "s3cret"},
			want: &azidentity.ClientSecretCredential{},
		},
		{name: "cli", auth: config.AuthConfig{Method: config.AuthCLI}, want: &azidentity.AzureCLICredential{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cred, err := credential.New(tt.auth, fakes.NewFakeKeyring())
			require.NoError(t, err)
			assert.IsType(t, tt.want, cred)
		})
	}
}

func TestNewUnknownMethod(t *testing.T) {
	t.Parallel()

	_, err := credential.New(config.AuthConfig{Method: "password"}, nil)
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "auth.method", cfgErr.Field)
}

func TestClientSecretFromKeyring(t *testing.T) {
	t.Parallel()

	kr := fakes.NewFakeKeyring()
	auth := config.AuthConfig{Method: config.AuthClientSecret, TenantID: tenantID, ClientID: clientID}

	t.Run("missing_secret_suggests_login", func(t *testing.T) {
		_, err := credential.New(auth, kr)
		var userErr dserrors.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Contains(t, userErr.Suggestion, "kvault login")
	})

	t.Run("stored_secret", func(t *testing.T) {
		require.NoError(t, credential.StoreClientSecret(kr, tenantID, clientID, "from-keyring"))
		assert.Equal(t, "from-keyring", kr.Secrets[credential.KeyringService][credential.KeyringUser(tenantID, clientID)])

		cred, err := credential.New(auth, kr)
		require.NoError(t, err)
		assert.IsType(t, &azidentity.ClientSecretCredential{}, cred)
	})

	t.Run("keyring_failure", func(t *testing.T) {
		broken := fakes.NewFakeKeyring()
		broken.GetErr = errors.New("dbus: no session bus")
		_, err := credential.New(auth, broken)
		var userErr dserrors.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Contains(t, userErr.Message, "OS keyring")
	})

	t.Run("requires_ids", func(t *testing.T) {
		_, err := credential.New(config.AuthConfig{Method: config.AuthClientSecret}, kr)
		var cfgErr dserrors.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestStoreClientSecretValidation(t *testing.T) {
	t.Parallel()

	kr := fakes.NewFakeKeyring()
	assert.Error(t, credential.StoreClientSecret(kr, "", clientID, "s"))
	assert.Error(t, credential.StoreClientSecret(kr, tenantID, clientID, ""))

	kr.SetErr = errors.New("locked")
	err := credential.StoreClientSecret(kr, tenantID, clientID, "s")
	var userErr dserrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Details, "locked")
}

func TestCertificateCredential(t *testing.T) {
	t.Parallel()

	path := writeSelfSignedPEM(t)

	t.Run("pem_file", func(t *testing.T) {
		cred, err := credential.New(config.AuthConfig{
			Method:          config.AuthCertificate,
			TenantID:        tenantID,
			ClientID:        clientID,
			CertificatePath: path,
		}, nil)
		require.NoError(t, err)
		assert.IsType(t, &azidentity.ClientCertificateCredential{}, cred)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := credential.New(config.AuthConfig{
			Method:          config.AuthCertificate,
			TenantID:        tenantID,
			ClientID:        clientID,
			CertificatePath: filepath.Join(t.TempDir(), "nope.pem"),
		}, nil)
		var userErr dserrors.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Equal(t, "Failed to read certificate", userErr.Message)
	})

	t.Run("not_a_certificate", func(t *testing.T) {
		bogus := filepath.Join(t.TempDir(), "bogus.pem")
		require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))
		_, err := credential.New(config.AuthConfig{
			Method:          config.AuthCertificate,
			TenantID:        tenantID,
			ClientID:        clientID,
			CertificatePath: bogus,
		}, nil)
		var userErr dserrors.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Equal(t, "Failed to parse certificate", userErr.Message)
	})
}

func writeSelfSignedPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "kvault-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)

	path := filepath.Join(t.TempDir(), "client.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
