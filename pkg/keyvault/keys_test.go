package keyvault_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvault/pkg/keyvault"
	"github.com/systmms/kvault/tests/fakes"
	"golang.org/x/text/encoding/unicode"
)

var _ keyvault.KeysAPI = (*fakes.FakeAzureKeysClient)(nil)

func newKeyClient(t *testing.T, api keyvault.KeysAPI) *keyvault.KeyClient {
	t.Helper()
	c, err := keyvault.NewKeyClient(testConfig(), keyvault.WithKeysAPI(api))
	require.NoError(t, err)
	return c
}

func TestKeyClientLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.DeletePendingPolls = 2
	c := newKeyClient(t, fake)

	t.Run("create", func(t *testing.T) {
		key, err := c.Create(ctx, "signing", azkeys.KeyTypeRSA)
		require.NoError(t, err)
		require.NotNil(t, key.Key)
		assert.Equal(t, "signing", key.Key.KID.Name())
		assert.Equal(t, fake.CurrentVersion("signing"), key.Key.KID.Version())
	})

	t.Run("create_requires_type", func(t *testing.T) {
		_, err := c.Create(ctx, "untyped", "")
		assert.ErrorIs(t, err, keyvault.ErrInvalidArgument)
		assert.Equal(t, 1, fake.Calls("CreateKey"))
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := c.Exists(ctx, "signing")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("get_missing", func(t *testing.T) {
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, keyvault.ErrKeyNotFound)
		assert.NotErrorIs(t, err, keyvault.ErrSecretNotFound)
	})

	t.Run("list", func(t *testing.T) {
		_, err := c.Create(ctx, "wrapping", azkeys.KeyTypeRSA)
		require.NoError(t, err)
		names, err := c.ListNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"signing", "wrapping"}, names)
	})

	t.Run("purge_live_key", func(t *testing.T) {
		err := c.Purge(ctx, "wrapping")
		assert.True(t, keyvault.IsNotYetDeleted(err))

		purged, err := c.PurgeIfDeleted(ctx, "wrapping")
		require.NoError(t, err)
		assert.False(t, purged)
	})

	t.Run("delete_wait_recover", func(t *testing.T) {
		before := fake.Calls("GetDeletedKey")
		_, err := c.Delete(ctx, "wrapping", true)
		require.NoError(t, err)
		assert.Equal(t, before+3, fake.Calls("GetDeletedKey"))

		deleted, err := c.IsDeleted(ctx, "wrapping")
		require.NoError(t, err)
		assert.True(t, deleted)

		names, err := c.ListDeletedNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"wrapping"}, names)

		key, err := c.Recover(ctx, "wrapping")
		require.NoError(t, err)
		assert.Equal(t, "wrapping", key.Key.KID.Name())
	})

	t.Run("delete_if_exists_missing", func(t *testing.T) {
		deleted, err := c.DeleteIfExists(ctx, "missing", true)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("purge_if_deleted", func(t *testing.T) {
		_, err := c.Delete(ctx, "wrapping", false)
		require.NoError(t, err)

		d, err := c.GetDeletedIfExists(ctx, "wrapping")
		require.NoError(t, err)
		assert.Nil(t, d, "deleted copy is still pending")

		purged, err := c.PurgeIfDeleted(ctx, "wrapping")
		require.NoError(t, err)
		assert.False(t, purged)

		purged, err = c.PurgeIfDeleted(ctx, "wrapping")
		require.NoError(t, err)
		assert.True(t, purged)
		assert.False(t, fake.IsDeleted("wrapping"))
	})
}

func TestKeyClientEncryptDecrypt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.AddKey("data", azkeys.KeyTypeRSA)
	c := newKeyClient(t, fake)
	alg := azkeys.EncryptionAlgorithmRSAOAEP256

	result, err := c.Encrypt(ctx, "data", alg, []byte("plaintext"))
	require.NoError(t, err)
	require.NotNil(t, result.KID)
	assert.Equal(t, fake.CurrentVersion("data"), result.KID.Version())
	assert.NotEqual(t, []byte("plaintext"), result.Result)

	plain, err := c.Decrypt(ctx, "data", alg, result.Result)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext"), plain)

	// every operation resolves the current version first
	assert.Equal(t, 2, fake.Calls("GetKey"))
}

func TestKeyClientDecryptResultCarriesIV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.AddKey("hsm", azkeys.KeyTypeOctHSM)
	c := newKeyClient(t, fake)
	alg := azkeys.EncryptionAlgorithmA256GCM

	result, err := c.Encrypt(ctx, "hsm", alg, []byte("plaintext"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.IV)
	assert.NotEmpty(t, result.AuthenticationTag)

	// the bare ciphertext is not enough for AES-GCM
	_, err = c.Decrypt(ctx, "hsm", alg, result.Result)
	require.Error(t, err)
	assert.Equal(t, 400, keyvault.StatusCode(err))

	plain, err := c.DecryptResult(ctx, "hsm", alg, result)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext"), plain)
}

func TestKeyClientText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.AddKey("data", azkeys.KeyTypeRSA)
	c := newKeyClient(t, fake)
	alg := azkeys.EncryptionAlgorithmRSAOAEP256

	t.Run("utf8_default", func(t *testing.T) {
		result, err := c.EncryptText(ctx, "data", alg, "héllo wörld", nil)
		require.NoError(t, err)
		text, err := c.DecryptText(ctx, "data", alg, result.Result, nil)
		require.NoError(t, err)
		assert.Equal(t, "héllo wörld", text)
	})

	t.Run("utf16", func(t *testing.T) {
		enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
		result, err := c.EncryptText(ctx, "data", alg, "héllo", enc)
		require.NoError(t, err)

		raw, err := c.Decrypt(ctx, "data", alg, result.Result)
		require.NoError(t, err)
		assert.Len(t, raw, 10)

		text, err := c.DecryptText(ctx, "data", alg, result.Result, enc)
		require.NoError(t, err)
		assert.Equal(t, "héllo", text)
	})
}

func TestKeyClientRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.AddKey("data", azkeys.KeyTypeRSA)
	c := newKeyClient(t, fake)
	alg := azkeys.EncryptionAlgorithmRSAOAEP256

	before, err := c.Encrypt(ctx, "data", alg, []byte("secret"))
	require.NoError(t, err)

	_, err = c.Create(ctx, "data", azkeys.KeyTypeRSA)
	require.NoError(t, err)

	// Ciphertext from the previous version no longer decrypts through the
	// key-level API, which always targets the current version.
	_, err = c.Decrypt(ctx, "data", alg, before.Result)
	require.Error(t, err)
	assert.Equal(t, keyvault.KindUnclassified, keyvault.Classify(err))

	after, err := c.Encrypt(ctx, "data", alg, []byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, before.KID.Version(), after.KID.Version())

	plain, err := c.Decrypt(ctx, "data", alg, after.Result)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plain)
}

func TestKeyClientSignVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.AddKey("signing", azkeys.KeyTypeEC)
	c := newKeyClient(t, fake)
	alg := azkeys.SignatureAlgorithmES256
	digest := sha256.Sum256([]byte("message"))

	sig, err := c.Sign(ctx, "signing", alg, digest[:])
	require.NoError(t, err)

	valid, err := c.Verify(ctx, "signing", alg, digest[:], sig.Result)
	require.NoError(t, err)
	assert.True(t, valid)

	other := sha256.Sum256([]byte("tampered"))
	valid, err = c.Verify(ctx, "signing", alg, other[:], sig.Result)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestKeyClientWrapUnwrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	fake.AddKey("kek", azkeys.KeyTypeRSA)
	c := newKeyClient(t, fake)
	alg := azkeys.EncryptionAlgorithmRSAOAEP

	dek := []byte("0123456789abcdef0123456789abcdef")
	wrapped, err := c.WrapKey(ctx, "kek", alg, dek)
	require.NoError(t, err)

	unwrapped, err := c.UnwrapKey(ctx, "kek", alg, wrapped.Result)
	require.NoError(t, err)
	assert.Equal(t, dek, unwrapped)
}

func TestCryptoClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := fakes.NewFakeAzureKeysClient()
	version := fake.AddKey("data", azkeys.KeyTypeRSA)
	c := newKeyClient(t, fake)
	alg := azkeys.EncryptionAlgorithmRSAOAEP256

	t.Run("bound_to_version", func(t *testing.T) {
		cc, err := c.CryptoClient(ctx, "data")
		require.NoError(t, err)
		assert.Equal(t, "data", cc.Name())
		assert.Equal(t, version, cc.Version())

		result, err := cc.Encrypt(ctx, alg, []byte("pinned"))
		require.NoError(t, err)

		// A pinned client still decrypts after rotation.
		fake.AddKey("data", azkeys.KeyTypeRSA)
		plain, err := cc.Decrypt(ctx, alg, result.Result)
		require.NoError(t, err)
		assert.Equal(t, []byte("pinned"), plain)
	})

	t.Run("missing_key", func(t *testing.T) {
		_, err := c.CryptoClient(ctx, "missing")
		assert.ErrorIs(t, err, keyvault.ErrKeyNotFound)

		_, err = c.Encrypt(ctx, "missing", alg, []byte("x"))
		assert.ErrorIs(t, err, keyvault.ErrKeyNotFound)
		assert.Equal(t, 1, fake.Calls("Encrypt"))
	})
}
