package keyvault

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"golang.org/x/text/encoding"
)

// KeysAPI is the subset of *azkeys.Client used by KeyClient.
type KeysAPI interface {
	CryptoAPI
	CreateKey(ctx context.Context, name string, parameters azkeys.CreateKeyParameters, options *azkeys.CreateKeyOptions) (azkeys.CreateKeyResponse, error)
	GetKey(ctx context.Context, name string, version string, options *azkeys.GetKeyOptions) (azkeys.GetKeyResponse, error)
	DeleteKey(ctx context.Context, name string, options *azkeys.DeleteKeyOptions) (azkeys.DeleteKeyResponse, error)
	GetDeletedKey(ctx context.Context, name string, options *azkeys.GetDeletedKeyOptions) (azkeys.GetDeletedKeyResponse, error)
	PurgeDeletedKey(ctx context.Context, name string, options *azkeys.PurgeDeletedKeyOptions) (azkeys.PurgeDeletedKeyResponse, error)
	RecoverDeletedKey(ctx context.Context, name string, options *azkeys.RecoverDeletedKeyOptions) (azkeys.RecoverDeletedKeyResponse, error)
	NewListKeyPropertiesPager(options *azkeys.ListKeyPropertiesOptions) *runtime.Pager[azkeys.ListKeyPropertiesResponse]
	NewListDeletedKeyPropertiesPager(options *azkeys.ListDeletedKeyPropertiesOptions) *runtime.Pager[azkeys.ListDeletedKeyPropertiesResponse]
}

var _ KeysAPI = (*azkeys.Client)(nil)

// KeyClient wraps the vault's key API: lifecycle plus cryptographic
// operations that always run against the key's current version.
type KeyClient struct {
	api      KeysAPI
	vaultURL string
	cfg      Config
}

// KeyClientOption customizes a KeyClient.
type KeyClientOption func(*KeyClient)

// WithKeysAPI replaces the SDK client (for testing).
func WithKeysAPI(api KeysAPI) KeyClientOption {
	return func(c *KeyClient) {
		c.api = api
	}
}

// NewKeyClient creates a KeyClient for the vault described by cfg.
func NewKeyClient(cfg Config, opts ...KeyClientOption) (*KeyClient, error) {
	vaultURL, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	c := &KeyClient{
		vaultURL: vaultURL,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.api == nil {
		cred, err := cfg.credential()
		if err != nil {
			return nil, err
		}
		var clientOpts *azkeys.ClientOptions
		if cfg.ClientOptions != nil {
			clientOpts = &azkeys.ClientOptions{ClientOptions: *cfg.ClientOptions}
		}
		client, err := azkeys.NewClient(vaultURL, cred, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault keys client: %w", err)
		}
		c.api = client
	}

	return c, nil
}

// VaultURL returns the endpoint this client talks to.
func (c *KeyClient) VaultURL() string {
	return c.vaultURL
}

// Create creates a new key, or a new version of an existing key.
func (c *KeyClient) Create(ctx context.Context, name string, keyType azkeys.KeyType) (key azkeys.KeyBundle, err error) {
	if err := requireName("name", name); err != nil {
		return azkeys.KeyBundle{}, err
	}
	if keyType == "" {
		return azkeys.KeyBundle{}, &ArgumentError{Param: "keyType", Message: "must not be empty"}
	}
	defer track(c.cfg, ResourceKey, "create", name)(&err)

	resp, err := c.api.CreateKey(ctx, name, azkeys.CreateKeyParameters{Kty: &keyType}, nil)
	if err != nil {
		return azkeys.KeyBundle{}, err
	}
	return resp.KeyBundle, nil
}

// Get returns the current version of a key. A missing key yields a
// *NotFoundError matching ErrKeyNotFound.
func (c *KeyClient) Get(ctx context.Context, name string) (key azkeys.KeyBundle, err error) {
	if err := requireName("name", name); err != nil {
		return azkeys.KeyBundle{}, err
	}
	defer track(c.cfg, ResourceKey, "get", name)(&err)

	resp, err := c.api.GetKey(ctx, name, "", nil)
	if err != nil {
		return azkeys.KeyBundle{}, translateNotFound(ResourceKey, name, err)
	}
	return resp.KeyBundle, nil
}

// Exists reports whether the key exists.
func (c *KeyClient) Exists(ctx context.Context, name string) (bool, error) {
	if _, err := c.Get(ctx, name); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete soft-deletes a key, optionally waiting until the deleted copy is visible.
func (c *KeyClient) Delete(ctx context.Context, name string, wait bool) (deleted azkeys.DeletedKey, err error) {
	if err := requireName("name", name); err != nil {
		return azkeys.DeletedKey{}, err
	}

	deleted, err = c.deleteOnce(ctx, name)
	if err != nil {
		return azkeys.DeletedKey{}, err
	}

	if wait && deleted.RecoveryID != nil {
		err = waitForDeletion(ctx, c.cfg, ResourceKey, name, func(ctx context.Context) error {
			_, err := c.api.GetDeletedKey(ctx, name, nil)
			return err
		})
		if err != nil {
			return azkeys.DeletedKey{}, err
		}
	}
	return deleted, nil
}

func (c *KeyClient) deleteOnce(ctx context.Context, name string) (deleted azkeys.DeletedKey, err error) {
	defer track(c.cfg, ResourceKey, "delete", name)(&err)

	resp, err := c.api.DeleteKey(ctx, name, nil)
	if err != nil {
		return azkeys.DeletedKey{}, translateNotFound(ResourceKey, name, err)
	}
	return resp.DeletedKey, nil
}

// DeleteIfExists is Delete that reports false instead of failing for a missing key.
func (c *KeyClient) DeleteIfExists(ctx context.Context, name string, wait bool) (bool, error) {
	if _, err := c.Delete(ctx, name, wait); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetDeleted returns the soft-deleted copy of a key.
func (c *KeyClient) GetDeleted(ctx context.Context, name string) (deleted azkeys.DeletedKey, err error) {
	if err := requireName("name", name); err != nil {
		return azkeys.DeletedKey{}, err
	}
	defer track(c.cfg, ResourceKey, "get_deleted", name)(&err)

	resp, err := c.api.GetDeletedKey(ctx, name, nil)
	if err != nil {
		return azkeys.DeletedKey{}, translateNotFound(ResourceKey, name, err)
	}
	return resp.DeletedKey, nil
}

// GetDeletedIfExists returns the soft-deleted copy of a key, or nil.
func (c *KeyClient) GetDeletedIfExists(ctx context.Context, name string) (*azkeys.DeletedKey, error) {
	d, err := c.GetDeleted(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// IsDeleted reports whether a soft-deleted copy of the key exists.
func (c *KeyClient) IsDeleted(ctx context.Context, name string) (bool, error) {
	d, err := c.GetDeletedIfExists(ctx, name)
	if err != nil {
		return false, err
	}
	return d != nil, nil
}

// Purge permanently erases a soft-deleted key. Purging a live key returns
// the service error unchanged; it classifies as KindNotYetDeleted.
func (c *KeyClient) Purge(ctx context.Context, name string) (err error) {
	if err := requireName("name", name); err != nil {
		return err
	}
	defer track(c.cfg, ResourceKey, "purge", name)(&err)

	if _, err := c.api.PurgeDeletedKey(ctx, name, nil); err != nil {
		return translateNotFound(ResourceKey, name, err)
	}
	return nil
}

// PurgeIfDeleted purges the key only if it is currently soft-deleted.
func (c *KeyClient) PurgeIfDeleted(ctx context.Context, name string) (bool, error) {
	deleted, err := c.IsDeleted(ctx, name)
	if err != nil || !deleted {
		return false, err
	}
	if err := c.Purge(ctx, name); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Recover restores a soft-deleted key.
func (c *KeyClient) Recover(ctx context.Context, name string) (key azkeys.KeyBundle, err error) {
	if err := requireName("name", name); err != nil {
		return azkeys.KeyBundle{}, err
	}
	defer track(c.cfg, ResourceKey, "recover", name)(&err)

	resp, err := c.api.RecoverDeletedKey(ctx, name, nil)
	if err != nil {
		return azkeys.KeyBundle{}, translateNotFound(ResourceKey, name, err)
	}
	return resp.KeyBundle, nil
}

// ListNames returns the names of all current keys.
func (c *KeyClient) ListNames(ctx context.Context) (names []string, err error) {
	defer track(c.cfg, ResourceKey, "list", "")(&err)

	pager := c.api.NewListKeyPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Value {
			if p != nil && p.KID != nil {
				names = append(names, p.KID.Name())
			}
		}
	}
	return names, nil
}

// ListDeletedNames returns the names of all soft-deleted keys.
func (c *KeyClient) ListDeletedNames(ctx context.Context) (names []string, err error) {
	defer track(c.cfg, ResourceKey, "list_deleted", "")(&err)

	pager := c.api.NewListDeletedKeyPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Value {
			if p != nil && p.KID != nil {
				names = append(names, p.KID.Name())
			}
		}
	}
	return names, nil
}

// CryptoClient resolves the current version of the named key and returns a
// client bound to that version.
func (c *KeyClient) CryptoClient(ctx context.Context, name string) (*CryptoClient, error) {
	key, err := c.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if key.Key == nil || key.Key.KID == nil {
		return nil, fmt.Errorf("key %q: service returned no key identifier", name)
	}
	return &CryptoClient{
		api:     c.api,
		cfg:     c.cfg,
		name:    name,
		version: key.Key.KID.Version(),
	}, nil
}

// Encrypt encrypts plaintext with the current version of the key.
func (c *KeyClient) Encrypt(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, plaintext []byte) (azkeys.KeyOperationResult, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	return cc.Encrypt(ctx, alg, plaintext)
}

// EncryptText encodes text with enc (UTF-8 when nil) and encrypts it.
func (c *KeyClient) EncryptText(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, text string, enc encoding.Encoding) (azkeys.KeyOperationResult, error) {
	data, err := encodeText(text, enc)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	return c.Encrypt(ctx, name, alg, data)
}

// Decrypt decrypts ciphertext with the current version of the key. No IV or
// authentication tag is sent; see DecryptResult.
func (c *KeyClient) Decrypt(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return cc.Decrypt(ctx, alg, ciphertext)
}

// DecryptResult decrypts the output of Encrypt, including any IV and
// authentication tag, with the current version of the key.
func (c *KeyClient) DecryptResult(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, encrypted azkeys.KeyOperationResult) ([]byte, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return cc.DecryptResult(ctx, alg, encrypted)
}

// DecryptText decrypts ciphertext and decodes the plaintext with enc (UTF-8 when nil).
func (c *KeyClient) DecryptText(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, ciphertext []byte, enc encoding.Encoding) (string, error) {
	data, err := c.Decrypt(ctx, name, alg, ciphertext)
	if err != nil {
		return "", err
	}
	return decodeText(data, enc)
}

// Sign signs digest with the current version of the key.
func (c *KeyClient) Sign(ctx context.Context, name string, alg azkeys.SignatureAlgorithm, digest []byte) (azkeys.KeyOperationResult, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	return cc.Sign(ctx, alg, digest)
}

// Verify checks signature against digest with the current version of the key.
func (c *KeyClient) Verify(ctx context.Context, name string, alg azkeys.SignatureAlgorithm, digest, signature []byte) (bool, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return false, err
	}
	return cc.Verify(ctx, alg, digest, signature)
}

// WrapKey wraps a symmetric key with the current version of the key.
func (c *KeyClient) WrapKey(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, key []byte) (azkeys.KeyOperationResult, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	return cc.WrapKey(ctx, alg, key)
}

// UnwrapKey unwraps a key wrapped by WrapKey.
func (c *KeyClient) UnwrapKey(ctx context.Context, name string, alg azkeys.EncryptionAlgorithm, wrapped []byte) ([]byte, error) {
	cc, err := c.CryptoClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return cc.UnwrapKey(ctx, alg, wrapped)
}
