package fakes

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
)

// FakeAzureKeysClient is an in-memory stand-in for *azkeys.Client.
//
// Each key version gets random symmetric material. Encrypt and WrapKey use
// AES-GCM, Sign uses HMAC-SHA256, so round trips succeed only against the
// version that produced the output. That makes key rotation observable in
// tests.
type FakeAzureKeysClient struct {
	// Errors maps key names to an error returned by every call for that name.
	Errors map[string]error
	// ListError is returned by the list pagers.
	ListError error
	// SoftDeleteDisabled makes DeleteKey remove keys outright.
	SoftDeleteDisabled bool
	// DeletePendingPolls is how many GetDeletedKey calls report 404 after a
	// delete before the deleted copy becomes visible.
	DeletePendingPolls int
	// PageSize is the number of items per list page. Default: 2.
	PageSize int

	mu      sync.Mutex
	live    map[string]*fakeKey
	deleted map[string]*fakeKey
	pending map[string]int
	calls   map[string]int
	seq     int
}

type fakeKey struct {
	kty         azkeys.KeyType
	versions    []*fakeKeyVersion
	deletedDate *time.Time
}

type fakeKeyVersion struct {
	version  string
	material []byte
	created  time.Time
}

func (k *fakeKey) current() *fakeKeyVersion {
	return k.versions[len(k.versions)-1]
}

// NewFakeAzureKeysClient creates an empty fake vault.
func NewFakeAzureKeysClient() *FakeAzureKeysClient {
	return &FakeAzureKeysClient{
		Errors:  make(map[string]error),
		live:    make(map[string]*fakeKey),
		deleted: make(map[string]*fakeKey),
		pending: make(map[string]int),
		calls:   make(map[string]int),
	}
}

// AddKey adds a new version of a key and returns the version string.
func (f *FakeAzureKeysClient) AddKey(name string, kty azkeys.KeyType) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addVersionLocked(name, kty)
}

// AddDeletedKey adds a key that is already in the recycle bin.
func (f *FakeAzureKeysClient) AddDeletedKey(name string, kty azkeys.KeyType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addVersionLocked(name, kty)
	now := time.Now()
	k := f.live[name]
	k.deletedDate = &now
	f.deleted[name] = k
	delete(f.live, name)
}

// AddError configures the fake to return err for every call naming the key.
func (f *FakeAzureKeysClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Calls returns how many times method was invoked.
func (f *FakeAzureKeysClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// CurrentVersion returns the latest version of a live key.
func (f *FakeAzureKeysClient) CurrentVersion(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.live[name]; ok {
		return k.current().version
	}
	return ""
}

// IsDeleted reports whether the key sits in the recycle bin.
func (f *FakeAzureKeysClient) IsDeleted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.deleted[name]
	return ok
}

func (f *FakeAzureKeysClient) addVersionLocked(name string, kty azkeys.KeyType) string {
	f.seq++
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		panic(err)
	}
	k, ok := f.live[name]
	if !ok {
		k = &fakeKey{kty: kty}
		f.live[name] = k
	}
	k.kty = kty
	v := &fakeKeyVersion{
		version:  fmt.Sprintf("%032x", f.seq),
		material: material,
		created:  time.Now(),
	}
	k.versions = append(k.versions, v)
	return v.version
}

func (f *FakeAzureKeysClient) begin(ctx context.Context, method, name string) error {
	f.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := f.Errors[name]; ok {
		return err
	}
	return nil
}

// version looks up a specific version of a live key; "" means latest.
func (f *FakeAzureKeysClient) version(name, version string) (*fakeKeyVersion, error) {
	k, ok := f.live[name]
	if !ok {
		return nil, AzureKeyNotFoundError(name)
	}
	if version == "" {
		return k.current(), nil
	}
	for _, v := range k.versions {
		if v.version == version {
			return v, nil
		}
	}
	return nil, AzureKeyNotFoundError(name)
}

func keyID(name, version string) *azkeys.ID {
	id := azkeys.ID(fmt.Sprintf("%skeys/%s/%s", FakeVaultURL, name, version))
	return &id
}

func (k *fakeKey) attributes(v *fakeKeyVersion) *azkeys.KeyAttributes {
	created := v.created
	return &azkeys.KeyAttributes{
		Enabled: to.Ptr(true),
		Created: &created,
		Updated: &created,
	}
}

func (k *fakeKey) bundle(name string, v *fakeKeyVersion) azkeys.KeyBundle {
	kty := k.kty
	return azkeys.KeyBundle{
		Attributes: k.attributes(v),
		Key: &azkeys.JSONWebKey{
			KID: keyID(name, v.version),
			Kty: &kty,
		},
	}
}

func (k *fakeKey) deletedKey(name string, recoverable bool) azkeys.DeletedKey {
	cur := k.current()
	kty := k.kty
	dk := azkeys.DeletedKey{
		Attributes:  k.attributes(cur),
		Key:         &azkeys.JSONWebKey{KID: keyID(name, cur.version), Kty: &kty},
		DeletedDate: k.deletedDate,
	}
	if recoverable {
		dk.RecoveryID = to.Ptr(fmt.Sprintf("%sdeletedkeys/%s", FakeVaultURL, name))
		purge := k.deletedDate.Add(90 * 24 * time.Hour)
		dk.ScheduledPurgeDate = &purge
	}
	return dk
}

// CreateKey adds a new version, creating the key if needed.
func (f *FakeAzureKeysClient) CreateKey(ctx context.Context, name string, parameters azkeys.CreateKeyParameters, options *azkeys.CreateKeyOptions) (azkeys.CreateKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "CreateKey", name); err != nil {
		return azkeys.CreateKeyResponse{}, err
	}
	if _, ok := f.deleted[name]; ok {
		return azkeys.CreateKeyResponse{}, newResponseError(http.StatusConflict, "Conflict",
			fmt.Sprintf("Key %s is currently in a deleted but recoverable state.", name))
	}
	if parameters.Kty == nil {
		return azkeys.CreateKeyResponse{}, newResponseError(http.StatusBadRequest, "BadParameter", "Key type is required")
	}

	f.addVersionLocked(name, *parameters.Kty)
	k := f.live[name]
	return azkeys.CreateKeyResponse{KeyBundle: k.bundle(name, k.current())}, nil
}

// GetKey returns the requested version, or the latest when version is empty.
func (f *FakeAzureKeysClient) GetKey(ctx context.Context, name string, version string, options *azkeys.GetKeyOptions) (azkeys.GetKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "GetKey", name); err != nil {
		return azkeys.GetKeyResponse{}, err
	}
	v, err := f.version(name, version)
	if err != nil {
		return azkeys.GetKeyResponse{}, err
	}
	return azkeys.GetKeyResponse{KeyBundle: f.live[name].bundle(name, v)}, nil
}

// DeleteKey moves a live key into the recycle bin.
func (f *FakeAzureKeysClient) DeleteKey(ctx context.Context, name string, options *azkeys.DeleteKeyOptions) (azkeys.DeleteKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "DeleteKey", name); err != nil {
		return azkeys.DeleteKeyResponse{}, err
	}
	k, ok := f.live[name]
	if !ok {
		return azkeys.DeleteKeyResponse{}, AzureKeyNotFoundError(name)
	}
	delete(f.live, name)
	now := time.Now()
	k.deletedDate = &now

	if f.SoftDeleteDisabled {
		return azkeys.DeleteKeyResponse{DeletedKey: k.deletedKey(name, false)}, nil
	}
	f.deleted[name] = k
	f.pending[name] = f.DeletePendingPolls
	return azkeys.DeleteKeyResponse{DeletedKey: k.deletedKey(name, true)}, nil
}

// GetDeletedKey returns the recycle-bin copy of a key.
func (f *FakeAzureKeysClient) GetDeletedKey(ctx context.Context, name string, options *azkeys.GetDeletedKeyOptions) (azkeys.GetDeletedKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "GetDeletedKey", name); err != nil {
		return azkeys.GetDeletedKeyResponse{}, err
	}
	k, ok := f.deleted[name]
	if !ok {
		return azkeys.GetDeletedKeyResponse{}, AzureKeyNotFoundError(name)
	}
	if f.pending[name] > 0 {
		f.pending[name]--
		return azkeys.GetDeletedKeyResponse{}, AzureKeyNotFoundError(name)
	}
	return azkeys.GetDeletedKeyResponse{DeletedKey: k.deletedKey(name, true)}, nil
}

// PurgeDeletedKey permanently removes a key from the recycle bin.
func (f *FakeAzureKeysClient) PurgeDeletedKey(ctx context.Context, name string, options *azkeys.PurgeDeletedKeyOptions) (azkeys.PurgeDeletedKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "PurgeDeletedKey", name); err != nil {
		return azkeys.PurgeDeletedKeyResponse{}, err
	}
	if _, ok := f.deleted[name]; !ok {
		if _, live := f.live[name]; live {
			return azkeys.PurgeDeletedKeyResponse{}, newResponseError(http.StatusBadRequest, "BadParameter",
				fmt.Sprintf("Key %s must be deleted before it can be purged.", name))
		}
		return azkeys.PurgeDeletedKeyResponse{}, AzureKeyNotFoundError(name)
	}
	delete(f.deleted, name)
	delete(f.pending, name)
	return azkeys.PurgeDeletedKeyResponse{}, nil
}

// RecoverDeletedKey moves a key from the recycle bin back to live.
func (f *FakeAzureKeysClient) RecoverDeletedKey(ctx context.Context, name string, options *azkeys.RecoverDeletedKeyOptions) (azkeys.RecoverDeletedKeyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "RecoverDeletedKey", name); err != nil {
		return azkeys.RecoverDeletedKeyResponse{}, err
	}
	k, ok := f.deleted[name]
	if !ok {
		return azkeys.RecoverDeletedKeyResponse{}, AzureKeyNotFoundError(name)
	}
	delete(f.deleted, name)
	delete(f.pending, name)
	k.deletedDate = nil
	f.live[name] = k
	return azkeys.RecoverDeletedKeyResponse{KeyBundle: k.bundle(name, k.current())}, nil
}

// NewListKeyPropertiesPager lists live keys in name order.
func (f *FakeAzureKeysClient) NewListKeyPropertiesPager(options *azkeys.ListKeyPropertiesOptions) *runtime.Pager[azkeys.ListKeyPropertiesResponse] {
	f.mu.Lock()
	f.calls["NewListKeyPropertiesPager"]++
	var items []*azkeys.KeyProperties
	for _, name := range sortedNames(f.live) {
		k := f.live[name]
		items = append(items, &azkeys.KeyProperties{
			KID:        keyID(name, k.current().version),
			Attributes: k.attributes(k.current()),
		})
	}
	listErr := f.ListError
	pages := chunk(items, f.pageSize())
	f.mu.Unlock()

	return runtime.NewPager(runtime.PagingHandler[azkeys.ListKeyPropertiesResponse]{
		More: func(resp azkeys.ListKeyPropertiesResponse) bool {
			return resp.NextLink != nil
		},
		Fetcher: func(ctx context.Context, cur *azkeys.ListKeyPropertiesResponse) (azkeys.ListKeyPropertiesResponse, error) {
			if listErr != nil {
				return azkeys.ListKeyPropertiesResponse{}, listErr
			}
			idx := pageIndex(cur, func(r *azkeys.ListKeyPropertiesResponse) *string { return r.NextLink })
			return azkeys.ListKeyPropertiesResponse{
				KeyPropertiesListResult: azkeys.KeyPropertiesListResult{
					Value:    pages[idx],
					NextLink: nextLink(idx, len(pages)),
				},
			}, nil
		},
	})
}

// NewListDeletedKeyPropertiesPager lists recycle-bin keys in name order.
func (f *FakeAzureKeysClient) NewListDeletedKeyPropertiesPager(options *azkeys.ListDeletedKeyPropertiesOptions) *runtime.Pager[azkeys.ListDeletedKeyPropertiesResponse] {
	f.mu.Lock()
	f.calls["NewListDeletedKeyPropertiesPager"]++
	var items []*azkeys.DeletedKeyProperties
	for _, name := range sortedNames(f.deleted) {
		k := f.deleted[name]
		items = append(items, &azkeys.DeletedKeyProperties{
			KID:         keyID(name, k.current().version),
			Attributes:  k.attributes(k.current()),
			DeletedDate: k.deletedDate,
		})
	}
	listErr := f.ListError
	pages := chunk(items, f.pageSize())
	f.mu.Unlock()

	return runtime.NewPager(runtime.PagingHandler[azkeys.ListDeletedKeyPropertiesResponse]{
		More: func(resp azkeys.ListDeletedKeyPropertiesResponse) bool {
			return resp.NextLink != nil
		},
		Fetcher: func(ctx context.Context, cur *azkeys.ListDeletedKeyPropertiesResponse) (azkeys.ListDeletedKeyPropertiesResponse, error) {
			if listErr != nil {
				return azkeys.ListDeletedKeyPropertiesResponse{}, listErr
			}
			idx := pageIndex(cur, func(r *azkeys.ListDeletedKeyPropertiesResponse) *string { return r.NextLink })
			return azkeys.ListDeletedKeyPropertiesResponse{
				DeletedKeyPropertiesListResult: azkeys.DeletedKeyPropertiesListResult{
					Value:    pages[idx],
					NextLink: nextLink(idx, len(pages)),
				},
			}, nil
		},
	})
}

func (f *FakeAzureKeysClient) pageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return 2
}

// Encrypt seals plaintext with AES-GCM under the version's material.
func (f *FakeAzureKeysClient) Encrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.EncryptOptions) (azkeys.EncryptResponse, error) {
	result, err := f.seal(ctx, "Encrypt", name, version, parameters, []byte("encrypt"))
	return azkeys.EncryptResponse{KeyOperationResult: result}, err
}

// Decrypt opens ciphertext produced by Encrypt.
func (f *FakeAzureKeysClient) Decrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.DecryptOptions) (azkeys.DecryptResponse, error) {
	result, err := f.open(ctx, "Decrypt", name, version, parameters, []byte("encrypt"))
	return azkeys.DecryptResponse{KeyOperationResult: result}, err
}

// WrapKey seals a key; it cannot be opened by Decrypt.
func (f *FakeAzureKeysClient) WrapKey(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error) {
	result, err := f.seal(ctx, "WrapKey", name, version, parameters, []byte("wrap"))
	return azkeys.WrapKeyResponse{KeyOperationResult: result}, err
}

// UnwrapKey opens a key sealed by WrapKey.
func (f *FakeAzureKeysClient) UnwrapKey(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error) {
	result, err := f.open(ctx, "UnwrapKey", name, version, parameters, []byte("wrap"))
	return azkeys.UnwrapKeyResponse{KeyOperationResult: result}, err
}

// Sign computes an HMAC-SHA256 over the algorithm name and digest.
func (f *FakeAzureKeysClient) Sign(ctx context.Context, name string, version string, parameters azkeys.SignParameters, options *azkeys.SignOptions) (azkeys.SignResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Sign", name); err != nil {
		return azkeys.SignResponse{}, err
	}
	if parameters.Algorithm == nil {
		return azkeys.SignResponse{}, newResponseError(http.StatusBadRequest, "BadParameter", "Algorithm is required")
	}
	v, err := f.version(name, version)
	if err != nil {
		return azkeys.SignResponse{}, err
	}
	return azkeys.SignResponse{KeyOperationResult: azkeys.KeyOperationResult{
		KID:    keyID(name, v.version),
		Result: mac(v.material, string(*parameters.Algorithm), parameters.Value),
	}}, nil
}

// Verify checks a signature produced by Sign.
func (f *FakeAzureKeysClient) Verify(ctx context.Context, name string, version string, parameters azkeys.VerifyParameters, options *azkeys.VerifyOptions) (azkeys.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Verify", name); err != nil {
		return azkeys.VerifyResponse{}, err
	}
	if parameters.Algorithm == nil {
		return azkeys.VerifyResponse{}, newResponseError(http.StatusBadRequest, "BadParameter", "Algorithm is required")
	}
	v, err := f.version(name, version)
	if err != nil {
		return azkeys.VerifyResponse{}, err
	}
	expected := mac(v.material, string(*parameters.Algorithm), parameters.Digest)
	valid := hmac.Equal(expected, parameters.Signature)
	return azkeys.VerifyResponse{KeyVerifyResult: azkeys.KeyVerifyResult{Value: &valid}}, nil
}

func (f *FakeAzureKeysClient) seal(ctx context.Context, method, name, version string, parameters azkeys.KeyOperationParameters, purpose []byte) (azkeys.KeyOperationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, method, name); err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	if parameters.Algorithm == nil {
		return azkeys.KeyOperationResult{}, newResponseError(http.StatusBadRequest, "BadParameter", "Algorithm is required")
	}
	v, err := f.version(name, version)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	aead, err := newAEAD(v.material)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	if separateIV(*parameters.Algorithm) {
		sealed := aead.Seal(nil, nonce, parameters.Value, purpose)
		cut := len(sealed) - aead.Overhead()
		return azkeys.KeyOperationResult{
			KID:               keyID(name, v.version),
			Result:            sealed[:cut],
			IV:                nonce,
			AuthenticationTag: sealed[cut:],
		}, nil
	}
	return azkeys.KeyOperationResult{
		KID:    keyID(name, v.version),
		Result: aead.Seal(nonce, nonce, parameters.Value, purpose),
	}, nil
}

func (f *FakeAzureKeysClient) open(ctx context.Context, method, name, version string, parameters azkeys.KeyOperationParameters, purpose []byte) (azkeys.KeyOperationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, method, name); err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	if parameters.Algorithm == nil {
		return azkeys.KeyOperationResult{}, newResponseError(http.StatusBadRequest, "BadParameter", "Algorithm is required")
	}
	v, err := f.version(name, version)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	aead, err := newAEAD(v.material)
	if err != nil {
		return azkeys.KeyOperationResult{}, err
	}
	if separateIV(*parameters.Algorithm) {
		if len(parameters.IV) != aead.NonceSize() || len(parameters.AuthenticationTag) != aead.Overhead() {
			return azkeys.KeyOperationResult{}, newResponseError(http.StatusBadRequest, "BadParameter", "IV and authentication tag are required")
		}
		sealed := append(append([]byte{}, parameters.Value...), parameters.AuthenticationTag...)
		plain, err := aead.Open(nil, parameters.IV, sealed, purpose)
		if err != nil {
			return azkeys.KeyOperationResult{}, newResponseError(http.StatusBadRequest, "BadParameter", "Decryption failed")
		}
		return azkeys.KeyOperationResult{KID: keyID(name, v.version), Result: plain}, nil
	}
	data := parameters.Value
	if len(data) < aead.NonceSize() {
		return azkeys.KeyOperationResult{}, newResponseError(http.StatusBadRequest, "BadParameter", "Ciphertext is too short")
	}
	plain, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], purpose)
	if err != nil {
		return azkeys.KeyOperationResult{}, newResponseError(http.StatusBadRequest, "BadParameter", "Decryption failed")
	}
	return azkeys.KeyOperationResult{KID: keyID(name, v.version), Result: plain}, nil
}

// separateIV reports whether the algorithm returns its IV and tag outside the
// ciphertext, as the AES-GCM algorithms do on Managed HSM.
func separateIV(alg azkeys.EncryptionAlgorithm) bool {
	return strings.HasSuffix(string(alg), "GCM")
}

func newAEAD(material []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func mac(material []byte, alg string, data []byte) []byte {
	h := hmac.New(sha256.New, material)
	h.Write([]byte(alg))
	h.Write(data)
	return h.Sum(nil)
}

// AzureKeyNotFoundError creates a service "key not found" error
func AzureKeyNotFoundError(keyName string) error {
	return newResponseError(http.StatusNotFound, "KeyNotFound",
		fmt.Sprintf("A key with (name/id) %s was not found in this key vault.", keyName))
}
