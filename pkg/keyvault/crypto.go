package keyvault

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// CryptoAPI is the subset of *azkeys.Client that performs key operations.
type CryptoAPI interface {
	Encrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.EncryptOptions) (azkeys.EncryptResponse, error)
	Decrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.DecryptOptions) (azkeys.DecryptResponse, error)
	Sign(ctx context.Context, name string, version string, parameters azkeys.SignParameters, options *azkeys.SignOptions) (azkeys.SignResponse, error)
	Verify(ctx context.Context, name string, version string, parameters azkeys.VerifyParameters, options *azkeys.VerifyOptions) (azkeys.VerifyResponse, error)
	WrapKey(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error)
	UnwrapKey(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

// CryptoClient runs cryptographic operations against one specific key version.
// The key material never leaves the vault.
type CryptoClient struct {
	api     CryptoAPI
	cfg     Config
	name    string
	version string
}

// Name returns the key name.
func (c *CryptoClient) Name() string {
	return c.name
}

// Version returns the key version the client is bound to.
func (c *CryptoClient) Version() string {
	return c.version
}

// Encrypt encrypts plaintext with the key. The result carries the
// ciphertext plus any IV or authentication tag the algorithm produced.
func (c *CryptoClient) Encrypt(ctx context.Context, alg azkeys.EncryptionAlgorithm, plaintext []byte) (result azkeys.KeyOperationResult, err error) {
	defer track(c.cfg, ResourceKey, "encrypt", c.name)(&err)

	resp, err := c.api.Encrypt(ctx, c.name, c.version, azkeys.KeyOperationParameters{
		Algorithm: &alg,
		Value:     plaintext,
	}, nil)
	if err != nil {
		return azkeys.KeyOperationResult{}, translateNotFound(ResourceKey, c.name, err)
	}
	return resp.KeyOperationResult, nil
}

// Decrypt decrypts ciphertext produced by Encrypt. It sends no IV or
// authentication tag, so it suits the RSA algorithms; use DecryptResult for
// AES-GCM.
func (c *CryptoClient) Decrypt(ctx context.Context, alg azkeys.EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	return c.decrypt(ctx, azkeys.KeyOperationParameters{
		Algorithm: &alg,
		Value:     ciphertext,
	})
}

// DecryptResult decrypts the output of Encrypt, passing along the IV,
// authentication tag and additional data the algorithm produced.
func (c *CryptoClient) DecryptResult(ctx context.Context, alg azkeys.EncryptionAlgorithm, encrypted azkeys.KeyOperationResult) ([]byte, error) {
	return c.decrypt(ctx, azkeys.KeyOperationParameters{
		Algorithm:                   &alg,
		Value:                       encrypted.Result,
		IV:                          encrypted.IV,
		AuthenticationTag:           encrypted.AuthenticationTag,
		AdditionalAuthenticatedData: encrypted.AdditionalAuthenticatedData,
	})
}

func (c *CryptoClient) decrypt(ctx context.Context, params azkeys.KeyOperationParameters) (plaintext []byte, err error) {
	defer track(c.cfg, ResourceKey, "decrypt", c.name)(&err)

	resp, err := c.api.Decrypt(ctx, c.name, c.version, params, nil)
	if err != nil {
		return nil, translateNotFound(ResourceKey, c.name, err)
	}
	return resp.Result, nil
}

// Sign signs a precomputed digest.
func (c *CryptoClient) Sign(ctx context.Context, alg azkeys.SignatureAlgorithm, digest []byte) (result azkeys.KeyOperationResult, err error) {
	defer track(c.cfg, ResourceKey, "sign", c.name)(&err)

	resp, err := c.api.Sign(ctx, c.name, c.version, azkeys.SignParameters{
		Algorithm: &alg,
		Value:     digest,
	}, nil)
	if err != nil {
		return azkeys.KeyOperationResult{}, translateNotFound(ResourceKey, c.name, err)
	}
	return resp.KeyOperationResult, nil
}

// Verify reports whether signature is valid for digest. An invalid
// signature is not an error.
func (c *CryptoClient) Verify(ctx context.Context, alg azkeys.SignatureAlgorithm, digest, signature []byte) (valid bool, err error) {
	defer track(c.cfg, ResourceKey, "verify", c.name)(&err)

	resp, err := c.api.Verify(ctx, c.name, c.version, azkeys.VerifyParameters{
		Algorithm: &alg,
		Digest:    digest,
		Signature: signature,
	}, nil)
	if err != nil {
		return false, translateNotFound(ResourceKey, c.name, err)
	}
	return resp.Value != nil && *resp.Value, nil
}

// WrapKey encrypts a symmetric key with this key.
func (c *CryptoClient) WrapKey(ctx context.Context, alg azkeys.EncryptionAlgorithm, key []byte) (result azkeys.KeyOperationResult, err error) {
	defer track(c.cfg, ResourceKey, "wrap", c.name)(&err)

	resp, err := c.api.WrapKey(ctx, c.name, c.version, azkeys.KeyOperationParameters{
		Algorithm: &alg,
		Value:     key,
	}, nil)
	if err != nil {
		return azkeys.KeyOperationResult{}, translateNotFound(ResourceKey, c.name, err)
	}
	return resp.KeyOperationResult, nil
}

// UnwrapKey reverses WrapKey.
func (c *CryptoClient) UnwrapKey(ctx context.Context, alg azkeys.EncryptionAlgorithm, wrapped []byte) (key []byte, err error) {
	defer track(c.cfg, ResourceKey, "unwrap", c.name)(&err)

	resp, err := c.api.UnwrapKey(ctx, c.name, c.version, azkeys.KeyOperationParameters{
		Algorithm: &alg,
		Value:     wrapped,
	}, nil)
	if err != nil {
		return nil, translateNotFound(ResourceKey, c.name, err)
	}
	return resp.Result, nil
}

// textEncoding returns enc, or UTF-8 when enc is nil.
func textEncoding(enc encoding.Encoding) encoding.Encoding {
	if enc == nil {
		return unicode.UTF8
	}
	return enc
}

func encodeText(text string, enc encoding.Encoding) ([]byte, error) {
	b, err := textEncoding(enc).NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to encode text: %w", err)
	}
	return b, nil
}

func decodeText(data []byte, enc encoding.Encoding) (string, error) {
	b, err := textEncoding(enc).NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}
	return string(b), nil
}
