package keyvault

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"golang.org/x/sync/errgroup"
)

// SectionSeparator joins a section name and the rest of a secret name.
// Key Vault names only allow alphanumerics and dashes, so "--" stands in
// for the ":" used by hierarchical configuration keys.
const SectionSeparator = "--"

// SecretsAPI is the subset of *azsecrets.Client used by SecretClient.
// Tests substitute an in-memory implementation.
type SecretsAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	GetDeletedSecret(ctx context.Context, name string, options *azsecrets.GetDeletedSecretOptions) (azsecrets.GetDeletedSecretResponse, error)
	PurgeDeletedSecret(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error)
	RecoverDeletedSecret(ctx context.Context, name string, options *azsecrets.RecoverDeletedSecretOptions) (azsecrets.RecoverDeletedSecretResponse, error)
	NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
	NewListDeletedSecretPropertiesPager(options *azsecrets.ListDeletedSecretPropertiesOptions) *runtime.Pager[azsecrets.ListDeletedSecretPropertiesResponse]
}

var _ SecretsAPI = (*azsecrets.Client)(nil)

// FetchMode selects how GetValuesIfExists issues its remote calls.
type FetchMode int

const (
	// FetchConcurrent issues every get at once and waits for all of them.
	FetchConcurrent FetchMode = iota
	// FetchSequential awaits each get before issuing the next.
	FetchSequential
)

func (m FetchMode) String() string {
	switch m {
	case FetchConcurrent:
		return "concurrent"
	case FetchSequential:
		return "sequential"
	default:
		return fmt.Sprintf("FetchMode(%d)", int(m))
	}
}

// SecretClient wraps the vault's secret API for one endpoint and credential.
// It is safe for concurrent use.
type SecretClient struct {
	api      SecretsAPI
	vaultURL string
	cfg      Config
}

// SecretClientOption customizes a SecretClient.
type SecretClientOption func(*SecretClient)

// WithSecretsAPI replaces the SDK client (for testing).
func WithSecretsAPI(api SecretsAPI) SecretClientOption {
	return func(c *SecretClient) {
		c.api = api
	}
}

// NewSecretClient creates a SecretClient for the vault described by cfg.
func NewSecretClient(cfg Config, opts ...SecretClientOption) (*SecretClient, error) {
	vaultURL, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	c := &SecretClient{
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
		var clientOpts *azsecrets.ClientOptions
		if cfg.ClientOptions != nil {
			clientOpts = &azsecrets.ClientOptions{ClientOptions: *cfg.ClientOptions}
		}
		client, err := azsecrets.NewClient(vaultURL, cred, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault secrets client: %w", err)
		}
		c.api = client
	}

	return c, nil
}

// VaultURL returns the endpoint this client talks to.
func (c *SecretClient) VaultURL() string {
	return c.vaultURL
}

// SectionPrefix returns section followed by SectionSeparator, without
// doubling a separator the caller already supplied.
func SectionPrefix(section string) string {
	if strings.HasSuffix(section, SectionSeparator) {
		return section
	}
	return section + SectionSeparator
}

// Exists reports whether a current version of the secret exists.
func (c *SecretClient) Exists(ctx context.Context, name string) (bool, error) {
	s, err := c.GetIfExists(ctx, name)
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

// Get returns the current version of a secret. A missing secret yields a
// *NotFoundError matching ErrSecretNotFound.
func (c *SecretClient) Get(ctx context.Context, name string) (secret azsecrets.Secret, err error) {
	if err := requireName("name", name); err != nil {
		return azsecrets.Secret{}, err
	}
	defer track(c.cfg, ResourceSecret, "get", name)(&err)

	resp, err := c.api.GetSecret(ctx, name, "", nil)
	if err != nil {
		return azsecrets.Secret{}, translateNotFound(ResourceSecret, name, err)
	}
	return resp.Secret, nil
}

// GetIfExists returns the current version of a secret, or nil if it does not exist.
func (c *SecretClient) GetIfExists(ctx context.Context, name string) (*azsecrets.Secret, error) {
	s, err := c.Get(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetValue returns the current value of a secret.
func (c *SecretClient) GetValue(ctx context.Context, name string) (string, error) {
	s, err := c.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if s.Value == nil {
		return "", nil
	}
	return *s.Value, nil
}

// GetValueIfExists returns the current value of a secret, or nil if it does not exist.
func (c *SecretClient) GetValueIfExists(ctx context.Context, name string) (*string, error) {
	s, err := c.GetIfExists(ctx, name)
	if err != nil || s == nil {
		return nil, err
	}
	value := ""
	if s.Value != nil {
		value = *s.Value
	}
	return &value, nil
}

// GetValuesIfExists fetches the current value of each distinct name. Missing
// secrets map to nil. A nil names slice is an argument error; an empty one
// yields an empty map without contacting the vault.
func (c *SecretClient) GetValuesIfExists(ctx context.Context, names []string, mode FetchMode) (map[string]*string, error) {
	if names == nil {
		return nil, &ArgumentError{Param: "names", Message: "must not be nil"}
	}

	distinct := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := requireName("names", name); err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		distinct = append(distinct, name)
	}

	values := make([]*string, len(distinct))
	switch mode {
	case FetchSequential:
		for i, name := range distinct {
			v, err := c.GetValueIfExists(ctx, name)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
	case FetchConcurrent:
		var g errgroup.Group
		for i, name := range distinct {
			g.Go(func() error {
				v, err := c.GetValueIfExists(ctx, name)
				values[i] = v
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	default:
		return nil, &ArgumentError{Param: "mode", Message: fmt.Sprintf("unknown fetch mode %s", mode)}
	}

	result := make(map[string]*string, len(distinct))
	for i, name := range distinct {
		result[name] = values[i]
	}
	return result, nil
}

// GetAll returns the current version of every enabled secret in the vault.
func (c *SecretClient) GetAll(ctx context.Context) ([]azsecrets.Secret, error) {
	names, err := c.enabledNames(ctx, func(string) bool { return true })
	if err != nil {
		return nil, err
	}
	return c.getMany(ctx, names)
}

// GetSection returns the enabled secrets whose names start with
// section + "--". Matching is case-sensitive.
func (c *SecretClient) GetSection(ctx context.Context, section string) ([]azsecrets.Secret, error) {
	if err := requireName("section", section); err != nil {
		return nil, err
	}
	prefix := SectionPrefix(section)

	names, err := c.enabledNames(ctx, func(name string) bool {
		return strings.HasPrefix(name, prefix)
	})
	if err != nil {
		return nil, err
	}
	return c.getMany(ctx, names)
}

// enabledNames lists the secrets that match keep. Disabled secrets are
// skipped since the service refuses to return their values.
func (c *SecretClient) enabledNames(ctx context.Context, keep func(name string) bool) ([]string, error) {
	props, err := c.listProperties(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, p := range props {
		if p.Attributes != nil && p.Attributes.Enabled != nil && !*p.Attributes.Enabled {
			continue
		}
		if name := p.ID.Name(); keep(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// getMany fetches names concurrently, skipping any that vanished since listing.
func (c *SecretClient) getMany(ctx context.Context, names []string) ([]azsecrets.Secret, error) {
	found := make([]*azsecrets.Secret, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			s, err := c.GetIfExists(ctx, name)
			found[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	secrets := make([]azsecrets.Secret, 0, len(found))
	for _, s := range found {
		if s != nil {
			secrets = append(secrets, *s)
		}
	}
	return secrets, nil
}

// SetValue writes value as the new current version of the secret, creating
// the secret if needed.
func (c *SecretClient) SetValue(ctx context.Context, name, value string) (secret azsecrets.Secret, err error) {
	if err := requireName("name", name); err != nil {
		return azsecrets.Secret{}, err
	}
	defer track(c.cfg, ResourceSecret, "set", name)(&err)

	resp, err := c.api.SetSecret(ctx, name, azsecrets.SetSecretParameters{Value: &value}, nil)
	if err != nil {
		return azsecrets.Secret{}, err
	}
	return resp.Secret, nil
}

// SafeSetValue writes value only when the secret is missing or its current
// value differs, and reports whether a write happened. The read and the
// write are separate calls, so concurrent writers can race.
func (c *SecretClient) SafeSetValue(ctx context.Context, name, value string) (bool, error) {
	current, err := c.GetValueIfExists(ctx, name)
	if err != nil {
		return false, err
	}
	if current != nil && *current == value {
		return false, nil
	}
	if _, err := c.SetValue(ctx, name, value); err != nil {
		return false, err
	}
	return true, nil
}

// Delete soft-deletes a secret. With wait set, it blocks until the deleted
// copy is visible. A missing secret yields a *NotFoundError.
func (c *SecretClient) Delete(ctx context.Context, name string, wait bool) (deleted azsecrets.DeletedSecret, err error) {
	if err := requireName("name", name); err != nil {
		return azsecrets.DeletedSecret{}, err
	}

	deleted, err = c.deleteOnce(ctx, name)
	if err != nil {
		return azsecrets.DeletedSecret{}, err
	}

	// A nil RecoveryID means the vault has soft-delete disabled; the secret
	// is already gone and there is nothing to wait for.
	if wait && deleted.RecoveryID != nil {
		err = waitForDeletion(ctx, c.cfg, ResourceSecret, name, func(ctx context.Context) error {
			_, err := c.api.GetDeletedSecret(ctx, name, nil)
			return err
		})
		if err != nil {
			return azsecrets.DeletedSecret{}, err
		}
	}
	return deleted, nil
}

func (c *SecretClient) deleteOnce(ctx context.Context, name string) (deleted azsecrets.DeletedSecret, err error) {
	defer track(c.cfg, ResourceSecret, "delete", name)(&err)

	resp, err := c.api.DeleteSecret(ctx, name, nil)
	if err != nil {
		return azsecrets.DeletedSecret{}, translateNotFound(ResourceSecret, name, err)
	}
	return resp.DeletedSecret, nil
}

// DeleteIfExists is Delete that reports false instead of failing for a missing secret.
func (c *SecretClient) DeleteIfExists(ctx context.Context, name string, wait bool) (bool, error) {
	if _, err := c.Delete(ctx, name, wait); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteAll soft-deletes every secret currently listed. Secrets removed by
// someone else in the meantime are ignored; any other failure is returned.
func (c *SecretClient) DeleteAll(ctx context.Context, wait bool) error {
	names, err := c.ListNames(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, name := range names {
		g.Go(func() error {
			_, err := c.DeleteIfExists(ctx, name, wait)
			return err
		})
	}
	return g.Wait()
}

// DeleteAndPurge deletes a secret, waits for the delete to complete, then purges it.
func (c *SecretClient) DeleteAndPurge(ctx context.Context, name string) error {
	if _, err := c.Delete(ctx, name, true); err != nil {
		return err
	}
	return c.Purge(ctx, name)
}

// GetDeleted returns the soft-deleted copy of a secret.
func (c *SecretClient) GetDeleted(ctx context.Context, name string) (deleted azsecrets.DeletedSecret, err error) {
	if err := requireName("name", name); err != nil {
		return azsecrets.DeletedSecret{}, err
	}
	defer track(c.cfg, ResourceSecret, "get_deleted", name)(&err)

	resp, err := c.api.GetDeletedSecret(ctx, name, nil)
	if err != nil {
		return azsecrets.DeletedSecret{}, translateNotFound(ResourceSecret, name, err)
	}
	return resp.DeletedSecret, nil
}

// GetDeletedIfExists returns the soft-deleted copy of a secret, or nil.
func (c *SecretClient) GetDeletedIfExists(ctx context.Context, name string) (*azsecrets.DeletedSecret, error) {
	d, err := c.GetDeleted(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// IsDeleted reports whether a soft-deleted copy of the secret exists.
func (c *SecretClient) IsDeleted(ctx context.Context, name string) (bool, error) {
	d, err := c.GetDeletedIfExists(ctx, name)
	if err != nil {
		return false, err
	}
	return d != nil, nil
}

// Purge permanently erases a soft-deleted secret. A missing deleted copy
// yields a *NotFoundError. Purging a live secret returns the service error
// unchanged; it classifies as KindNotYetDeleted.
func (c *SecretClient) Purge(ctx context.Context, name string) (err error) {
	if err := requireName("name", name); err != nil {
		return err
	}
	defer track(c.cfg, ResourceSecret, "purge", name)(&err)

	if _, err := c.api.PurgeDeletedSecret(ctx, name, nil); err != nil {
		return translateNotFound(ResourceSecret, name, err)
	}
	return nil
}

// PurgeIfDeleted purges the secret only if it is currently soft-deleted and
// reports whether a purge happened.
func (c *SecretClient) PurgeIfDeleted(ctx context.Context, name string) (bool, error) {
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

// PurgeAllDeleted purges every soft-deleted secret in parallel.
func (c *SecretClient) PurgeAllDeleted(ctx context.Context) error {
	names, err := c.ListDeletedNames(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, name := range names {
		g.Go(func() error {
			if err := c.Purge(ctx, name); err != nil && !IsNotFound(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Recover restores a soft-deleted secret.
func (c *SecretClient) Recover(ctx context.Context, name string) (secret azsecrets.Secret, err error) {
	if err := requireName("name", name); err != nil {
		return azsecrets.Secret{}, err
	}
	defer track(c.cfg, ResourceSecret, "recover", name)(&err)

	resp, err := c.api.RecoverDeletedSecret(ctx, name, nil)
	if err != nil {
		return azsecrets.Secret{}, translateNotFound(ResourceSecret, name, err)
	}
	return resp.Secret, nil
}

// ListNames returns the names of all current secrets.
func (c *SecretClient) ListNames(ctx context.Context) ([]string, error) {
	props, err := c.listProperties(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.ID.Name())
	}
	return names, nil
}

func (c *SecretClient) listProperties(ctx context.Context) (props []*azsecrets.SecretProperties, err error) {
	defer track(c.cfg, ResourceSecret, "list", "")(&err)

	pager := c.api.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Value {
			if p != nil && p.ID != nil {
				props = append(props, p)
			}
		}
	}
	return props, nil
}

// ListDeletedNames returns the names of all soft-deleted secrets.
func (c *SecretClient) ListDeletedNames(ctx context.Context) (names []string, err error) {
	defer track(c.cfg, ResourceSecret, "list_deleted", "")(&err)

	pager := c.api.NewListDeletedSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Value {
			if p != nil && p.ID != nil {
				names = append(names, p.ID.Name())
			}
		}
	}
	return names, nil
}
