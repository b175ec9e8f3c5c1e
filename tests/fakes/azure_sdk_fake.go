package fakes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeVaultURL is the endpoint reported in IDs produced by the fakes.
const FakeVaultURL = "https://test-vault.vault.azure.net/"

// FakeAzureSecretsClient is an in-memory stand-in for *azsecrets.Client.
//
// It keeps a version history per secret, moves deleted secrets into a
// separate recycle bin, and returns *azcore.ResponseError values shaped like
// the real service. It is safe for concurrent use.
//
// Example usage:
//
//	fake := fakes.NewFakeAzureSecretsClient()
//	fake.AddSecretString("Db--Password", "hunter2")
//	client, _ := keyvault.NewSecretClient(cfg, keyvault.WithSecretsAPI(fake))
type FakeAzureSecretsClient struct {
	// Errors maps secret names to an error returned by every call for that name.
	Errors map[string]error
	// ListError is returned by the list pagers.
	ListError error
	// GetSecretFunc overrides GetSecret when set.
	GetSecretFunc func(ctx context.Context, name string, version string) (azsecrets.GetSecretResponse, error)
	// SoftDeleteDisabled makes DeleteSecret remove secrets outright.
	SoftDeleteDisabled bool
	// DeletePendingPolls is how many GetDeletedSecret calls report 404 after
	// a delete before the deleted copy becomes visible.
	DeletePendingPolls int
	// PageSize is the number of items per list page. Default: 2.
	PageSize int

	mu      sync.Mutex
	live    map[string]*AzureSecretData
	deleted map[string]*AzureSecretData
	pending map[string]int
	calls   map[string]int
	seq     int
}

// AzureSecretData holds the versions of one fake secret, oldest first.
type AzureSecretData struct {
	Versions    []*AzureSecretVersion
	Tags        map[string]*string
	ContentType *string
	Enabled     bool
	DeletedDate *time.Time
}

// AzureSecretVersion holds version-specific data for a secret.
type AzureSecretVersion struct {
	Version    string
	Value      string
	Attributes *azsecrets.SecretAttributes
}

func (d *AzureSecretData) current() *AzureSecretVersion {
	return d.Versions[len(d.Versions)-1]
}

// NewFakeAzureSecretsClient creates an empty fake vault.
func NewFakeAzureSecretsClient() *FakeAzureSecretsClient {
	return &FakeAzureSecretsClient{
		Errors:  make(map[string]error),
		live:    make(map[string]*AzureSecretData),
		deleted: make(map[string]*AzureSecretData),
		pending: make(map[string]int),
		calls:   make(map[string]int),
	}
}

// AddSecretString adds a new version of a string secret.
func (f *FakeAzureSecretsClient) AddSecretString(name, value string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addVersionLocked(name, value)
}

// AddDisabledSecret adds a secret whose current version is disabled.
func (f *FakeAzureSecretsClient) AddDisabledSecret(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addVersionLocked(name, value)
	f.live[name].Enabled = false
	f.live[name].current().Attributes.Enabled = to.Ptr(false)
}

// AddDeletedSecret adds a secret that is already in the recycle bin.
func (f *FakeAzureSecretsClient) AddDeletedSecret(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addVersionLocked(name, value)
	now := time.Now()
	data := f.live[name]
	data.DeletedDate = &now
	f.deleted[name] = data
	delete(f.live, name)
}

// AddError configures the fake to return err for every call naming the secret.
func (f *FakeAzureSecretsClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Calls returns how many times method was invoked.
func (f *FakeAzureSecretsClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Value returns the current value of a live secret.
func (f *FakeAzureSecretsClient) Value(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.live[name]
	if !ok {
		return "", false
	}
	return data.current().Value, true
}

// VersionCount returns the number of versions of a live secret.
func (f *FakeAzureSecretsClient) VersionCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.live[name]; ok {
		return len(data.Versions)
	}
	return 0
}

// IsDeleted reports whether the secret sits in the recycle bin.
func (f *FakeAzureSecretsClient) IsDeleted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.deleted[name]
	return ok
}

func (f *FakeAzureSecretsClient) addVersionLocked(name, value string) string {
	f.seq++
	version := fmt.Sprintf("%032x", f.seq)
	now := time.Now()
	data, ok := f.live[name]
	if !ok {
		data = &AzureSecretData{Enabled: true}
		f.live[name] = data
	}
	data.Versions = append(data.Versions, &AzureSecretVersion{
		Version: version,
		Value:   value,
		Attributes: &azsecrets.SecretAttributes{
			Enabled:       to.Ptr(true),
			Created:       &now,
			Updated:       &now,
			RecoveryLevel: to.Ptr("Recoverable+Purgeable"),
		},
	})
	return version
}

// begin records a call and returns any configured error for name.
func (f *FakeAzureSecretsClient) begin(ctx context.Context, method, name string) error {
	f.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := f.Errors[name]; ok {
		return err
	}
	return nil
}

func secretID(name, version string) *azsecrets.ID {
	id := azsecrets.ID(fmt.Sprintf("%ssecrets/%s/%s", FakeVaultURL, name, version))
	return &id
}

func (d *AzureSecretData) secret(name string, v *AzureSecretVersion) azsecrets.Secret {
	value := v.Value
	return azsecrets.Secret{
		ID:          secretID(name, v.Version),
		Value:       &value,
		Attributes:  v.Attributes,
		Tags:        d.Tags,
		ContentType: d.ContentType,
	}
}

func (d *AzureSecretData) deletedSecret(name string, recoverable bool) azsecrets.DeletedSecret {
	cur := d.current()
	value := cur.Value
	ds := azsecrets.DeletedSecret{
		ID:          secretID(name, cur.Version),
		Value:       &value,
		Attributes:  cur.Attributes,
		Tags:        d.Tags,
		ContentType: d.ContentType,
		DeletedDate: d.DeletedDate,
	}
	if recoverable {
		ds.RecoveryID = to.Ptr(fmt.Sprintf("%sdeletedsecrets/%s", FakeVaultURL, name))
		purge := d.DeletedDate.Add(90 * 24 * time.Hour)
		ds.ScheduledPurgeDate = &purge
	}
	return ds
}

// GetSecret returns the requested version, or the latest when version is empty.
func (f *FakeAzureSecretsClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	if f.GetSecretFunc != nil {
		f.mu.Lock()
		f.calls["GetSecret"]++
		f.mu.Unlock()
		return f.GetSecretFunc(ctx, name, version)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "GetSecret", name); err != nil {
		return azsecrets.GetSecretResponse{}, err
	}

	data, ok := f.live[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}
	if version == "" {
		if !data.Enabled {
			return azsecrets.GetSecretResponse{}, AzureForbiddenError("Operation get is not allowed on a disabled secret.")
		}
		return azsecrets.GetSecretResponse{Secret: data.secret(name, data.current())}, nil
	}
	for _, v := range data.Versions {
		if v.Version == version {
			return azsecrets.GetSecretResponse{Secret: data.secret(name, v)}, nil
		}
	}
	return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
}

// SetSecret adds a new version, creating the secret if needed.
func (f *FakeAzureSecretsClient) SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "SetSecret", name); err != nil {
		return azsecrets.SetSecretResponse{}, err
	}
	if _, ok := f.deleted[name]; ok {
		return azsecrets.SetSecretResponse{}, newResponseError(http.StatusConflict, "Conflict",
			fmt.Sprintf("Secret %s is currently in a deleted but recoverable state, and its name cannot be reused; in this state, the secret can only be recovered or purged.", name))
	}
	if parameters.Value == nil {
		return azsecrets.SetSecretResponse{}, newResponseError(http.StatusBadRequest, "BadParameter", "Secret value is required")
	}

	f.addVersionLocked(name, *parameters.Value)
	data := f.live[name]
	if parameters.Tags != nil {
		data.Tags = parameters.Tags
	}
	if parameters.ContentType != nil {
		data.ContentType = parameters.ContentType
	}
	return azsecrets.SetSecretResponse{Secret: data.secret(name, data.current())}, nil
}

// DeleteSecret moves a live secret into the recycle bin.
func (f *FakeAzureSecretsClient) DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "DeleteSecret", name); err != nil {
		return azsecrets.DeleteSecretResponse{}, err
	}

	data, ok := f.live[name]
	if !ok {
		return azsecrets.DeleteSecretResponse{}, AzureNotFoundError(name)
	}
	delete(f.live, name)
	now := time.Now()
	data.DeletedDate = &now

	if f.SoftDeleteDisabled {
		return azsecrets.DeleteSecretResponse{DeletedSecret: data.deletedSecret(name, false)}, nil
	}
	f.deleted[name] = data
	f.pending[name] = f.DeletePendingPolls
	return azsecrets.DeleteSecretResponse{DeletedSecret: data.deletedSecret(name, true)}, nil
}

// GetDeletedSecret returns the recycle-bin copy of a secret.
func (f *FakeAzureSecretsClient) GetDeletedSecret(ctx context.Context, name string, options *azsecrets.GetDeletedSecretOptions) (azsecrets.GetDeletedSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "GetDeletedSecret", name); err != nil {
		return azsecrets.GetDeletedSecretResponse{}, err
	}

	data, ok := f.deleted[name]
	if !ok {
		return azsecrets.GetDeletedSecretResponse{}, AzureDeletedNotFoundError(name)
	}
	if f.pending[name] > 0 {
		f.pending[name]--
		return azsecrets.GetDeletedSecretResponse{}, AzureDeletedNotFoundError(name)
	}
	return azsecrets.GetDeletedSecretResponse{DeletedSecret: data.deletedSecret(name, true)}, nil
}

// PurgeDeletedSecret permanently removes a secret from the recycle bin.
func (f *FakeAzureSecretsClient) PurgeDeletedSecret(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "PurgeDeletedSecret", name); err != nil {
		return azsecrets.PurgeDeletedSecretResponse{}, err
	}

	if _, ok := f.deleted[name]; !ok {
		if _, live := f.live[name]; live {
			return azsecrets.PurgeDeletedSecretResponse{}, AzureNotYetDeletedError(name)
		}
		return azsecrets.PurgeDeletedSecretResponse{}, AzureDeletedNotFoundError(name)
	}
	delete(f.deleted, name)
	delete(f.pending, name)
	return azsecrets.PurgeDeletedSecretResponse{}, nil
}

// RecoverDeletedSecret moves a secret from the recycle bin back to live.
func (f *FakeAzureSecretsClient) RecoverDeletedSecret(ctx context.Context, name string, options *azsecrets.RecoverDeletedSecretOptions) (azsecrets.RecoverDeletedSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "RecoverDeletedSecret", name); err != nil {
		return azsecrets.RecoverDeletedSecretResponse{}, err
	}

	data, ok := f.deleted[name]
	if !ok {
		return azsecrets.RecoverDeletedSecretResponse{}, AzureDeletedNotFoundError(name)
	}
	delete(f.deleted, name)
	delete(f.pending, name)
	data.DeletedDate = nil
	f.live[name] = data
	return azsecrets.RecoverDeletedSecretResponse{Secret: data.secret(name, data.current())}, nil
}

// NewListSecretPropertiesPager lists live secrets in name order.
func (f *FakeAzureSecretsClient) NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse] {
	f.mu.Lock()
	f.calls["NewListSecretPropertiesPager"]++
	var items []*azsecrets.SecretProperties
	for _, name := range sortedNames(f.live) {
		data := f.live[name]
		cur := data.current()
		items = append(items, &azsecrets.SecretProperties{
			ID:          secretID(name, cur.Version),
			Attributes:  cur.Attributes,
			Tags:        data.Tags,
			ContentType: data.ContentType,
		})
	}
	listErr := f.ListError
	pages := chunk(items, f.pageSize())
	f.mu.Unlock()

	return runtime.NewPager(runtime.PagingHandler[azsecrets.ListSecretPropertiesResponse]{
		More: func(resp azsecrets.ListSecretPropertiesResponse) bool {
			return resp.NextLink != nil
		},
		Fetcher: func(ctx context.Context, cur *azsecrets.ListSecretPropertiesResponse) (azsecrets.ListSecretPropertiesResponse, error) {
			if listErr != nil {
				return azsecrets.ListSecretPropertiesResponse{}, listErr
			}
			idx := pageIndex(cur, func(r *azsecrets.ListSecretPropertiesResponse) *string { return r.NextLink })
			return azsecrets.ListSecretPropertiesResponse{
				SecretPropertiesListResult: azsecrets.SecretPropertiesListResult{
					Value:    pages[idx],
					NextLink: nextLink(idx, len(pages)),
				},
			}, nil
		},
	})
}

// NewListDeletedSecretPropertiesPager lists recycle-bin secrets in name order.
func (f *FakeAzureSecretsClient) NewListDeletedSecretPropertiesPager(options *azsecrets.ListDeletedSecretPropertiesOptions) *runtime.Pager[azsecrets.ListDeletedSecretPropertiesResponse] {
	f.mu.Lock()
	f.calls["NewListDeletedSecretPropertiesPager"]++
	var items []*azsecrets.DeletedSecretProperties
	for _, name := range sortedNames(f.deleted) {
		data := f.deleted[name]
		cur := data.current()
		items = append(items, &azsecrets.DeletedSecretProperties{
			ID:          secretID(name, cur.Version),
			Attributes:  cur.Attributes,
			DeletedDate: data.DeletedDate,
		})
	}
	listErr := f.ListError
	pages := chunk(items, f.pageSize())
	f.mu.Unlock()

	return runtime.NewPager(runtime.PagingHandler[azsecrets.ListDeletedSecretPropertiesResponse]{
		More: func(resp azsecrets.ListDeletedSecretPropertiesResponse) bool {
			return resp.NextLink != nil
		},
		Fetcher: func(ctx context.Context, cur *azsecrets.ListDeletedSecretPropertiesResponse) (azsecrets.ListDeletedSecretPropertiesResponse, error) {
			if listErr != nil {
				return azsecrets.ListDeletedSecretPropertiesResponse{}, listErr
			}
			idx := pageIndex(cur, func(r *azsecrets.ListDeletedSecretPropertiesResponse) *string { return r.NextLink })
			return azsecrets.ListDeletedSecretPropertiesResponse{
				DeletedSecretPropertiesListResult: azsecrets.DeletedSecretPropertiesListResult{
					Value:    pages[idx],
					NextLink: nextLink(idx, len(pages)),
				},
			}, nil
		},
	})
}

func (f *FakeAzureSecretsClient) pageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return 2
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// chunk splits items into pages; an empty list still yields one empty page.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return [][]T{{}}
	}
	var pages [][]T
	for len(items) > size {
		pages = append(pages, items[:size])
		items = items[size:]
	}
	return append(pages, items)
}

func pageIndex[T any](cur *T, link func(*T) *string) int {
	if cur == nil {
		return 0
	}
	idx, _ := strconv.Atoi(*link(cur))
	return idx
}

func nextLink(idx, pages int) *string {
	if idx+1 < pages {
		return to.Ptr(strconv.Itoa(idx + 1))
	}
	return nil
}

// newResponseError builds a service error with a JSON body like Key Vault returns.
func newResponseError(status int, code, message string) *azcore.ResponseError {
	body := fmt.Sprintf(`{"error":{"code":%q,"message":%q}}`, code, message)
	return &azcore.ResponseError{
		StatusCode: status,
		ErrorCode:  code,
		RawResponse: &http.Response{
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request: &http.Request{
				Method: http.MethodGet,
				URL:    &url.URL{Scheme: "https", Host: "test-vault.vault.azure.net", Path: "/"},
			},
		},
	}
}

// AzureNotFoundError creates a service "secret not found" error
func AzureNotFoundError(secretName string) error {
	return newResponseError(http.StatusNotFound, "SecretNotFound",
		fmt.Sprintf("A secret with (name/id) %s was not found in this key vault.", secretName))
}

// AzureDeletedNotFoundError creates a service "deleted secret not found" error
func AzureDeletedNotFoundError(secretName string) error {
	return newResponseError(http.StatusNotFound, "SecretNotFound",
		fmt.Sprintf("Deleted Secret not found: %s", secretName))
}

// AzureNotYetDeletedError creates the error returned when purging a live secret
func AzureNotYetDeletedError(secretName string) error {
	return newResponseError(http.StatusBadRequest, "BadParameter",
		fmt.Sprintf("Secret %s must be deleted before it can be purged.", secretName))
}

// AzureForbiddenError creates a service forbidden error
func AzureForbiddenError(message string) error {
	return newResponseError(http.StatusForbidden, "Forbidden", message)
}

// AzureUnauthorizedError creates a service unauthorized error
func AzureUnauthorizedError(message string) error {
	return newResponseError(http.StatusUnauthorized, "Unauthorized", message)
}

// AzureThrottledError creates a service throttled error
func AzureThrottledError() error {
	return newResponseError(http.StatusTooManyRequests, "Throttled", "Request was not processed because too many requests were received.")
}
