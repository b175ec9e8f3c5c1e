package fakes

import (
	"sync"

	"github.com/zalando/go-keyring"
)

// FakeKeyring is a test double for the OS keyring used to store service
// principal secrets.
type FakeKeyring struct {
	// Secrets is a map of service -> user -> value
	Secrets map[string]map[string]string

	// GetErr is returned by Get if set (overrides Secrets lookup)
	GetErr error

	// SetErr is returned by Set if set
	SetErr error

	mu sync.Mutex
}

// NewFakeKeyring creates an empty fake keyring
func NewFakeKeyring() *FakeKeyring {
	return &FakeKeyring{Secrets: make(map[string]map[string]string)}
}

// Get retrieves a secret, returning keyring.ErrNotFound when absent
func (f *FakeKeyring) Get(service, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return "", f.GetErr
	}
	if users, ok := f.Secrets[service]; ok {
		if value, ok := users[user]; ok {
			return value, nil
		}
	}
	return "", keyring.ErrNotFound
}

// Set stores a secret
func (f *FakeKeyring) Set(service, user, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	if f.Secrets == nil {
		f.Secrets = make(map[string]map[string]string)
	}
	if f.Secrets[service] == nil {
		f.Secrets[service] = make(map[string]string)
	}
	f.Secrets[service][user] = password
	return nil
}
