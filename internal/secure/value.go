package secure

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Reveal after Destroy.
var ErrDestroyed = errors.New("secure value has been destroyed")

// Value is a secret held in an encrypted enclave.
type Value struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewValue moves data into an enclave. data is wiped.
func NewValue(data []byte) *Value {
	v := &Value{size: len(data)}
	if len(data) > 0 {
		v.enclave = memguard.NewEnclave(data)
	}
	return v
}

// ReadValue reads r to EOF and seals the contents. A single trailing
// newline ("\n" or "\r\n") is dropped so `echo value | kvault ...` stores
// "value".
func ReadValue(r io.Reader) (*Value, error) {
	buf, err := memguard.NewBufferFromEntireReader(r)
	if buf == nil {
		buf = memguard.NewBuffer(0)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		buf.Destroy()
		return nil, fmt.Errorf("failed to read secret value: %w", err)
	}
	defer buf.Destroy()

	buf.Melt()
	data := buf.Bytes()
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	return NewValue(data), nil
}

// Len returns the plaintext length in bytes.
func (v *Value) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.size
}

// Reveal returns a copy of the plaintext. The copy is ordinary heap memory
// and stays valid after the value is destroyed.
func (v *Value) Reveal() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed {
		return "", ErrDestroyed
	}
	if v.enclave == nil {
		return "", nil
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open secure value: %w", err)
	}
	defer locked.Destroy()
	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. It is safe to call more than once.
func (v *Value) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enclave = nil
	v.size = 0
	v.destroyed = true
}

// String implements fmt.Stringer without exposing the plaintext.
func (v *Value) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer without exposing the plaintext.
func (v *Value) GoString() string {
	return "[REDACTED]"
}
