package keyvault

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

// ErrorKind is the classification of a failed vault call.
type ErrorKind int

const (
	// KindNone is returned for a nil error.
	KindNone ErrorKind = iota
	// KindUnclassified covers every failure callers must not absorb.
	KindUnclassified
	// KindNotFound means the named secret or key (or its deleted copy) does not exist.
	KindNotFound
	// KindNotYetDeleted means a purge was attempted on an object that is still live.
	KindNotYetDeleted
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindNotYetDeleted:
		return "not_yet_deleted"
	default:
		return "unclassified"
	}
}

// notYetDeletedMarker appears in the service message when a live object is purged.
const notYetDeletedMarker = "must be deleted before it can be purged"

// Resource names used in NotFoundError.
const (
	ResourceSecret = "secret"
	ResourceKey    = "key"
)

// Sentinel errors for errors.Is checks.
var (
	ErrSecretNotFound  = errors.New("secret not found")
	ErrKeyNotFound     = errors.New("key not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDeleteTimeout   = errors.New("timed out waiting for delete to complete")
)

// NotFoundError reports that a named secret or key does not exist in the vault.
type NotFoundError struct {
	Resource string // ResourceSecret or ResourceKey
	Name     string
	Message  string // optional; replaces the default message
	Err      error  // underlying service error, if any
}

// NewSecretNotFoundError returns a NotFoundError for a secret.
func NewSecretNotFoundError(name string, cause error) *NotFoundError {
	return &NotFoundError{Resource: ResourceSecret, Name: name, Err: cause}
}

// NewKeyNotFoundError returns a NotFoundError for a key.
func NewKeyNotFoundError(name string, cause error) *NotFoundError {
	return &NotFoundError{Resource: ResourceKey, Name: name, Err: cause}
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	resource := e.Resource
	if resource == "" {
		resource = "object"
	}
	if e.Name == "" {
		return fmt.Sprintf("%s not found", resource)
	}
	return fmt.Sprintf("%s %q not found", resource, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// Is matches ErrSecretNotFound or ErrKeyNotFound depending on Resource.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrSecretNotFound:
		return e.Resource == ResourceSecret
	case ErrKeyNotFound:
		return e.Resource == ResourceKey
	}
	return false
}

// ArgumentError is returned before any remote call when an argument is invalid.
type ArgumentError struct {
	Param   string
	Message string
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return "invalid argument: " + e.Message
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Param, e.Message)
}

// Is matches ErrInvalidArgument.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func requireName(param, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ArgumentError{Param: param, Message: "must not be empty"}
	}
	return nil
}

// Classify inspects err and reports which condition it represents.
// Only *azcore.ResponseError values and NotFoundError are classified;
// anything else is KindUnclassified.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return KindNotFound
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return KindUnclassified
	}

	switch respErr.StatusCode {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(responseMessage(respErr)), notYetDeletedMarker) {
			return KindNotYetDeleted
		}
	}
	return KindUnclassified
}

// IsNotFound reports whether err classifies as KindNotFound.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}

// IsNotYetDeleted reports whether err classifies as KindNotYetDeleted.
func IsNotYetDeleted(err error) bool {
	return Classify(err) == KindNotYetDeleted
}

// StatusCode returns the HTTP status of the service error in err's chain, or 0.
func StatusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// responseMessage returns the error code followed by the response body.
// runtime.Payload buffers the body so it can still be read by the caller.
func responseMessage(respErr *azcore.ResponseError) string {
	msg := respErr.ErrorCode
	if respErr.RawResponse != nil && respErr.RawResponse.Body != nil {
		if body, err := runtime.Payload(respErr.RawResponse); err == nil {
			msg += " " + string(body)
		}
	}
	return msg
}

// translateNotFound converts a 404 from the service into a NotFoundError and
// returns every other error unchanged.
func translateNotFound(resource, name string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: resource, Name: name, Err: err}
	}
	return err
}
