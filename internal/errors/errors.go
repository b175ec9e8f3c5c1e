package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/systmms/kvault/pkg/keyvault"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// VaultError turns an error from a vault operation into a UserError with a
// suggestion derived from the Azure response.
func VaultError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var argErr *keyvault.ArgumentError
	if errors.As(err, &argErr) {
		return UserError{Message: argErr.Error(), Err: err}
	}

	var nf *keyvault.NotFoundError
	if errors.As(err, &nf) {
		return UserError{
			Message:    nf.Error(),
			Suggestion: fmt.Sprintf("Names are case-sensitive. Run 'kvault %ss list' to see what exists", nf.Resource),
			Err:        err,
		}
	}

	return UserError{
		Message:    fmt.Sprintf("Key Vault error during %s", operation),
		Details:    errorDetails(err),
		Suggestion: vaultSuggestion(err),
		Err:        err,
	}
}

// errorDetails summarizes err on one line. azcore.ResponseError.Error spans
// many lines, so only its status and code are shown.
func errorDetails(err error) string {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		details := fmt.Sprintf("%d %s", respErr.StatusCode, http.StatusText(respErr.StatusCode))
		if respErr.ErrorCode != "" {
			details += " (" + respErr.ErrorCode + ")"
		}
		return details
	}
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return "authentication failed"
	}
	return err.Error()
}

// vaultSuggestion provides helpful suggestions based on Azure errors
func vaultSuggestion(err error) string {
	if keyvault.IsNotYetDeleted(err) {
		return "Delete it first, or use --if-deleted to skip objects that are still live"
	}
	if errors.Is(err, keyvault.ErrDeleteTimeout) {
		return "The delete was accepted but is still in progress. Increase delete.timeout in kvault.yaml or retry later"
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return "Check authentication: verify managed identity, service principal, or Azure CLI login ('az login')"
	}

	switch keyvault.StatusCode(err) {
	case http.StatusForbidden:
		return "Check Key Vault access policies or RBAC role assignments for this operation"
	case http.StatusUnauthorized:
		return "Check authentication: verify managed identity, service principal, or Azure CLI login ('az login')"
	case http.StatusNotFound:
		return "Verify the name exists in the Key Vault. Names are case-sensitive"
	case http.StatusConflict:
		return "The name is held by a soft-deleted object. Recover or purge it first"
	case http.StatusTooManyRequests:
		return "Request was throttled. Wait a moment and try again"
	}

	if strings.Contains(strings.ToLower(err.Error()), "no such host") {
		return "Check the vault name or URL and that the Key Vault exists"
	}
	return "Check Azure credentials, Key Vault URL, and access policies"
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch keyvault.StatusCode(err) {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	if errors.Is(err, keyvault.ErrDeleteTimeout) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttled",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	// Errors from the vault get Azure-specific guidance
	var respErr *azcore.ResponseError
	var nf *keyvault.NotFoundError
	if errors.As(err, &respErr) || errors.As(err, &nf) || errors.Is(err, keyvault.ErrDeleteTimeout) {
		return VaultError("request", err)
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "illegal base64") {
		return UserError{
			Message:    "Invalid base64 input",
			Suggestion: "Binary arguments (--data, --signature) use standard base64 encoding",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
