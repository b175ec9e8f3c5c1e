package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/internal/logging"
	"github.com/systmms/kvault/pkg/keyvault"
	"github.com/systmms/kvault/tests/fakes"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
	assert.Contains(t, errMsg, "💡")
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "vault.url",
		Value:      "my-vault.vault.azure.net",
		Message:    "Invalid URL format",
		Suggestion: "Use format: https://my-vault.vault.azure.net/",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "vault.url")
	assert.Contains(t, errMsg, "my-vault.vault.azure.net")
	assert.Contains(t, errMsg, "Invalid URL format")
	assert.Contains(t, errMsg, "https://my-vault.vault.azure.net/")
}

// TestVaultErrorSuggestions verifies Azure-specific suggestions
func TestVaultErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		err                error
		expectedMessage    string
		expectedSuggestion string
	}{
		{
			name:               "forbidden",
			err:                fakes.AzureForbiddenError("denied"),
			expectedMessage:    "Key Vault error during get",
			expectedSuggestion: "access policies",
		},
		{
			name:               "unauthorized",
			err:                fakes.AzureUnauthorizedError("expired"),
			expectedMessage:    "Key Vault error during get",
			expectedSuggestion: "az login",
		},
		{
			name:               "throttled",
			err:                fakes.AzureThrottledError(),
			expectedMessage:    "Key Vault error during get",
			expectedSuggestion: "throttled",
		},
		{
			name:               "raw_not_found",
			err:                fakes.AzureNotFoundError("db"),
			expectedMessage:    "Key Vault error during get",
			expectedSuggestion: "case-sensitive",
		},
		{
			name:               "not_yet_deleted",
			err:                fakes.AzureNotYetDeletedError("db"),
			expectedMessage:    "Key Vault error during get",
			expectedSuggestion: "--if-deleted",
		},
		{
			name:               "not_found_error",
			err:                keyvault.NewSecretNotFoundError("db", nil),
			expectedMessage:    `secret "db" not found`,
			expectedSuggestion: "kvault secrets list",
		},
		{
			name:               "delete_timeout",
			err:                fmt.Errorf("%w: secret", keyvault.ErrDeleteTimeout),
			expectedMessage:    "Key Vault error during get",
			expectedSuggestion: "delete.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := errors.VaultError("get", tt.err)
			userErr, ok := err.(errors.UserError)
			require.True(t, ok)
			assert.Contains(t, userErr.Message, tt.expectedMessage)
			assert.Contains(t, userErr.Suggestion, tt.expectedSuggestion)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

// TestVaultErrorDetailsAreOneLine verifies verbose SDK errors are condensed
func TestVaultErrorDetailsAreOneLine(t *testing.T) {
	t.Parallel()

	err := errors.VaultError("delete", fakes.AzureForbiddenError("denied")).(errors.UserError)
	assert.Equal(t, "403 Forbidden (Forbidden)", err.Details)
}

// TestVaultErrorArgument verifies argument errors pass through without suggestions
func TestVaultErrorArgument(t *testing.T) {
	t.Parallel()

	err := errors.VaultError("get", &keyvault.ArgumentError{Param: "name", Message: "must not be empty"})
	userErr := err.(errors.UserError)
	assert.Equal(t, "invalid argument name: must not be empty", userErr.Message)
	assert.Empty(t, userErr.Suggestion)
	assert.Nil(t, errors.VaultError("get", nil))
}

// TestIsRetryable verifies retryable error detection
func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "throttled_status", err: fakes.AzureThrottledError(), retryable: true},
		{name: "forbidden_status", err: fakes.AzureForbiddenError("denied"), retryable: false},
		{name: "delete_timeout", err: keyvault.ErrDeleteTimeout, retryable: true},
		{name: "connection_reset", err: fmt.Errorf("read: connection reset by peer"), retryable: true},
		{name: "plain", err: fmt.Errorf("invalid secret name"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, errors.IsRetryable(tt.err))
		})
	}
}

// TestSimplifyError verifies error simplification for common cases
func TestSimplifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		inputError    error
		expectedType  string
		expectedInMsg string
	}{
		{
			name:          "yaml_error",
			inputError:    fmt.Errorf("yaml: line 5: mapping values are not allowed"),
			expectedType:  "ConfigError",
			expectedInMsg: "Invalid YAML",
		},
		{
			name:          "base64_error",
			inputError:    fmt.Errorf("decode --data: %w", fmt.Errorf("illegal base64 data at input byte 4")),
			expectedType:  "UserError",
			expectedInMsg: "Invalid base64",
		},
		{
			name:          "permission_denied",
			inputError:    fmt.Errorf("permission denied"),
			expectedType:  "UserError",
			expectedInMsg: "Permission denied",
		},
		{
			name:          "file_not_found",
			inputError:    fmt.Errorf("no such file or directory"),
			expectedType:  "UserError",
			expectedInMsg: "not found",
		},
		{
			name:          "vault_error",
			inputError:    fmt.Errorf("list: %w", fakes.AzureForbiddenError("denied")),
			expectedType:  "UserError",
			expectedInMsg: "Key Vault error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			simplified := errors.SimplifyError(tt.inputError)
			assert.Contains(t, simplified.Error(), tt.expectedInMsg)

			switch tt.expectedType {
			case "ConfigError":
				_, ok := simplified.(errors.ConfigError)
				assert.True(t, ok, "Should be ConfigError type")
			case "UserError":
				_, ok := simplified.(errors.UserError)
				assert.True(t, ok, "Should be UserError type")
			}
		})
	}
}

// TestUserErrorUnwrap verifies error unwrapping works correctly
func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	baseErr := fmt.Errorf("base error")
	userErr := errors.UserError{
		Message: "wrapped error",
		Err:     baseErr,
	}

	assert.Equal(t, baseErr, userErr.Unwrap())
}

// TestNilErrorHandling verifies nil errors are handled gracefully
func TestNilErrorHandling(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsRetryable(nil))
	assert.Nil(t, errors.SimplifyError(nil))
}

// TestErrorDoesNotLeakSecrets verifies redacted values stay redacted through VaultError
func TestErrorDoesNotLeakSecrets(t *testing.T) {
	t.Parallel()

	secretValue := "chained-secret-password"
	baseErr := fmt.Errorf("set failed for value %s", logging.Secret(secretValue))

	errMsg := errors.VaultError("set", baseErr).Error()
	assert.Contains(t, errMsg, "[REDACTED]")
	assert.NotContains(t, errMsg, secretValue)
}
