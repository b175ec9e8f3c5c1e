package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvault/tests/fakes"
)

func TestDoctorHealthy(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	out, err := execute(NewDoctorCommand(env.app), "")
	require.NoError(t, err)

	assert.Contains(t, out, "CHECK")
	assert.Contains(t, out, "https://test-vault.vault.azure.net/")
	assert.NotContains(t, out, "✗")
	assert.Contains(t, env.logs.String(), "All checks passed")
}

func TestDoctorReportsForbiddenList(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.secrets.ListError = fakes.AzureForbiddenError("list permission missing")

	out, err := execute(NewDoctorCommand(env.app), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 checks failed")
	assert.Contains(t, out, "✗ error")
	assert.Contains(t, out, "access policies")
}

func TestDoctorReportsThrottlingAsTransient(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.keys.ListError = fakes.AzureThrottledError()

	out, err := execute(NewDoctorCommand(env.app), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 checks failed")
	assert.Contains(t, out, "✗ transient")
	assert.NotContains(t, out, "✗ error")
}

func TestDoctorInvalidConfig(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.app.Config.Path = writeFile(t, "version: 2\n")

	out, err := execute(NewDoctorCommand(env.app), "")
	require.Error(t, err)
	assert.Contains(t, out, "configuration")
	assert.Contains(t, out, "✗ error")
}
