package commands

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/systmms/kvault/internal/config"
	"github.com/systmms/kvault/internal/logging"
	"github.com/systmms/kvault/tests/fakes"
)

type testEnv struct {
	app     *App
	secrets *fakes.FakeAzureSecretsClient
	keys    *fakes.FakeAzureKeysClient
	keyring *fakes.FakeKeyring
	logs    *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logs := &bytes.Buffer{}
	cfg := &config.Config{
		Path:   filepath.Join(t.TempDir(), "kvault.yaml"),
		Logger: logging.NewWithWriter(logs, false, true),
		Definition: &config.Definition{
			Version: 1,
			Delete: config.DeleteConfig{
				PollInterval: time.Millisecond,
				Timeout:      2 * time.Second,
			},
		},
	}

	env := &testEnv{
		secrets: fakes.NewFakeAzureSecretsClient(),
		keys:    fakes.NewFakeAzureKeysClient(),
		keyring: fakes.NewFakeKeyring(),
		logs:    logs,
	}
	env.app = &App{
		Config:     cfg,
		Vault:      "test-vault",
		Keyring:    env.keyring,
		Registry:   prometheus.NewRegistry(),
		secretsAPI: env.secrets,
		keysAPI:    env.keys,
	}
	return env
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
