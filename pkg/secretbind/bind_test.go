package secretbind_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/kvault/pkg/keyvault"
	"github.com/systmms/kvault/pkg/secretbind"
	"github.com/systmms/kvault/tests/fakes"
)

// recordingSource serves values from a map and records each request.
type recordingSource struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	calls  [][]string
	modes  []keyvault.FetchMode
}

func (s *recordingSource) GetValuesIfExists(_ context.Context, names []string, mode keyvault.FetchMode) (map[string]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, names)
	s.modes = append(s.modes, mode)
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]*string, len(names))
	for _, name := range names {
		if v, ok := s.values[name]; ok {
			out[name] = &v
		} else {
			out[name] = nil
		}
	}
	return out, nil
}

type typedSettings struct {
	Host      string
	Port      int
	Debug     bool
	Ratio     float64
	Timeout   time.Duration
	Expires   time.Time
	Hosts     []string
	Ports     []int
	Addr      net.IP
	Optional  *string
	Missing   string
	Untouched string `keyvault:"-"`
}

func TestDeserializeCoercesTypes(t *testing.T) {
	t.Parallel()

	src := &recordingSource{values: map[string]string{
		"Host":     "db.internal",
		"Port":     "5432",
		"Debug":    "true",
		"Ratio":    "0.25",
		"Timeout":  "1m30s",
		"Expires":  "2026-01-02T03:04:05Z",
		"Hosts":    "a,b,c",
		"Ports":    "80,443",
		"Addr":     "10.0.0.1",
		"Optional": "set",
	}}

	got, err := secretbind.Deserialize[typedSettings](context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", got.Host)
	assert.Equal(t, 5432, got.Port)
	assert.True(t, got.Debug)
	assert.InDelta(t, 0.25, got.Ratio, 1e-9)
	assert.Equal(t, 90*time.Second, got.Timeout)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got.Expires.UTC())
	assert.Equal(t, []string{"a", "b", "c"}, got.Hosts)
	assert.Equal(t, []int{80, 443}, got.Ports)
	assert.Equal(t, "10.0.0.1", got.Addr.String())
	require.NotNil(t, got.Optional)
	assert.Equal(t, "set", *got.Optional)
	assert.Empty(t, got.Missing)
	assert.Empty(t, got.Untouched)

	require.Len(t, src.calls, 1)
	assert.Equal(t, []keyvault.FetchMode{keyvault.FetchConcurrent}, src.modes)
	assert.NotContains(t, src.calls[0], "Untouched")
}

func TestDeserializeSplitsLists(t *testing.T) {
	t.Parallel()

	type lists struct {
		Names   []string
		Ports   []int
		Weights []float64
		Empty   []int
		Raw     []byte
	}

	src := &recordingSource{values: map[string]string{
		"Names":   "a, b ,c",
		"Ports":   "8080, 8081",
		"Weights": "0.5,1.5",
		"Empty":   "",
		"Raw":     "x,y",
	}}

	got, err := secretbind.Deserialize[lists](context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got.Names)
	assert.Equal(t, []int{8080, 8081}, got.Ports)
	assert.Equal(t, []float64{0.5, 1.5}, got.Weights)
	assert.Empty(t, got.Empty)
	assert.Equal(t, []byte("x,y"), got.Raw)
}

func TestDeserializeWithOptions(t *testing.T) {
	t.Parallel()

	type dbSettings struct {
		Host     string
		Password string `keyvault:"Shared-Password"`
	}

	src := &recordingSource{values: map[string]string{
		"Db--Host":        "db.internal",
		"Shared-Password": "hunter2",
		"Db--Password":    "wrong",
	}}

	got, err := secretbind.DeserializeWithOptions[dbSettings](context.Background(), src,
		&secretbind.Options{Prefix: secretbind.SectionPrefix("Db")})
	require.NoError(t, err)
	assert.Equal(t, "db.internal", got.Host)
	assert.Equal(t, "hunter2", got.Password)
}

func TestDeserializeWithoutFieldsSkipsRemoteCall(t *testing.T) {
	t.Parallel()

	type nothing struct {
		hidden  string
		Ignored string `keyvault:"-"`
	}

	src := &recordingSource{}
	got, err := secretbind.Deserialize[nothing](context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, src.calls)

	// no fields means no source is needed either
	got, err = secretbind.Deserialize[nothing](context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeserializeErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	type settings struct {
		Port int
	}

	t.Run("nil_options", func(t *testing.T) {
		t.Parallel()
		src := &recordingSource{}
		_, err := secretbind.DeserializeWithOptions[settings](ctx, src, nil)
		assert.ErrorIs(t, err, keyvault.ErrInvalidArgument)
		assert.Empty(t, src.calls)
	})

	t.Run("not_a_struct", func(t *testing.T) {
		t.Parallel()
		_, err := secretbind.Deserialize[int](ctx, &recordingSource{})
		assert.ErrorIs(t, err, keyvault.ErrInvalidArgument)
	})

	t.Run("pointer_type", func(t *testing.T) {
		t.Parallel()
		src := &recordingSource{values: map[string]string{"Port": "80"}}
		_, err := secretbind.Deserialize[*settings](ctx, src)
		assert.ErrorIs(t, err, keyvault.ErrInvalidArgument)
		assert.Empty(t, src.calls)
	})

	t.Run("source_failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		_, err := secretbind.Deserialize[settings](ctx, &recordingSource{err: boom})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("conversion_failure_hides_value", func(t *testing.T) {
		t.Parallel()
		src := &recordingSource{values: map[string]string{"Port": "s3cr3t-value"}}
		_, err := secretbind.Deserialize[settings](ctx, src)
		require.Error(t, err)

		var fieldErr *secretbind.FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "Port", fieldErr.Field)
		assert.Equal(t, "Port", fieldErr.Secret)
		assert.NotContains(t, err.Error(), "s3cr3t-value")
		assert.NotNil(t, errors.Unwrap(err))
	})
}

func TestDeserializeFromSecretClient(t *testing.T) {
	t.Parallel()

	type appSettings struct {
		ConnectionString string `keyvault:"Db--Conn"`
		MaxConns         int
		Feature          bool
	}

	fake := fakes.NewFakeAzureSecretsClient()
	fake.AddSecretString("Db--Conn", "Server=db;")
	fake.AddSecretString("App--MaxConns", "25")

	client, err := keyvault.NewSecretClient(keyvault.Config{VaultName: "test-vault"}, keyvault.WithSecretsAPI(fake))
	require.NoError(t, err)

	got, err := secretbind.DeserializeWithOptions[appSettings](context.Background(), client,
		&secretbind.Options{Prefix: "App--"})
	require.NoError(t, err)
	assert.Equal(t, "Server=db;", got.ConnectionString)
	assert.Equal(t, 25, got.MaxConns)
	assert.False(t, got.Feature)
	assert.Equal(t, 3, fake.Calls("GetSecret"))
}
