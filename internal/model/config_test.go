package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
service:
  mode: timer
  verbose: true
  schedule:
    duration: PT30S
  foreground:
    command:
      path: /usr/bin/keepalive
      args: ["--quiet"]
worker:
  attempts: 5
  debounce: 250ms
  release_skipped: false
store:
  driver: pgx
  dsn: postgres://localhost/catalog
media:
  source: /var/spool/inbox
  upload:
    url: https://media.example.com
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.ServiceModeTimer, cfg.Service.Mode)
	require.True(t, cfg.Service.Verbose)
	require.NotNil(t, cfg.Service.Schedule)
	require.Equal(t, "PT30S", cfg.Service.Schedule.Duration)
	require.Equal(t, 5, cfg.Worker.Attempts)
	require.False(t, cfg.Worker.ReleaseSkipped)
	d, err := cfg.Worker.DebounceDuration()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)
	require.Equal(t, model.StoreDriverPostgres, cfg.Store.Driver)
	require.Equal(t, "postgres://localhost/catalog", cfg.Store.DSN)
	require.Equal(t, "/var/spool/inbox", cfg.Media.Source)
	require.Equal(t, "https://media.example.com", cfg.Media.Upload.URL)
	require.Empty(t, cfg.Media.Upload.Dir)
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
version: 0
service: {}
worker: {}
store: {}
media:
  source: inbox
  upload:
    dir: uploads
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
	require.Equal(t, 3, cfg.Worker.Attempts)
	require.Equal(t, "1s", cfg.Worker.Debounce)
	require.True(t, cfg.Worker.ReleaseSkipped)
	require.Equal(t, model.StoreDriverSQLite, cfg.Store.Driver)
	require.Equal(t, "productmedia.db", cfg.Store.DSN)
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		yml := `
version: 0
service: {}
worker: {}
store: {}
media:
  upload:
    dir: uploads
`
		_, err := model.LoadConfig(strings.NewReader(yml))
		require.Error(t, err)
		require.Contains(t, err.Error(), "media.source")
	})

	t.Run("unknown driver", func(t *testing.T) {
		yml := `
version: 0
service: {}
worker: {}
store:
  driver: mysql
media:
  source: inbox
`
		_, err := model.LoadConfig(strings.NewReader(yml))
		require.Error(t, err)
		require.Contains(t, err.Error(), "store.driver")
	})

	t.Run("zero attempts", func(t *testing.T) {
		yml := `
version: 0
service: {}
worker:
  attempts: 0
store: {}
media:
  source: inbox
`
		_, err := model.LoadConfig(strings.NewReader(yml))
		require.Error(t, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig(t.Context())
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
	require.Equal(t, 3, cfg.Worker.Attempts)
	d, err := cfg.Worker.DebounceDuration()
	require.NoError(t, err)
	require.Equal(t, time.Second, d)
}

func TestCueErrDetails(t *testing.T) {
	yml := `
version: 0
service: {}
worker: {}
store:
  bogus: 1
media:
  source: inbox
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)

	details := model.CueErrDetails(err)
	require.NotEmpty(t, details)
	var codes []string
	for _, d := range details {
		require.NotEmpty(t, d.Message)
		require.NotZero(t, d.Pos.Line)
		codes = append(codes, d.Code)
	}
	require.Contains(t, codes, "unknown_field")

	require.Nil(t, model.CueErrDetails(nil))
}
