package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-activation/internal/activation"
	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/ledger"
	"github.com/ignite/cdp-activation/internal/records"
)

const customersJSON = `[
  {"customer_id": "C1", "email": "a@example.com", "city": "İstanbul", "segment": "premium", "email_opted_in": true},
  {"customer_id": "C2", "email": "b@example.com", "city": "Ankara", "segment": "premium", "email_opted_in": true},
  {"customer_id": "C3", "email": "c@example.com", "city": "İstanbul", "segment": "regular"}
]`

func writeSnapshot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		records.CustomersObject:    customersJSON,
		records.TransactionsObject: "[]",
		records.EventsObject:       "[]",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Data.Dir = writeSnapshot(t)
	cfg.Export.Dir = t.TempDir()
	return cfg
}

func TestNew_DirSource(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, err = a.Holder.Load()
	assert.ErrorIs(t, err, records.ErrDataUnavailable, "nothing is loaded before Load")

	require.NoError(t, a.Load(context.Background()))
	store, err := a.Holder.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &ledger.Memory{}, a.Ledger)
	assert.Equal(t, []domain.Platform{domain.PlatformMeta, domain.PlatformGoogle, domain.PlatformTikTok}, a.Activator.Platforms())
}

func TestNew_DryRunActivation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Activation.DryRun = true
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Load(context.Background()))

	run, err := a.Activator.Activate(context.Background(), activation.Request{
		SegmentKey: "istanbul_premium",
		Platforms:  []domain.Platform{domain.PlatformMeta},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Matched)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].DryRun)
}

func TestNew_RedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NotNil(t, a.Redis)
	assert.NoError(t, a.Redis.Ping(context.Background()).Err())
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown source", func(c *config.Config) { c.Data.Source = "ftp" }},
		{"postgres without dsn", func(c *config.Config) { c.Data.Source = config.SourcePostgres }},
		{"s3 without bucket", func(c *config.Config) { c.Data.Source = config.SourceS3 }},
		{"unknown hash", func(c *config.Config) { c.Activation.HashAlgorithm = "crc32" }},
		{"unknown platform", func(c *config.Config) { c.Activation.Platforms = []string{"myspace"} }},
		{"bad consent", func(c *config.Config) { c.Activation.Consent = "maybe" }},
		{"unknown timezone", func(c *config.Config) { c.Data.Timezone = "Mars/Olympus" }},
		{"unclosed name template", func(c *config.Config) { c.Activation.AudienceNameTemplate = "CDP_{{ segment" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestNew_RecordTimezone(t *testing.T) {
	t.Cleanup(func() { domain.SetRecordLocation(nil) })
	cfg := testConfig(t)
	cfg.Data.Timezone = "Europe/Istanbul"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	assert.Equal(t, "Europe/Istanbul", domain.RecordLocation().String())

	ts, err := domain.ParseTimestamp("2024-06-01 12:00:00")
	require.NoError(t, err)
	assert.Equal(t, 9, ts.UTC().Hour())
}

func TestNew_MissingDefinitionsFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segments.DefinitionsPath = filepath.Join(t.TempDir(), "absent.yaml")

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	_, err = a.Catalog.Get("churn_risk")
	assert.NoError(t, err)
}
