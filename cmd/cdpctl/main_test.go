package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customersJSON = `[
  {"customer_id": "C1", "email": "a@example.com", "phone": "5321234567", "city": "İstanbul", "age": 30, "segment": "premium", "email_opted_in": true},
  {"customer_id": "C2", "email": "b@example.com", "city": "İstanbul", "age": 40, "segment": "premium", "email_opted_in": true},
  {"customer_id": "C3", "email": "c@example.com", "city": "Ankara", "age": 50, "segment": "regular"}
]`

// writeConfig lays out a data directory and a config file pointing at it.
func writeConfig(t *testing.T) (configPath, exportDir string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	exportDir = filepath.Join(root, "exports")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for name, body := range map[string]string{
		"customers.json":    customersJSON,
		"transactions.json": "[]",
		"events.json":       "[]",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(body), 0o644))
	}

	configPath = filepath.Join(root, "config.yaml")
	yaml := fmt.Sprintf(`
data:
  source: dir
  dir: %s
export:
  dir: %s
activation:
  retry_count: 1
`, dataDir, exportDir)
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return configPath, exportDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSegmentsCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "segments", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "istanbul_premium")
	assert.Contains(t, out, "churn_risk")
}

func TestExportCommand_OneSegment(t *testing.T) {
	cfgPath, exportDir := writeConfig(t)

	out, err := execute(t, "export", "istanbul_premium", "--platform", "meta,tiktok", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "istanbul_premium: 2 members")

	files, err := filepath.Glob(filepath.Join(exportDir, "*_audience_istanbul_premium_*.csv"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestExportCommand_AllWritesReport(t *testing.T) {
	cfgPath, exportDir := writeConfig(t)

	out, err := execute(t, "export", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "report: ")

	reports, err := filepath.Glob(filepath.Join(exportDir, "export_report_*.txt"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestExportCommand_UnknownPlatform(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := execute(t, "export", "--platform", "myspace", "--config", cfgPath)
	assert.Error(t, err)
}

func TestUploadCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	t.Run("dry run", func(t *testing.T) {
		out, err := execute(t, "upload", "meta", "istanbul_premium", "--dry-run", "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "segment istanbul_premium: 2 members, 2 reachable")
		assert.Contains(t, out, "[DRY-RUN] OK meta: 2 users uploaded")
	})

	t.Run("simulated without credentials", func(t *testing.T) {
		out, err := execute(t, "upload", "tiktok", "istanbul_premium", "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "[SIMULATED] OK tiktok")
		assert.Contains(t, out, "audience ")
	})

	t.Run("unknown segment", func(t *testing.T) {
		_, err := execute(t, "upload", "meta", "nope", "--config", cfgPath)
		assert.Error(t, err)
	})

	t.Run("needs two args", func(t *testing.T) {
		_, err := execute(t, "upload", "meta", "--config", cfgPath)
		assert.Error(t, err)
	})
}

func TestStatusCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "status", "meta", "23850000000", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "audience 23850000000")
	assert.Contains(t, out, "status: READY")
}

func TestConfigCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "config", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "data source:   dir")
	assert.Contains(t, out, "simulated")
}
