package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, name := range []string{"config", "log-level"} {
		require.NoError(t, rootCmd.PersistentFlags().Set(name, ""))
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "auditflow version dev\n", out)
}

func TestGraph(t *testing.T) {
	out, err := run(t, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "classify")
	assert.Contains(t, out, "human_review")
}

func TestThreads_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "auditflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
checkpoint:
  driver: sqlite
  sqlite_path: `+filepath.Join(dir, "threads.db")+`
telemetry:
  prometheus: false
`), 0o600))

	out, err := run(t, "threads", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	_, err = run(t, "threads", "missing", "--config", cfgPath)
	assert.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	_, err := run(t, "graph", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = run(t, "graph", "--log-level", "loud")
	assert.Error(t, err)
}
