package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadCluster_Defaults(t *testing.T) {
	cfg, err := LoadCluster(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err) // explicit path must exist

	cfg, err = LoadCluster("")
	require.NoError(t, err)
	require.Equal(t, "seqsort", cfg.Cluster.Name)
	require.Equal(t, []string{"localhost:7701"}, cfg.Cluster.Workers)
	require.Equal(t, 10*time.Second, cfg.Cluster.DialTimeout)
	require.Equal(t, 1024, cfg.IO.MaxRecordLength)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadCluster_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	content := `
cluster:
  name: dna-sort
  workers:
    - "10.0.0.1:7701"
    - "10.0.0.2:7701"
    - "10.0.0.3:7701"
  dial_timeout: 30s
io:
  max_record_length: 200
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadCluster(path)
	require.NoError(t, err)
	require.Equal(t, "dna-sort", cfg.Cluster.Name)
	require.Len(t, cfg.Cluster.Workers, 3)
	require.Equal(t, "10.0.0.2:7701", cfg.Cluster.Workers[1])
	require.Equal(t, 30*time.Second, cfg.Cluster.DialTimeout)
	require.Equal(t, 200, cfg.IO.MaxRecordLength)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadCluster_InvalidMaxRecordLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	content := `
io:
  max_record_length: -5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadCluster(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "max_record_length")
}

func TestLoadCluster_BufferSmallerThanRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	content := `
io:
  max_record_length: 4096
  read_buffer_size: 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadCluster(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read_buffer_size")
}
