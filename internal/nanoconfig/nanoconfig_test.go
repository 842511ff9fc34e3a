package nanoconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 128, cfg.BlockProcessor.MaxPeerQueue)
	require.Equal(t, 5000, cfg.Election.Size)
	require.Equal(t, 65536, cfg.VoteCache.MaxSize)
	require.True(t, cfg.Bootstrap.Enable)
	require.Equal(t, 256, cfg.NetInfo.MaxPeersTotal)
	require.Equal(t, 67, cfg.OnlineReps.QuorumPercent)
}

func TestLoadConfigOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanod.toml")
	doc := `
datadir = "/tmp/custom"

[Bootstrap]
channel_limit = 32
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	var cfg Config
	require.NoError(t, LoadConfig(path, &cfg))
	require.Equal(t, "/tmp/custom", cfg.DataDir)
	require.Equal(t, 32, cfg.Bootstrap.ChannelLimit)
	// Untouched fields keep their defaults.
	require.True(t, cfg.Bootstrap.EnableDatabaseScan)
	require.Equal(t, 3*time.Second, cfg.Bootstrap.RequestTimeout)
}

func TestWriteConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanod.toml")
	want := DefaultConfig()
	want.DataDir = "/var/lib/nanod"
	require.NoError(t, WriteConfig(path, want))

	var got Config
	require.NoError(t, LoadConfig(path, &got))
	require.Equal(t, want.DataDir, got.DataDir)
	require.Equal(t, want.Election.Size, got.Election.Size)
}
