package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "http://127.0.0.1:9222", cfg.DevToolsURL)
	assert.Equal(t, "127.0.0.1:7223", cfg.Listen)
	assert.Equal(t, "ws://127.0.0.1:7223/bridge", cfg.BridgeURL)
	assert.Equal(t, 100, cfg.Buffers.ConsoleCap)
	assert.Equal(t, 200, cfg.Buffers.NetworkCap)
	assert.Equal(t, 50, cfg.Buffers.ProvisionalCap)
	assert.Equal(t, 1000, cfg.Buffers.DedupWindowMS)
	assert.Equal(t, 5000, cfg.Network.BodyLimit)
	assert.Equal(t, 5000, cfg.Bridge.ReconnectMS)
	assert.Equal(t, 10, cfg.Summary.Limit)
	assert.Contains(t, cfg.Network.ExcludeResourceTypes, "Image")
	assert.NotEmpty(t, cfg.Network.ExcludeURLPatterns)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Listen, cfg.Listen)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := NewConfig()
	cfg.DevToolsURL = "http://127.0.0.1:9333"
	cfg.Buffers.ConsoleCap = 42
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9333", got.DevToolsURL)
	assert.Equal(t, 42, got.Buffers.ConsoleCap)
	// Untouched fields keep their defaults.
	assert.Equal(t, "127.0.0.1:7223", got.Listen)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\tlisten: broken"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
