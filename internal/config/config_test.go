package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[general]
server_key = "secret"

[shard]
shard_id = 7
visibility_range = 2
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.General.ServerKey)
	assert.Equal(t, int32(7), cfg.Shard.ShardID)
	assert.Equal(t, 2, cfg.Shard.VisibilityRange)
	assert.Equal(t, 1, cfg.Shard.NumChannels, "unspecified fields keep their default")
}

func TestPathFromArgs(t *testing.T) {
	assert.Equal(t, DefaultPath, PathFromArgs([]string{"bin"}))
	assert.Equal(t, "custom.toml", PathFromArgs([]string{"bin", "custom.toml"}))
}
