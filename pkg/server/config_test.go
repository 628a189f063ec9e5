package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	// The default file was written and loads back identically
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestToConfigSecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")

	tomlCfg := DefaultTOMLConfig()
	cfg, err := tomlCfg.ToConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("env-secret"), cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 50, cfg.DefaultPageSize)
}

func TestToConfigEnvWinsOverFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")

	tomlCfg := DefaultTOMLConfig()
	tomlCfg.Auth.JWTSecret = "file-secret"
	cfg, err := tomlCfg.ToConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("env-secret"), cfg.JWTSecret)
}

func TestToConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	tomlCfg := DefaultTOMLConfig()
	_, err := tomlCfg.ToConfig()
	assert.Error(t, err)
}
