package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Web.SecureCookies)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Database.DSN = "/var/lib/plantcare/plantcare.db"
	cfg.Database.OnPlantDelete = OnDeleteRestrict
	cfg.Web.Enabled = true
	cfg.Web.Port = 9090
	cfg.Web.SecureCookies = true
	cfg.Admin.Email = "admin@example.com"
	cfg.Log.Level = "debug"

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, Default()))

	t.Setenv("PLANTCARE_WEB_PORT", "7070")
	t.Setenv("PLANTCARE_DATABASE_ON_PLANT_DELETE", "restrict")
	t.Setenv("PLANTCARE_WEB_SECURE_COOKIES", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Web.Port)
	assert.True(t, cfg.Web.SecureCookies)
	assert.Equal(t, OnDeleteRestrict, cfg.Database.OnPlantDelete)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "driver", yaml: "database:\n  driver: oracle\n"},
		{name: "on delete", yaml: "database:\n  on_plant_delete: nullify\n"},
		{name: "port", yaml: "web:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnsureSessionSecret(t *testing.T) {
	cfg := Default()

	changed, err := cfg.EnsureSessionSecret()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, cfg.Web.SessionSecret, 64)

	secret := cfg.Web.SessionSecret
	changed, err = cfg.EnsureSessionSecret()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, secret, cfg.Web.SessionSecret)
}
