package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "osis", cfg.Database.DBName)
	assert.Equal(t, 6, cfg.Academic.PostponementSpan)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.UseTLS)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "database:\n  host: db.example.org\nacademic:\n  postponement_span: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "db.example.org", cfg.Database.Host)
	assert.Equal(t, 4, cfg.Academic.PostponementSpan)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "env.example.org")
	t.Setenv("ACADEMIC_POSTPONEMENT_SPAN", "3")
	t.Setenv("SMTP_USE_TLS", "true")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "env.example.org", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Academic.PostponementSpan)
	assert.True(t, cfg.SMTP.UseTLS)
}

func TestLoadConfig_BadEnvValue(t *testing.T) {
	t.Setenv("ACADEMIC_POSTPONEMENT_SPAN", "soon")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACADEMIC_POSTPONEMENT_SPAN")
}

func TestLoadConfig_ValidatesSpan(t *testing.T) {
	t.Setenv("ACADEMIC_POSTPONEMENT_SPAN", "0")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postponement span")
}
