package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPENGROUND_CONFIG_FILE", "")
	t.Setenv("OPENGROUND_CLIENT_ID", "client-a")
	t.Setenv("OPENGROUND_CLIENT_SECRET", "secret-a")
	t.Setenv("CLOUD_REGION", "us")
	t.Setenv("CLOUD_ID", "instance-1")
	t.Setenv("PROJECT_CLOUD_ID", "project-1")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "client-a", cfg.ClientID)
	require.Equal(t, "us", cfg.Region)
	require.Equal(t, "instance-1", cfg.InstanceID)
	require.Equal(t, "project-1", cfg.ProjectID)
	require.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "openground.yaml")
	err := os.WriteFile(p, []byte(
		"client_id: file-client\n"+
			"client_secret: file-secret\n"+
			"region: eu\n"+
			"instance_id: file-instance\n"+
			"project_id: file-project\n",
	), 0o600)
	require.NoError(t, err)

	t.Setenv("OPENGROUND_CONFIG_FILE", p)
	t.Setenv("OPENGROUND_CLIENT_ID", "")
	t.Setenv("OPENGROUND_CLIENT_SECRET", "")
	t.Setenv("CLOUD_REGION", "us")
	t.Setenv("CLOUD_ID", "")
	t.Setenv("PROJECT_CLOUD_ID", "")
	t.Setenv("RATE_LIMIT_RPS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "file-client", cfg.ClientID)
	require.Equal(t, "us", cfg.Region, "env var overrides file value")
	require.Equal(t, "file-project", cfg.ProjectID)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("OPENGROUND_CONFIG_FILE", "")
	t.Setenv("OPENGROUND_CLIENT_ID", "client-a")
	t.Setenv("OPENGROUND_CLIENT_SECRET", "")
	t.Setenv("CLOUD_REGION", "us")
	t.Setenv("CLOUD_ID", "instance-1")
	t.Setenv("PROJECT_CLOUD_ID", "project-1")

	_, err := Load()
	require.ErrorContains(t, err, "OPENGROUND_CLIENT_SECRET is required")
}
