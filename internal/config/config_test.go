package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
)

// minimalConfig carries the required storage roots; everything else falls
// back to defaults.
const minimalConfig = `
storage:
  private_dir: /tribuna-private/.private
  public_search_paths:
    - /tribuna-public/assets
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "s3", cfg.Storage.Backend)
	require.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	require.False(t, cfg.Storage.S3.UsePathStyle)
	require.Equal(t, 15*time.Minute, cfg.Upload.URLTTL)
	require.Equal(t, 5*time.Minute, cfg.Download.CacheTTL)
	require.False(t, cfg.Redis.Enabled)
	require.False(t, cfg.Diagnostics.Enabled)
	require.Equal(t, 6*time.Hour, cfg.Diagnostics.Interval)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRIBUNA_SERVER_PORT", "9090")
	t.Setenv("TRIBUNA_STORAGE_BACKEND", "memory")
	t.Setenv("TRIBUNA_STORAGE_S3_REGION", "sa-east-1")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, "sa-east-1", cfg.Storage.S3.Region)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
	}{
		{
			name: "missing private dir",
			content: `
storage:
  public_search_paths: [/tribuna-public/assets]
`,
			wantKey: "storage.private_dir",
		},
		{
			name: "private dir without leading slash",
			content: `
storage:
  private_dir: tribuna-private/.private
  public_search_paths: [/tribuna-public/assets]
`,
			wantKey: "storage.private_dir",
		},
		{
			name: "no public search paths",
			content: `
storage:
  private_dir: /tribuna-private/.private
`,
			wantKey: "storage.public_search_paths",
		},
		{
			name: "bad storage backend",
			content: minimalConfig + `
  backend: filesystem
`,
			wantKey: "storage.backend",
		},
		{
			name: "bad database driver",
			content: minimalConfig + `
database:
  driver: oracle
`,
			wantKey: "database.driver",
		},
		{
			name: "nonpositive upload ttl",
			content: minimalConfig + `
upload:
  url_ttl: 0s
`,
			wantKey: "upload.url_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)

			var cfgErr *domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestConfig_PublicSearchPaths(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.PublicSearchPaths = []string{
		" /a ", "/b", "/a", "", "/b",
	}
	require.Equal(t, []string{"/a", "/b"}, cfg.PublicSearchPaths())
}
