package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	home := t.TempDir()

	cfg, path, err := Load(LoadOptions{
		Overrides: map[string]any{"project_root": root},
		HomeDir:   home,
	})
	require.NoError(t, err)
	assert.Empty(t, path)

	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(home, AppName, "workspace"), cfg.WorkspaceRoot)
	assert.Equal(t, 5, cfg.VersionsToKeep)
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Lock.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.Lock.Timeout)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, filepath.Join(root, StateDirName, "journal"), cfg.Journal.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadProjectFile(t *testing.T) {
	root := t.TempDir()
	content := `
workspace_root = "/work/alice"
versions_to_keep = 3

[lock]
retry_delay = "10ms"
timeout = "2s"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectFileName), []byte(content), 0644))

	cfg, path, err := Load(LoadOptions{Overrides: map[string]any{"project_root": root}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ProjectFileName), path)
	assert.Equal(t, "/work/alice", cfg.WorkspaceRoot)
	assert.Equal(t, 3, cfg.VersionsToKeep)
	assert.Equal(t, 10*time.Millisecond, cfg.Lock.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvAndOverridePrecedence(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectFileName),
		[]byte("workspace_root = \"/from/file\"\nversions_to_keep = 3\n"), 0644))

	t.Setenv("ASSETSTORE_VERSIONS_TO_KEEP", "7")
	t.Setenv("ASSETSTORE_LOG_LEVEL", "warn")

	cfg, _, err := Load(LoadOptions{Overrides: map[string]any{
		"project_root":   root,
		"workspace_root": "/from/flag",
	}})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.WorkspaceRoot)
	assert.Equal(t, 7, cfg.VersionsToKeep)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestExplicitConfigMissing(t *testing.T) {
	_, _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.WorkspaceRoot = "/work"
		cfg.Journal.Path = "/proj/.assetstore/journal"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative keep", func(c *Config) { c.VersionsToKeep = -1 }},
		{"no workspace", func(c *Config) { c.WorkspaceRoot = "" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"zero retry delay", func(c *Config) { c.Lock.RetryDelay = 0 }},
		{"journal without path", func(c *Config) { c.Journal.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Lock.Enabled = false
	cfg.Lock.RetryDelay = 0
	assert.NoError(t, cfg.Validate())
}

func TestRenderReloads(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.ProjectRoot = root
	cfg.WorkspaceRoot = "/work/bob"
	cfg.VersionsToKeep = 9
	cfg.Lock.Timeout = 3 * time.Second

	data, err := cfg.Render()
	require.NoError(t, err)
	assert.Contains(t, string(data), "[lock]")
	assert.Contains(t, string(data), "50ms")

	path := filepath.Join(root, ProjectFileName)
	require.NoError(t, cfg.WriteFile(path))
	assert.Error(t, cfg.WriteFile(path))

	loaded, used, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "/work/bob", loaded.WorkspaceRoot)
	assert.Equal(t, 9, loaded.VersionsToKeep)
	assert.Equal(t, 3*time.Second, loaded.Lock.Timeout)
}

func TestProjectFileLeavesOutPersonalSettings(t *testing.T) {
	root := t.TempDir()
	annHome, bobHome := t.TempDir(), t.TempDir()

	cfg, _, err := Load(LoadOptions{
		Overrides: map[string]any{"project_root": root, "user": "ann", "versions_to_keep": 7},
		HomeDir:   annHome,
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(annHome, AppName, "workspace"), cfg.WorkspaceRoot)

	path := filepath.Join(root, ProjectFileName)
	require.NoError(t, cfg.WriteProjectFile(path))
	assert.Error(t, cfg.WriteProjectFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "workspace_root")
	assert.NotContains(t, string(data), "project_root")
	assert.NotContains(t, string(data), "user")
	assert.NotContains(t, string(data), annHome)

	loaded, used, err := Load(LoadOptions{
		Overrides: map[string]any{"project_root": root},
		HomeDir:   bobHome,
	})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, filepath.Join(bobHome, AppName, "workspace"), loaded.WorkspaceRoot)
	assert.Empty(t, loaded.User)
	assert.Equal(t, 7, loaded.VersionsToKeep)
	assert.Equal(t, filepath.Join(root, StateDirName, "journal"), loaded.Journal.Path)
}

func TestProjectFileKeepsCustomJournalPath(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.ProjectRoot = root
	cfg.Journal.Path = "/srv/journals/show"

	data, err := cfg.RenderProject()
	require.NoError(t, err)
	assert.Contains(t, string(data), "/srv/journals/show")
}
