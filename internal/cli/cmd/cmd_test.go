package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/berrythewa/clipbridge/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel = "", ""
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvLogFormat, "json")
	return dir
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	SetVersionInfo("1.2.3", "2026-01-01", "abc123")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    1.2.3")
	assert.Contains(t, out, "Commit:     abc123")
}

func TestConfigCommandAppliesFlags(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  primary: false\n"), 0o600))

	out, err := execute(t, "config", "--config", path, "--log-level", "debug")
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "debug", got.Log.Level)
	assert.False(t, got.Sync.Primary)
	assert.True(t, got.Sync.Clipboard)
}

func TestConfigPathCommand(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clipbridge", "config.yaml")+"\n", out)
}

func TestInvalidLogLevelFlag(t *testing.T) {
	isolate(t)

	_, err := execute(t, "config", "--log-level", "chatty")
	assert.Error(t, err)
}

func TestCommandsWithoutConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "version", args: []string{"version"}},
		{name: "config path", args: []string{"config", "path"}},
		{name: "config", args: []string{"config"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(config.EnvPollInterval, "bogus")

			_, err := execute(t, tt.args...)
			if tt.wantErr {
				assert.ErrorContains(t, err, config.EnvPollInterval)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("config path with a broken file", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sync: [\n"), 0o600))

		out, err := execute(t, "config", "path", "--config", path)
		require.NoError(t, err)
		assert.Equal(t, path+"\n", out)
	})
}
