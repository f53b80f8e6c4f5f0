package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RESURRECTCI_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()

	assert.Equal(t, ":8181", cfg.BindAddr)
	assert.True(t, cfg.SandboxEnabled)
	assert.Empty(t, cfg.ExecutorURL)
	assert.Contains(t, cfg.DevServerPorts, 3000)
	assert.Contains(t, cfg.DevServerPorts, 5173)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "bind_addr: \":9999\"\nsandbox_image: alpine:3\nexecutor_url: https://exec.example.com\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("RESURRECTCI_CONFIG", path)

	cfg := Load()

	assert.Equal(t, ":9999", cfg.BindAddr)
	assert.Equal(t, "alpine:3", cfg.SandboxImage)
	assert.Equal(t, "https://exec.example.com", cfg.ExecutorURL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor_url: https://file.example.com\n"), 0644))
	t.Setenv("RESURRECTCI_CONFIG", path)
	t.Setenv("RESURRECTCI_EXECUTOR_URL", "https://env.example.com")
	t.Setenv("RESURRECTCI_SANDBOX_ENABLED", "false")
	t.Setenv("RESURRECTCI_DEV_SERVER_PORTS", "3000, 9000")

	cfg := Load()

	assert.Equal(t, "https://env.example.com", cfg.ExecutorURL)
	assert.False(t, cfg.SandboxEnabled)
	assert.Equal(t, []int{3000, 9000}, cfg.DevServerPorts)
}

func TestParsePorts(t *testing.T) {
	assert.Equal(t, []int{3000, 8080}, parsePorts("3000,8080"))
	assert.Equal(t, []int{5173}, parsePorts(" 5173 , nope, -1, 99999"))
	assert.Nil(t, parsePorts(""))
}
