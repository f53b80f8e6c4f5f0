package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// RuntimeConfig holds process-wide configuration for the terminal service.
// Values come from built-in defaults, then ~/.resurrectci/config.yaml, then
// RESURRECTCI_* environment variables, last writer wins.
type RuntimeConfig struct {
	// BindAddr is the listen address for the HTTP API.
	BindAddr string `yaml:"bind_addr"`

	// WorkspaceDir is where project checkouts for sandbox mounts live.
	WorkspaceDir string `yaml:"workspace_dir"`

	// ExecutorURL is the base URL of the remote command-execution service.
	// Empty disables both remote backend variants.
	ExecutorURL string `yaml:"executor_url"`

	// GitHubToken authenticates the repository provider and clones.
	GitHubToken string `yaml:"github_token"`

	// SandboxImage is the container image used by the sandboxed backend.
	SandboxImage string `yaml:"sandbox_image"`

	// SandboxEnabled gates the Docker-backed execution variant.
	SandboxEnabled bool `yaml:"sandbox_enabled"`

	// DevServerPorts are the candidate ports polled to detect a dev server
	// coming up during a sandboxed command.
	DevServerPorts []int `yaml:"dev_server_ports"`

	// AuthSecret enables bearer-token auth on the API when set.
	AuthSecret string `yaml:"auth_secret"`
}

// Runtime is the global runtime configuration instance.
var Runtime *RuntimeConfig

func init() {
	Runtime = Load()
}

// Load builds the runtime configuration from defaults, the optional config
// file, and environment overrides.
func Load() *RuntimeConfig {
	cfg := &RuntimeConfig{
		BindAddr:       ":8181",
		WorkspaceDir:   defaultWorkspaceDir(),
		SandboxImage:   "node:20-bookworm",
		SandboxEnabled: true,
		DevServerPorts: []int{3000, 3001, 4000, 4321, 5000, 5173, 8000, 8080},
	}

	if path := configFilePath(); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			// Malformed files are ignored rather than fatal; the service
			// still starts with defaults.
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	applyEnv(cfg)
	return cfg
}

func defaultWorkspaceDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "."
		}
	}
	return filepath.Join(homeDir, ".resurrectci", "workspace")
}

func configFilePath() string {
	if p := os.Getenv("RESURRECTCI_CONFIG"); p != "" {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".resurrectci", "config.yaml")
}

func applyEnv(cfg *RuntimeConfig) {
	if v := os.Getenv("RESURRECTCI_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("RESURRECTCI_WORKSPACE_DIR"); v != "" {
		cfg.WorkspaceDir = v
	}
	if v := os.Getenv("RESURRECTCI_EXECUTOR_URL"); v != "" {
		cfg.ExecutorURL = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("RESURRECTCI_GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("RESURRECTCI_SANDBOX_IMAGE"); v != "" {
		cfg.SandboxImage = v
	}
	if v := os.Getenv("RESURRECTCI_SANDBOX_ENABLED"); v != "" {
		cfg.SandboxEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RESURRECTCI_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("RESURRECTCI_DEV_SERVER_PORTS"); v != "" {
		if ports := parsePorts(v); len(ports) > 0 {
			cfg.DevServerPorts = ports
		}
	}
}

func parsePorts(raw string) []int {
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil || port <= 0 || port > 65535 {
			continue
		}
		ports = append(ports, port)
	}
	return ports
}

// EnsureDirs creates the directories the service writes to.
func (rc *RuntimeConfig) EnsureDirs() error {
	return os.MkdirAll(rc.WorkspaceDir, 0755)
}
