// Package config holds process-wide settings.
//
// Settings are read from PLANTERM_* environment variables. A YAML file
// named by PLANTERM_CONFIG_FILE may be supplied; any key it sets overrides
// the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":3000" yaml:"listen_addr"`
	LogPath    string `envconfig:"LOG_PATH" default:"" yaml:"log_path"`

	// Remote workspace layout. PlanPath is relative to the login user's
	// home directory, matching where the assistant process writes it.
	WorkspaceDir string `envconfig:"WORKSPACE_DIR" default:"remote-dev-workspace" yaml:"workspace_dir"`
	PlanPath     string `envconfig:"PLAN_PATH" default:"remote-dev-workspace/plan.md" yaml:"plan_path"`

	// Terminal multiplexer session on the remote host.
	MuxSession   string `envconfig:"MUX_SESSION" default:"remote-tdd-dev" yaml:"mux_session"`
	AssistantCmd string `envconfig:"ASSISTANT_CMD" default:"claude" yaml:"assistant_cmd"`

	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"20s" yaml:"connect_timeout"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout"`
}

// Load builds Settings from the environment and the optional config file.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("PLANTERM", &s); err != nil {
		return Settings{}, fmt.Errorf("process environment: %w", err)
	}

	path := os.Getenv("PLANTERM_CONFIG_FILE")
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return s, nil
}
