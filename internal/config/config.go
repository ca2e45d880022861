// Package config loads the on-disk coordplane configuration file,
// the same way internal/agents/config.go loads teams.yaml: a plain
// struct decoded with gopkg.in/yaml.v3, no env-var overlay beyond
// what each entity already reads directly (GITHUB_TOKEN).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordplane server's on-disk configuration.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	DataDir    string `yaml:"dataDir"`

	VMPool struct {
		HealthCheckIntervalMs int `yaml:"healthCheckIntervalMs"`
		VMBootTimeoutMs       int `yaml:"vmBootTimeoutMs"`
	} `yaml:"vmPool"`

	GitTree struct {
		SweepIntervalMs int `yaml:"sweepIntervalMs"`
	} `yaml:"gitTree"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	c := &Config{ListenAddr: ":8080", DataDir: "data"}
	c.VMPool.HealthCheckIntervalMs = 60_000
	c.VMPool.VMBootTimeoutMs = 10 * 60_000
	c.GitTree.SweepIntervalMs = int(time.Hour / time.Millisecond)
	return c
}

// Load reads and decodes the YAML config at path, filling any field
// the file omits from Default.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
