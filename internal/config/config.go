// Package config loads autotestgen.yaml. Every value is optional; flags
// override the file and AUTOTESTGEN_* variables override both defaults and
// the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL = "http://localhost:8000"
	DefaultLogLevel  = "info"
	DefaultHistoryDB = "autotestgen-history.db"
)

type Config struct {
	ServerURL  string `yaml:"server_url"`
	HistoryDB  string `yaml:"history_db"`
	LogLevel   string `yaml:"log_level"`
	OutputDir  string `yaml:"output_dir"`
	ChromePath string `yaml:"chrome_path"`
	// Timeout bounds each call to the service (generation, export) on its
	// own; zero means no limit.
	Timeout Duration     `yaml:"timeout"`
	Server  ServerConfig `yaml:"server"`
}

// ServerConfig is read by autotestgen-server.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	UploadDir  string `yaml:"upload_dir"`
	ResultsDir string `yaml:"results_dir"`
	Model      string `yaml:"model"`
	MaxTokens  int64  `yaml:"max_tokens"`
}

// Duration wraps time.Duration for YAML strings like "90s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func Default() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		HistoryDB: DefaultHistoryDB,
		LogLevel:  DefaultLogLevel,
		OutputDir: "out",
		Server: ServerConfig{
			Addr:       ":8000",
			UploadDir:  "uploads",
			ResultsDir: "results",
			MaxTokens:  8192,
		},
	}
}

// Load reads path on top of Default, expanding ${VAR} and ${VAR:-default}
// first, then applies environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		"AUTOTESTGEN_SERVER_URL": &c.ServerURL,
		"AUTOTESTGEN_HISTORY_DB": &c.HistoryDB,
		"AUTOTESTGEN_LOG_LEVEL":  &c.LogLevel,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
}
