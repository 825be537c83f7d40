// Package config holds the declared input surface for a provisioning run:
// deployment mode, domain, GPU use, API exposure, certificate subject and
// model selection, plus paths, probe budgets and logging. The value is
// built once — from file, environment and flags — before any decision
// logic runs; components never read ambient state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jguan/chatstack/pkg/deploy"
)

type Config struct {
	Deploy  DeployConfig  `toml:"deploy"`
	GPU     GPUConfig     `toml:"gpu"`
	Cert    CertConfig    `toml:"cert"`
	Models  ModelsConfig  `toml:"models"`
	Paths   PathsConfig   `toml:"paths"`
	Probe   ProbeConfig   `toml:"probe"`
	Logging LoggingConfig `toml:"logging"`
}

type DeployConfig struct {
	// Mode is "simple" (HTTP) or "advanced" (HTTPS).
	Mode string `toml:"mode"`
	// Domain is the domain name or IP the stack answers on. Empty means
	// "use the host's primary IP".
	Domain string `toml:"domain"`
	// ExposeAPI publishes the inference backend's port on the host.
	ExposeAPI bool `toml:"expose_api"`
}

type GPUConfig struct {
	Enabled bool `toml:"enabled"`
	Count   int  `toml:"count"`
}

type CertConfig struct {
	Country    string `toml:"country"`
	State      string `toml:"state"`
	City       string `toml:"city"`
	Org        string `toml:"org"`
	OrgUnit    string `toml:"org_unit"`
	CommonName string `toml:"common_name"`
}

type ModelsConfig struct {
	// Selection is the ordered list of model identifiers to install.
	// Empty means skip model installation.
	Selection []string `toml:"selection"`
	// CatalogFile overrides the embedded requirement table.
	CatalogFile string `toml:"catalog_file"`
}

type PathsConfig struct {
	// DataDir is the chatstack home, holding the history database.
	DataDir string `toml:"data_dir"`
	// StackDir holds the generated artifacts. Defaults to DataDir/stack.
	StackDir string `toml:"stack_dir"`
}

type ProbeConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	ProxyAttempts   int `toml:"proxy_attempts"`
	UIAttempts      int `toml:"ui_attempts"`
	BackendAttempts int `toml:"backend_attempts"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".chatstack")

	return &Config{
		Deploy: DeployConfig{
			Mode:      "simple",
			Domain:    "",
			ExposeAPI: false,
		},
		GPU: GPUConfig{
			Enabled: false,
			Count:   1,
		},
		Cert: CertConfig{
			Country: "US",
			State:   "State",
			City:    "City",
			Org:     "ChatStack",
			OrgUnit: "IT",
		},
		Models: ModelsConfig{
			Selection: nil,
		},
		Paths: PathsConfig{
			DataDir:  dataDir,
			StackDir: "",
		},
		Probe: ProbeConfig{
			IntervalSeconds: 5,
			ProxyAttempts:   12,
			UIAttempts:      24,
			BackendAttempts: 24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	var err error

	c.Paths.DataDir, err = expandPath(c.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("expand paths.data_dir: %w", err)
	}

	c.Paths.StackDir, err = expandPath(c.Paths.StackDir)
	if err != nil {
		return fmt.Errorf("expand paths.stack_dir: %w", err)
	}
	if c.Paths.StackDir == "" {
		c.Paths.StackDir = filepath.Join(c.Paths.DataDir, "stack")
	}

	return nil
}

func (c *Config) Validate() error {
	if _, err := deploy.ParseMode(c.Deploy.Mode); err != nil {
		return err
	}

	if c.GPU.Enabled && c.GPU.Count < 1 {
		return fmt.Errorf("gpu.count must be at least 1 when gpu.enabled, got %d", c.GPU.Count)
	}

	if c.Probe.IntervalSeconds < 1 {
		return fmt.Errorf("probe.interval_seconds must be at least 1, got %d", c.Probe.IntervalSeconds)
	}
	for name, v := range map[string]int{
		"probe.proxy_attempts":   c.Probe.ProxyAttempts,
		"probe.ui_attempts":      c.Probe.UIAttempts,
		"probe.backend_attempts": c.Probe.BackendAttempts,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, v)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATSTACK_MODE"); v != "" {
		cfg.Deploy.Mode = v
	}
	if v := os.Getenv("CHATSTACK_DOMAIN"); v != "" {
		cfg.Deploy.Domain = v
	}
	if v := os.Getenv("CHATSTACK_EXPOSE_API"); v != "" {
		cfg.Deploy.ExposeAPI = isTrue(v)
	}
	if v := os.Getenv("CHATSTACK_GPU_ENABLED"); v != "" {
		cfg.GPU.Enabled = isTrue(v)
	}
	if v := os.Getenv("CHATSTACK_GPU_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GPU.Count = n
		}
	}
	if v := os.Getenv("CHATSTACK_MODELS"); v != "" {
		var selection []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				selection = append(selection, id)
			}
		}
		cfg.Models.Selection = selection
	}
	if v := os.Getenv("CHATSTACK_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("CHATSTACK_STACK_DIR"); v != "" {
		cfg.Paths.StackDir = v
	}
	if v := os.Getenv("CHATSTACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHATSTACK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func isTrue(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

// Load reads the configuration: file (when given) layered under environment
// overrides, then validated.
func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Inputs converts the configuration into the orchestrator's input value.
// fallbackDomain fills in for an empty deploy.domain, typically the host's
// detected primary IP.
func (c *Config) Inputs(fallbackDomain string) (deploy.Inputs, error) {
	mode, err := deploy.ParseMode(c.Deploy.Mode)
	if err != nil {
		return deploy.Inputs{}, err
	}

	domain := strings.TrimSpace(c.Deploy.Domain)
	if domain == "" {
		domain = strings.TrimSpace(fallbackDomain)
	}

	return deploy.Inputs{
		Mode:      mode,
		Domain:    domain,
		GPU:       deploy.GPUConfig{Enabled: c.GPU.Enabled, Count: c.GPU.Count},
		ExposeAPI: c.Deploy.ExposeAPI,
		Cert: deploy.CertificateParams{
			Country:    c.Cert.Country,
			State:      c.Cert.State,
			City:       c.Cert.City,
			Org:        c.Cert.Org,
			OrgUnit:    c.Cert.OrgUnit,
			CommonName: c.Cert.CommonName,
		},
	}, nil
}
