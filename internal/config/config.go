// Package config defines the firewall wrapper's immutable per-invocation
// Config (spec §3) and the viper-layered defaults/env-binding/CLI-override
// chain that builds one.
//
// Grounded on the teacher's internal/config/config.go: ResolveHomeDir's
// SUDO_USER-aware lookup, and the setDefaults/bindEnvVars/Load shape are
// kept; the Config struct itself is replaced wholesale — the teacher's
// fields (GVisorConfig, PolicyConfig, CredentialsConfig's Vault/SPIFFE,
// AuditConfig) describe a different sandbox's feature set and have no
// home in this spec (see DESIGN.md's dropped-modules section).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/agentfw/awf/internal/errs"
)

// ResolveHomeDir returns the home directory of the real (non-root) user.
// Running under sudo, os.UserHomeDir() returns /root, which won't hold
// the invoking user's caches (~/.cargo, ~/.npm, ...) that the agent
// container mounts — so SUDO_USER is consulted first.
func ResolveHomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		u, err := user.Lookup(sudoUser)
		if err != nil {
			slog.Debug("SUDO_USER lookup failed, falling back", "sudo_user", sudoUser, "error", err)
		} else {
			slog.Debug("resolved home via SUDO_USER", "user", sudoUser, "home", u.HomeDir)
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

// Config is the immutable per-invocation configuration (spec §3). It is
// built once by Load and never mutated afterward.
type Config struct {
	Runtime string `mapstructure:"runtime"` // "docker" or "podman"; "" tries docker then podman

	AllowDomains []string `mapstructure:"allow_domains"`
	BlockDomains []string `mapstructure:"block_domains"`
	URLPatterns  []string `mapstructure:"url_patterns"`
	DNSServers   []string `mapstructure:"dns_servers"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	KeepContainers bool   `mapstructure:"keep_containers"`
	WorkDir        string `mapstructure:"work_dir"`

	ImageRegistry string `mapstructure:"image_registry"`
	ImageTag      string `mapstructure:"image_tag"`
	BuildLocal    bool   `mapstructure:"build_local"`
	AgentImage    string `mapstructure:"agent_image"` // ref or preset ("default", "act")
	AgentCmd      string `mapstructure:"agent_cmd"`

	AdditionalEnv map[string]string `mapstructure:"additional_env"`
	EnvAll        bool              `mapstructure:"env_all"`

	VolumeMounts     []string `mapstructure:"volume_mounts"` // HOST:CONTAINER[:ro|rw]
	ContainerWorkDir string   `mapstructure:"container_work_dir"`
	AllowFullFS      bool     `mapstructure:"allow_full_filesystem_access"`

	TTY              bool     `mapstructure:"tty"`
	EnableHostAccess bool     `mapstructure:"enable_host_access"`
	AllowHostPorts   []string `mapstructure:"allow_host_ports"`

	EnableAPIProxy bool   `mapstructure:"enable_api_proxy"`
	OpenAIKey      string `mapstructure:"openai_api_key"`
	AnthropicKey   string `mapstructure:"anthropic_api_key"`

	ProxyLogsDir string `mapstructure:"proxy_logs_dir"`
}

// setDefaults registers the ambient defaults every Config starts from —
// CLI flags and explicit config-file values always win over these.
func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime", "")
	v.SetDefault("dns_servers", []string{"8.8.8.8", "8.8.4.4"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("keep_containers", false)
	v.SetDefault("image_registry", "ghcr.io/agentfw")
	v.SetDefault("image_tag", "latest")
	v.SetDefault("build_local", false)
	v.SetDefault("agent_image", "default")
	v.SetDefault("env_all", false)
	v.SetDefault("allow_full_filesystem_access", false)
	v.SetDefault("tty", false)
	v.SetDefault("enable_host_access", false)
	v.SetDefault("enable_api_proxy", false)
}

// bindEnvVars binds environment-variable overrides, each key explicitly,
// matching the teacher's convention. All keys use the AWF_ prefix except
// the two API keys, which are read from OPENAI_API_KEY and
// ANTHROPIC_API_KEY.
func bindEnvVars(v *viper.Viper) {
	bindings := map[string]string{
		"runtime":                      "AWF_RUNTIME",
		"dns_servers":                  "AWF_DNS_SERVERS",
		"log_level":                    "AWF_LOG_LEVEL",
		"log_format":                   "AWF_LOG_FORMAT",
		"keep_containers":              "AWF_KEEP_CONTAINERS",
		"work_dir":                     "AWF_WORK_DIR",
		"image_registry":               "AWF_IMAGE_REGISTRY",
		"image_tag":                    "AWF_IMAGE_TAG",
		"build_local":                  "AWF_BUILD_LOCAL",
		"agent_image":                  "AWF_AGENT_IMAGE",
		"env_all":                      "AWF_ENV_ALL",
		"container_work_dir":           "AWF_CONTAINER_WORK_DIR",
		"allow_full_filesystem_access": "AWF_ALLOW_FULL_FILESYSTEM_ACCESS",
		"tty":                          "AWF_TTY",
		"enable_host_access":           "AWF_ENABLE_HOST_ACCESS",
		"allow_host_ports":             "AWF_ALLOW_HOST_PORTS",
		"enable_api_proxy":             "AWF_ENABLE_API_PROXY",
		"openai_api_key":               "OPENAI_API_KEY",
		"anthropic_api_key":            "ANTHROPIC_API_KEY",
		"proxy_logs_dir":               "AWF_PROXY_LOGS_DIR",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// DefaultConfigDir returns ~/.config/awf for the invoking (non-root) user.
func DefaultConfigDir() (string, error) {
	home, err := ResolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "awf"), nil
}

// Load builds a Config by layering defaults, an optional config file,
// environment variables, and finally the overrides map (normally
// populated from parsed CLI flags — CLI always wins). configPath may be
// empty to use ~/.config/awf/config.yaml if present.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	v.SetEnvPrefix("AWF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		dir, err := DefaultConfigDir()
		if err != nil {
			slog.Warn("could not determine home directory", "error", err)
		} else {
			v.AddConfigPath(dir)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if configPath != "" {
				return nil, errs.Wrap(errs.KindConfigInvalid, "reading config file "+configPath, err)
			}
			slog.Debug("no config file found, using defaults", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	for key, val := range overrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "unmarshaling config", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate rejects structurally invalid configuration eagerly, before any
// side effect — spec §7's "input validation is eager" propagation policy.
func Validate(cfg *Config) error {
	if len(cfg.AllowDomains) == 0 {
		return errs.New(errs.KindConfigInvalid, "--allow-domains must name at least one domain")
	}
	if !validLogLevels[cfg.LogLevel] {
		return errs.New(errs.KindConfigInvalid, fmt.Sprintf("unknown log level %q (want debug, info, warn, or error)", cfg.LogLevel))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return errs.New(errs.KindConfigInvalid, fmt.Sprintf("unknown log format %q (want text or json)", cfg.LogFormat))
	}
	if cfg.EnableAPIProxy && cfg.OpenAIKey == "" && cfg.AnthropicKey == "" {
		return errs.New(errs.KindConfigInvalid, "--enable-api-proxy requires --openai-api-key and/or --anthropic-api-key")
	}
	return nil
}
