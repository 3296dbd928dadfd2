// Package cmd wires the CLI surface spec §6 describes onto
// internal/config and internal/orchestrator.
//
// Grounded on the teacher's cmd/aibox/cmd/root.go (PersistentPreRunE
// logging/config bootstrap, runtime-autodetect-with-fallback) — but the
// shape collapses to a single command, not aibox's setup/start/stop/doctor
// family: this wrapper's entire lifecycle is one invocation (spec §4.6),
// so there is nothing a second subcommand would do.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentfw/awf/internal/awflog"
	"github.com/agentfw/awf/internal/config"
	"github.com/agentfw/awf/internal/container"
	"github.com/agentfw/awf/internal/engine"
	"github.com/agentfw/awf/internal/orchestrator"
	"github.com/agentfw/awf/internal/spec"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// SetVersionInfo is called from main to inject build-time version info.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
	rootCmd.Version = v
	rootCmd.SetVersionTemplate(fmt.Sprintf("awf version {{.Version}} (commit: %s, built: %s)\n", c, d))
}

// flags mirrors the CLI surface spec §6 names exactly.
type flags struct {
	cfgFile string

	allowDomains     []string
	allowDomainsFile string
	blockDomains     []string
	urlPatterns      []string
	dns              []string
	logLevel         string
	logFormat        string
	keepContainers   bool
	workDir          string
	buildLocal       bool
	imageRegistry    string
	imageTag         string
	agentImage       string
	env              []string
	envAll           bool
	volumes          []string
	containerWorkDir string
	allowFullFS      bool
	tty              bool
	enableHostAccess bool
	allowHostPorts   []string
	enableAPIProxy   bool
	openaiKey        string
	anthropicKey     string
	proxyLogsDir     string
}

var f flags

// exitCode carries the process exit code out of RunE, since cobra's own
// return value is just an error/no-error signal and spec §6 requires
// passing through the agent's full 0-255 range plus 130/143.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "awf -- <cmd> [args...]",
	Short: "Run a command inside an egress-filtered sandbox",
	Long: `awf runs a command inside a sandboxed container whose only network
egress is through a Squid proxy enforcing an explicit domain allowlist, with
a host-level iptables cage as defense in depth.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	rootCmd.Flags().StringVar(&f.cfgFile, "config", "", "config file (default ~/.config/awf/config.yaml)")

	rootCmd.Flags().StringSliceVar(&f.allowDomains, "allow-domains", nil, "comma-separated list of allowed domains (required)")
	rootCmd.Flags().StringVar(&f.allowDomainsFile, "allow-domains-file", "", "file with one allowed domain per line")
	rootCmd.Flags().StringSliceVar(&f.blockDomains, "block-domains", nil, "comma-separated list of blocked domains")
	rootCmd.Flags().StringArrayVar(&f.urlPatterns, "url-pattern", nil, "URL regex enforced post-bump (repeatable)")
	rootCmd.Flags().StringSliceVar(&f.dns, "dns", []string{"8.8.8.8", "8.8.4.4"}, "comma-separated upstream DNS servers")
	rootCmd.Flags().StringVar(&f.logLevel, "log-level", "info", "debug, info, warn, or error")
	rootCmd.Flags().StringVar(&f.logFormat, "log-format", "text", "text or json")
	rootCmd.Flags().BoolVar(&f.keepContainers, "keep-containers", false, "keep the compose stack and workDir after exit")
	rootCmd.Flags().StringVar(&f.workDir, "work-dir", "", "workspace directory for the compose artifacts (default a temp dir)")
	rootCmd.Flags().BoolVar(&f.buildLocal, "build-local", false, "build service images locally instead of pulling them")
	rootCmd.Flags().StringVar(&f.imageRegistry, "image-registry", "ghcr.io/agentfw", "registry used to resolve published images")
	rootCmd.Flags().StringVar(&f.imageTag, "image-tag", "latest", "tag used to resolve published images")
	rootCmd.Flags().StringVar(&f.agentImage, "agent-image", "default", "agent base image ref or preset (default, act)")
	rootCmd.Flags().StringArrayVarP(&f.env, "env", "e", nil, "KEY=VALUE additional agent environment (repeatable)")
	rootCmd.Flags().BoolVar(&f.envAll, "env-all", false, "pass every host environment variable except the fixed exclusion set")
	rootCmd.Flags().StringArrayVarP(&f.volumes, "volume", "v", nil, "HOST:CONTAINER[:ro|rw] explicit volume mount (repeatable)")
	rootCmd.Flags().StringVar(&f.containerWorkDir, "container-work-dir", "", "agent's working directory inside the container")
	rootCmd.Flags().BoolVar(&f.allowFullFS, "allow-full-filesystem-access", false, "bind mount / at /host instead of the curated tree")
	rootCmd.Flags().BoolVar(&f.tty, "tty", false, "allocate a tty for the agent container")
	rootCmd.Flags().BoolVar(&f.enableHostAccess, "enable-host-access", false, "set AWF_ENABLE_HOST_ACCESS=1 in the agent environment")
	rootCmd.Flags().StringSliceVar(&f.allowHostPorts, "allow-host-ports", nil, "comma-separated ports or ranges the proxy permits beyond 80/443")
	rootCmd.Flags().BoolVar(&f.enableAPIProxy, "enable-api-proxy", false, "run the local LLM API proxy service")
	rootCmd.Flags().StringVar(&f.openaiKey, "openai-api-key", "", "OpenAI key for the API proxy")
	rootCmd.Flags().StringVar(&f.anthropicKey, "anthropic-api-key", "", "Anthropic key for the API proxy")
	rootCmd.Flags().StringVar(&f.proxyLogsDir, "proxy-logs-dir", "", "override the proxy access-log directory")

	rootCmd.SetVersionTemplate(fmt.Sprintf("awf version {{.Version}} (commit: %s, built: %s)\n", commit, buildDate))
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func runRoot(cmd *cobra.Command, args []string) error {
	awflog.Setup(f.logFormat, f.logLevel == "debug")

	allowDomains := f.allowDomains
	if f.allowDomainsFile != "" {
		fromFile, err := readDomainsFile(f.allowDomainsFile)
		if err != nil {
			exitCode = 1
			return err
		}
		allowDomains = append(allowDomains, fromFile...)
	}

	additionalEnv, err := parseEnvPairs(f.env)
	if err != nil {
		exitCode = 1
		return err
	}

	agentCmd := ""
	if len(args) > 0 {
		agentCmd = joinShellArgs(args)
	}

	overrides := map[string]any{
		"allow_domains":                allowDomains,
		"block_domains":                f.blockDomains,
		"url_patterns":                 f.urlPatterns,
		"dns_servers":                  f.dns,
		"log_level":                    f.logLevel,
		"log_format":                   f.logFormat,
		"keep_containers":              f.keepContainers,
		"build_local":                  f.buildLocal,
		"image_registry":               f.imageRegistry,
		"image_tag":                    f.imageTag,
		"agent_image":                  f.agentImage,
		"additional_env":               additionalEnv,
		"env_all":                      f.envAll,
		"volume_mounts":                f.volumes,
		"allow_full_filesystem_access": f.allowFullFS,
		"tty":                          f.tty,
		"enable_host_access":           f.enableHostAccess,
		"allow_host_ports":             f.allowHostPorts,
		"enable_api_proxy":             f.enableAPIProxy,
	}
	if agentCmd != "" {
		overrides["agent_cmd"] = agentCmd
	}
	if f.workDir != "" {
		overrides["work_dir"] = f.workDir
	}
	if f.containerWorkDir != "" {
		overrides["container_work_dir"] = f.containerWorkDir
	}
	if f.openaiKey != "" {
		overrides["openai_api_key"] = f.openaiKey
	}
	if f.anthropicKey != "" {
		overrides["anthropic_api_key"] = f.anthropicKey
	}
	if f.proxyLogsDir != "" {
		overrides["proxy_logs_dir"] = f.proxyLogsDir
	}

	cfg, err := config.Load(f.cfgFile, overrides)
	if err != nil {
		exitCode = 1
		return err
	}

	eng, err := engine.Detect(cfg.Runtime)
	if err != nil {
		exitCode = 1
		return err
	}

	workspace, err := container.ValidateWorkspace(".")
	if err != nil {
		exitCode = 1
		return err
	}

	home, err := config.ResolveHomeDir()
	if err != nil {
		exitCode = 1
		return err
	}

	uid := os.Getuid()
	gid := os.Getgid()
	hostEnv := hostEnvMap()

	orch := orchestrator.New(cfg, eng, workspace, home, hostEnv, uid, gid)
	exitCode = orch.Run(context.Background())
	return nil
}

func hostEnvMap() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx >= 0 {
			out[kv[:idx]] = kv[idx+1:]
		}
	}
	return out
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range pairs {
		idx := strings.Index(p, "=")
		if idx < 0 {
			return nil, fmt.Errorf("invalid -e value %q (want KEY=VALUE)", p)
		}
		out[p[:idx]] = p[idx+1:]
	}
	return out, nil
}

func readDomainsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading --allow-domains-file %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// joinShellArgs escapes and joins argv after "--" into the single shell
// string agentCmd runs as (spec §6).
func joinShellArgs(args []string) string {
	escaped := make([]string, len(args))
	for i, a := range args {
		escaped[i] = spec.EscapeShellArg(a)
	}
	return strings.Join(escaped, " ")
}
