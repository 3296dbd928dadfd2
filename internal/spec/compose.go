package spec

import (
	"fmt"
	"strings"

	"github.com/agentfw/awf/internal/config"
	"github.com/agentfw/awf/internal/netprovision"
)

// sanitizedPath is the agent's PATH — fixed rather than inherited from the
// host, so a compromised host PATH entry cannot shadow a system binary
// inside the sandbox.
const sanitizedPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Document is an engine-compose v2 document (spec §6, "compose.yaml
// conforms to Compose v2").
type Document struct {
	Services map[string]Service `yaml:"services"`
	Networks map[string]Network `yaml:"networks"`
}

// Network is an externally-managed network reference — C3 provisions it,
// this document only attaches to it.
type Network struct {
	External bool `yaml:"external"`
}

// Build describes a locally-built image context.
type Build struct {
	Context string            `yaml:"context"`
	Args    map[string]string `yaml:"args,omitempty"`
}

// ServiceNetwork pins a service to a fixed address on the awf-net bridge.
type ServiceNetwork struct {
	IPv4Address string `yaml:"ipv4_address"`
}

// HealthCheck is a compose healthcheck block.
type HealthCheck struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout,omitempty"`
	Retries  int      `yaml:"retries,omitempty"`
}

// DependsOn names a compose service_healthy dependency.
type DependsOn struct {
	Condition string `yaml:"condition"`
}

// Service is one compose service entry. Only the fields this spec
// actually emits are modeled — compose's full schema is much larger.
type Service struct {
	Image         string                    `yaml:"image,omitempty"`
	Build         *Build                    `yaml:"build,omitempty"`
	ContainerName string                    `yaml:"container_name"`
	Networks      map[string]ServiceNetwork `yaml:"networks,omitempty"`
	Volumes       []string                  `yaml:"volumes,omitempty"`
	Tmpfs         []string                  `yaml:"tmpfs,omitempty"`
	Environment   map[string]string         `yaml:"environment,omitempty"`
	CapAdd        []string                  `yaml:"cap_add,omitempty"`
	CapDrop       []string                  `yaml:"cap_drop,omitempty"`
	SecurityOpt   []string                  `yaml:"security_opt,omitempty"`
	MemLimit      string                    `yaml:"mem_limit,omitempty"`
	PidsLimit     int                       `yaml:"pids_limit,omitempty"`
	CPUShares     int                       `yaml:"cpu_shares,omitempty"`
	DNS           []string                  `yaml:"dns,omitempty"`
	DNSSearch     []string                  `yaml:"dns_search"`
	HealthCheck   *HealthCheck              `yaml:"healthcheck,omitempty"`
	DependsOn     map[string]DependsOn      `yaml:"depends_on,omitempty"`
	Command       []string                  `yaml:"command,omitempty"`
	TTY           bool                      `yaml:"tty,omitempty"`
	WorkingDir    string                    `yaml:"working_dir,omitempty"`
	BuildArgs     map[string]string         `yaml:"-"`
}

// Input collects everything Build needs beyond the static config.Config —
// paths and host facts resolved earlier in the lifecycle (spec §4.5/§4.6).
type Input struct {
	Cfg          *config.Config
	Net          netprovision.Config
	WorkDir      string // the tool's own artifact directory (proxy.conf, compose.yaml, logs) — hidden from the agent by SecretsBarrierMounts
	Workspace    string // the project directory being mirrored read-write under /host<Workspace>
	ProxyConfDir string // host dir holding proxy.conf
	ProxyLogsDir string
	AgentLogsDir string
	SeccompPath  string
	HostsFile    string
	Home         string
	HostEnv      map[string]string
	UID, GID     int
}

// EscapeShellArg applies POSIX single-quote escaping (spec §6): wraps arg
// in single quotes, turning any embedded `'` into `'\''`.
func EscapeShellArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// doubleDollar doubles every literal `$` in cmd — engine-compose's own
// escape so the inner shell sees a single `$` for legitimate expansion
// (spec §4.5, "command").
func doubleDollar(cmd string) string {
	return strings.ReplaceAll(cmd, "$", "$$")
}

// Build assembles the two-or-three-service compose document (spec §4.5).
func Build(in Input) (*Document, error) {
	agentImage, err := ResolveAgentImage(in.Cfg.AgentImage, in.Cfg.ImageRegistry, in.Cfg.ImageTag)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Services: map[string]Service{},
		Networks: map[string]Network{
			in.Net.Network: {External: true},
		},
	}

	doc.Services["proxy"] = buildProxyService(in)

	agentSvc, err := buildAgentService(in, agentImage)
	if err != nil {
		return nil, err
	}
	doc.Services["agent"] = agentSvc

	if in.Cfg.EnableAPIProxy && (in.Cfg.OpenAIKey != "" || in.Cfg.AnthropicKey != "") {
		doc.Services["api-proxy"] = buildAPIProxyService(in)
		agent := doc.Services["agent"]
		agent.DependsOn["api-proxy"] = DependsOn{Condition: "service_healthy"}
		if in.Cfg.OpenAIKey != "" {
			agent.Environment["OPENAI_BASE_URL"] = "http://api-proxy:10000"
		}
		if in.Cfg.AnthropicKey != "" {
			agent.Environment["ANTHROPIC_BASE_URL"] = "http://api-proxy:10001"
		}
		doc.Services["agent"] = agent
	}

	return doc, nil
}

func buildProxyService(in Input) Service {
	svc := Service{
		ContainerName: "awf-proxy",
		Networks: map[string]ServiceNetwork{
			in.Net.Network: {IPv4Address: in.Net.SquidIP},
		},
		Volumes: []string{
			in.ProxyConfDir + "/proxy.conf:/etc/squid/squid.conf:ro",
			in.ProxyLogsDir + ":/var/log/squid:rw",
		},
		DNSSearch: []string{},
		HealthCheck: &HealthCheck{
			Test:     []string{"CMD", "nc", "-z", "127.0.0.1", "3128"},
			Interval: "5s",
			Retries:  5,
		},
	}
	if in.Cfg.BuildLocal {
		svc.Build = &Build{Context: "./proxy"}
	} else {
		svc.Image = fmt.Sprintf("%s/awf-proxy:%s", in.Cfg.ImageRegistry, in.Cfg.ImageTag)
	}
	return svc
}

func buildAgentService(in Input, agentImage string) (Service, error) {
	volumes, err := agentVolumes(in)
	if err != nil {
		return Service{}, err
	}

	uid, gid := ValidateUID(in.UID, in.GID, hasSudoUID(in.HostEnv))

	env := AgentEnvironment(
		in.HostEnv,
		in.Net.SquidIP, 3128,
		in.Home, sanitizedPath,
		in.Cfg.DNSServers,
		in.WorkDir,
		in.Cfg.EnableHostAccess,
		in.Cfg.AllowHostPorts,
		in.Cfg.EnvAll,
		in.Cfg.AdditionalEnv,
	)

	svc := Service{
		ContainerName: "awf-agent",
		Networks: map[string]ServiceNetwork{
			in.Net.Network: {IPv4Address: in.Net.AgentIP},
		},
		Volumes:     toVolumeStrings(volumes),
		Tmpfs:       toTmpfsStrings(SecretsBarrierMounts(in.WorkDir)),
		Environment: env,
		CapAdd:      AgentCapAdd,
		CapDrop:     AgentCapDrop,
		SecurityOpt: AgentSecurityOpt(in.SeccompPath),
		MemLimit:    AgentLimits.MemLimit,
		PidsLimit:   AgentLimits.PidsLimit,
		CPUShares:   AgentLimits.CPUShares,
		DNS:         in.Cfg.DNSServers,
		DNSSearch:   []string{},
		TTY:         in.Cfg.TTY,
		WorkingDir:  containerWorkDir(in),
		Command:     []string{"/bin/bash", "-c", doubleDollar(in.Cfg.AgentCmd)},
		DependsOn: map[string]DependsOn{
			"proxy": {Condition: "service_healthy"},
		},
		BuildArgs: map[string]string{
			"USER_UID": fmt.Sprintf("%d", uid),
			"USER_GID": fmt.Sprintf("%d", gid),
		},
	}
	if in.Cfg.BuildLocal {
		args := map[string]string{}
		if in.Cfg.AgentImage == "act" {
			args["BASE_IMAGE"] = ActBuildArg
		}
		args["USER_UID"] = svc.BuildArgs["USER_UID"]
		args["USER_GID"] = svc.BuildArgs["USER_GID"]
		svc.Build = &Build{Context: "./agent", Args: args}
	} else {
		svc.Image = agentImage
	}
	return svc, nil
}

func buildAPIProxyService(in Input) Service {
	env := map[string]string{
		"HTTP_PROXY":  squidURL(in.Net.SquidIP, 3128),
		"HTTPS_PROXY": squidURL(in.Net.SquidIP, 3128),
	}
	if in.Cfg.OpenAIKey != "" {
		env["OPENAI_API_KEY"] = in.Cfg.OpenAIKey
	}
	if in.Cfg.AnthropicKey != "" {
		env["ANTHROPIC_API_KEY"] = in.Cfg.AnthropicKey
	}
	return Service{
		ContainerName: "awf-api-proxy",
		Build:         &Build{Context: "./api-proxy"},
		Networks: map[string]ServiceNetwork{
			in.Net.Network: {IPv4Address: in.Net.APIProxyIP},
		},
		Environment: env,
		CapDrop:     []string{"ALL"},
		MemLimit:    APIProxyLimits.MemLimit,
		PidsLimit:   APIProxyLimits.PidsLimit,
		CPUShares:   APIProxyLimits.CPUShares,
		DNSSearch:   []string{},
		HealthCheck: &HealthCheck{
			Test:     []string{"CMD", "nc", "-z", "127.0.0.1", "10000"},
			Interval: "5s",
			Retries:  5,
		},
	}
}

func agentVolumes(in Input) ([]Mount, error) {
	engineSocket := "/var/run/docker.sock"
	credentialFiles := []string{in.Home + "/.docker/config.json", in.Home + "/.config/gcloud", in.Home + "/.aws/credentials"}

	var mounts []Mount
	switch {
	case len(in.Cfg.VolumeMounts) > 0:
		explicit, err := ExplicitVolumePolicy(in.Cfg.VolumeMounts, in.HostsFile, in.ProxyLogsDir, in.AgentLogsDir)
		if err != nil {
			return nil, err
		}
		mounts = explicit
	case in.Cfg.AllowFullFS:
		mounts = FullFSVolumePolicy(engineSocket)
	default:
		mounts = DefaultVolumePolicy(in.Workspace, in.Home, in.HostsFile, engineSocket, credentialFiles)
	}
	return mounts, nil
}

func toVolumeStrings(mounts []Mount) []string {
	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		if m.Type == "tmpfs" {
			continue
		}
		entry := m.Source + ":" + m.Target
		if m.ReadOnly {
			entry += ":ro"
		}
		out = append(out, entry)
	}
	return out
}

func toTmpfsStrings(mounts []Mount) []string {
	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, fmt.Sprintf("%s:size=%s,noexec,nosuid", m.Target, m.TmpfsSize))
	}
	return out
}

// containerWorkDir resolves the agent's working_dir (spec §3 Config
// "containerWorkDir"): an explicit override if given, else the
// workspace mirrored under /host.
func containerWorkDir(in Input) string {
	if in.Cfg.ContainerWorkDir != "" {
		return in.Cfg.ContainerWorkDir
	}
	return "/host" + in.Workspace
}

func hasSudoUID(hostEnv map[string]string) bool {
	_, ok := hostEnv["SUDO_UID"]
	return ok
}
