// Package orchestrator drives the firewall wrapper's lifecycle state
// machine (spec §4.6, C6): INIT writes the workspace layout and brings
// the compose stack up, RUNNING streams the agent's logs while waiting
// for its exit, STOPPING classifies denials and tears everything down.
//
// Grounded on the teacher's cmd/aibox/cmd/start.go RunE shape (validate
// workspace early, then provision, then launch) and its
// cmd/aibox-llm-proxy/main.go signal-channel idiom — but the bulk of
// start.go (policy hierarchy, credentials broker, dotfiles sync, toolpack
// installer) has no home here: this wrapper provisions a network, a host
// firewall, and a two-or-three-service compose stack, not a single
// long-lived dev sandbox.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/agentfw/awf/internal/artifact"
	"github.com/agentfw/awf/internal/assets"
	"github.com/agentfw/awf/internal/config"
	"github.com/agentfw/awf/internal/container"
	"github.com/agentfw/awf/internal/denial"
	"github.com/agentfw/awf/internal/domain"
	"github.com/agentfw/awf/internal/engine"
	"github.com/agentfw/awf/internal/errs"
	"github.com/agentfw/awf/internal/hostfilter"
	"github.com/agentfw/awf/internal/netprovision"
	"github.com/agentfw/awf/internal/proxyconf"
	"github.com/agentfw/awf/internal/spec"
)

// State is one node of the lifecycle state machine (spec §4.6).
type State string

const (
	StateInit     State = "init"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateDone     State = "done"
)

// Orchestrator owns one invocation's workspace layout, provisioned
// network, host filter, and compose stack. It is not safe to reuse
// across invocations — spec §5 treats the host filter as process-global
// state a single orchestrator holds for the run's duration.
type Orchestrator struct {
	cfg       *config.Config
	eng       *engine.Engine
	workspace string
	home      string
	hostEnv   map[string]string
	uid, gid  int

	workDir      string
	proxyLogsDir string
	agentLogsDir string
	composeFile  string
	hostsFile    string
	seccompPath  string
	ts           int64

	ruleset domain.Ruleset
	hf      *hostfilter.Installer

	mu    sync.Mutex
	state State

	cleanupOnce sync.Once
}

// New validates nothing by itself — call Run, which performs the eager
// validation spec §7 requires before any side effect.
func New(cfg *config.Config, eng *engine.Engine, workspace, home string, hostEnv map[string]string, uid, gid int) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		eng:       eng,
		workspace: workspace,
		home:      home,
		hostEnv:   hostEnv,
		uid:       uid,
		gid:       gid,
		state:     StateInit,
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// State reports the current lifecycle node.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run executes the full lifecycle and returns the process exit code
// (spec §6, "Exit codes"): the agent's own code on a normal finish, 130
// on SIGINT, 143 on SIGTERM, 1 on any orchestration error.
func (o *Orchestrator) Run(ctx context.Context) int {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		code int
		err  error
	}
	doneCh := make(chan outcome, 1)
	go func() {
		code, err := o.runToCompletion(runCtx)
		doneCh <- outcome{code, err}
	}()

	select {
	case sig := <-sigCh:
		slog.Warn("received signal, stopping", "signal", sig.String())
		cancel()
		go func() {
			// A second signal during cleanup is absorbed: best-effort
			// completion beats an instant abort, which would leak the
			// host-filter chain (spec §5, "Cancellation semantics").
			<-sigCh
		}()
		<-doneCh
		o.cleanup()
		if sig == syscall.SIGTERM {
			return 143
		}
		return 130
	case res := <-doneCh:
		if res.err != nil {
			slog.Error("orchestration failed", "error", res.err)
			o.cleanup()
			return 1
		}
		o.cleanup()
		return res.code
	}
}

// runToCompletion performs C1-C7 and the RUNNING join, returning the
// agent's exit code. A non-zero agent exit is not itself an error (spec
// §7, "DomainBlocked is not itself an error") — only infra failures
// (ConfigInvalid, PermissionDenied, EngineUnavailable, ProxyUnhealthy)
// are returned as err.
func (o *Orchestrator) runToCompletion(ctx context.Context) (int, error) {
	if err := o.init(ctx); err != nil {
		return -1, err
	}

	o.setState(StateRunning)
	exitCode, err := o.runAgent(ctx)
	if err != nil {
		return -1, err
	}

	o.setState(StateStopping)
	o.reportDenials(exitCode)

	return exitCode, nil
}

// init performs every side-effecting setup step: deriving the ruleset,
// writing the workspace layout, provisioning the network and host
// filter, force-removing stale containers, and bringing the compose
// stack up.
func (o *Orchestrator) init(ctx context.Context) error {
	ruleset, err := domain.Derive(o.cfg.AllowDomains, o.cfg.BlockDomains)
	if err != nil {
		return err
	}
	o.ruleset = ruleset

	hostPortRanges, err := parsePortRanges(o.cfg.AllowHostPorts)
	if err != nil {
		return err
	}
	if err := proxyconf.ValidateHostPorts(hostPortRanges); err != nil {
		return err
	}

	o.ts = time.Now().Unix()
	if err := o.layoutWorkspace(ruleset, hostPortRanges); err != nil {
		return err
	}

	net, err := netprovision.New(o.eng, netprovision.Default).Ensure(ctx)
	if err != nil {
		return err
	}

	o.hf = hostfilter.New(hostfilter.Config{
		Bridge:     net.Bridge,
		SquidIP:    net.SquidIP,
		SquidPort:  3128,
		DNSServers: o.cfg.DNSServers,
	})
	if err := o.hf.Install(); err != nil {
		return err
	}

	apiProxyEnabled := o.cfg.EnableAPIProxy && (o.cfg.OpenAIKey != "" || o.cfg.AnthropicKey != "")
	for _, name := range container.AllNames(apiProxyEnabled) {
		o.eng.ContainerRemoveForce(ctx, name)
	}

	doc, err := spec.Build(spec.Input{
		Cfg:          o.cfg,
		Net:          net,
		WorkDir:      o.workDir,
		Workspace:    o.workspace,
		ProxyConfDir: o.workDir,
		ProxyLogsDir: o.proxyLogsDir,
		AgentLogsDir: o.agentLogsDir,
		SeccompPath:  o.seccompPath,
		HostsFile:    o.hostsFile,
		Home:         o.home,
		HostEnv:      o.hostEnv,
		UID:          o.uid,
		GID:          o.gid,
	})
	if err != nil {
		return err
	}
	if err := o.writeComposeFile(doc); err != nil {
		return err
	}

	if err := o.eng.ComposeUp(ctx, o.composeFile); err != nil {
		// A dependency-health failure almost always means the proxy
		// rejected startup because proxy.conf itself is malformed, or
		// the agent's first outbound call was denied before the
		// healthcheck settled. Re-read whatever access log exists and
		// fold the likely cause into the error (spec §4.6, "Startup
		// ordering").
		return o.enrichComposeUpFailure(err)
	}

	return nil
}

func (o *Orchestrator) enrichComposeUpFailure(cause error) error {
	records, classifyErr := denial.Classify(o.accessLogPath())
	if classifyErr != nil || len(records) == 0 {
		return errs.Wrap(errs.KindProxyUnhealthy, "compose up failed", cause)
	}
	classified := denial.ClassifyAgainstAllowlist(records, o.ruleset, o.allowHostPortSet())
	msg := "compose up failed, likely a denied request during the health check"
	if len(classified) > 0 {
		msg += fmt.Sprintf(": %s", classified[0].Suggestion)
	}
	return errs.Wrap(errs.KindProxyUnhealthy, msg, cause)
}

// runAgent streams the agent's own stdout/stderr to this process's own
// until the container exits, concurrently with waiting for its exit
// code, and joins both (spec §4.6, "Concurrent subtasks in RUNNING"):
// neither task cancels the other.
func (o *Orchestrator) runAgent(ctx context.Context) (int, error) {
	var g errgroup.Group

	g.Go(func() error {
		if err := o.eng.ComposeLogsFollow(ctx, o.composeFile, "agent"); err != nil {
			slog.Debug("log pump ended", "error", err)
		}
		return nil
	})

	var exitCode int
	g.Go(func() error {
		code, err := o.eng.Wait(ctx, container.AgentName)
		if err != nil {
			return err
		}
		exitCode = code
		return nil
	})

	if err := g.Wait(); err != nil {
		return -1, err
	}
	return exitCode, nil
}

// reportDenials joins C7's parsed denials against the allowlist and logs
// a remediation suggestion for each on a non-zero agent exit (spec
// §4.6, "Denial reporting"). It never returns an error: a denial is a
// warning, not an orchestration failure.
func (o *Orchestrator) reportDenials(agentExitCode int) {
	if agentExitCode == 0 {
		return
	}
	records, err := denial.Classify(o.accessLogPath())
	if err != nil {
		slog.Debug("reading access log for denial report failed", "error", err)
		return
	}
	classified := denial.ClassifyAgainstAllowlist(records, o.ruleset, o.allowHostPortSet())
	if len(classified) == 0 {
		slog.Warn("agent exited non-zero with no denied requests found", "exit_code", agentExitCode)
		return
	}
	for _, c := range classified {
		host := c.Record.Host
		if c.Record.Port != nil {
			host = fmt.Sprintf("%s:%d", host, *c.Record.Port)
		}
		slog.Warn("request denied", "host", host, "reason", c.Reason, "suggestion", c.Suggestion)
	}
}

func (o *Orchestrator) accessLogPath() string {
	return filepath.Join(o.proxyLogsDir, "access.log")
}

func (o *Orchestrator) allowHostPortSet() map[int]bool {
	out := map[int]bool{}
	ranges, err := parsePortRanges(o.cfg.AllowHostPorts)
	if err != nil {
		return out
	}
	for _, r := range ranges {
		for p := r.Start; p <= r.End; p++ {
			out[p] = true
		}
	}
	return out
}

// cleanup runs performCleanup at most once regardless of whether it was
// reached via the happy path, an error, or a signal (spec §4.6,
// "Cleanup contract... idempotent").
func (o *Orchestrator) cleanup() {
	o.cleanupOnce.Do(o.performCleanup)
}

// performCleanup stops containers (unless keepContainers), removes the
// host-filter chain, persists logs, then deletes workDir — in that
// order, exactly once, and never itself raises (spec §4.6).
func (o *Orchestrator) performCleanup() {
	o.setState(StateStopping)
	ctx := context.Background()

	if o.composeFile != "" && !o.cfg.KeepContainers {
		if err := o.eng.ComposeDown(ctx, o.composeFile); err != nil {
			slog.Warn("compose down failed during cleanup", "error", err)
		}
	}

	if o.hf != nil {
		o.hf.Cleanup()
	}

	if o.workDir != "" {
		paths, err := artifact.Persist(o.agentLogsDir, o.proxyLogsDir, container.ProxyName, o.ts)
		if err != nil {
			slog.Warn("persisting logs failed", "error", err)
		} else {
			slog.Info("logs persisted", "agent_logs", paths.AgentLogsDir, "proxy_logs", paths.ProxyLogsDir)
		}
	}

	if o.workDir != "" {
		if o.cfg.KeepContainers {
			slog.Info("keeping work dir", "path", o.workDir)
		} else if err := os.RemoveAll(o.workDir); err != nil {
			slog.Warn("removing work dir failed", "error", err)
		}
	}

	o.setState(StateDone)
}

// layoutWorkspace creates workDir (spec §3, WorkspaceLayout) and writes
// proxy.conf, the seccomp profile, and the pre-resolved hosts file. The
// compose file itself is written later, once spec.Build has resolved
// the agent image.
func (o *Orchestrator) layoutWorkspace(ruleset domain.Ruleset, hostPortRanges []proxyconf.PortRange) error {
	workDir := o.cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "awf-"+uuid.NewString())
	}
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "creating work dir", err)
	}
	o.workDir = workDir

	o.proxyLogsDir = o.cfg.ProxyLogsDir
	if o.proxyLogsDir == "" {
		o.proxyLogsDir = filepath.Join(workDir, "proxy-logs")
	}
	if err := os.MkdirAll(o.proxyLogsDir, 0o777); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "creating proxy logs dir", err)
	}

	o.agentLogsDir = filepath.Join(workDir, "agent-logs")
	if err := os.MkdirAll(o.agentLogsDir, 0o777); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "creating agent logs dir", err)
	}

	chrootDir := filepath.Join(workDir, "chroot-"+uuid.NewString()[:8])
	if err := os.MkdirAll(chrootDir, 0o700); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "creating chroot dir", err)
	}
	o.hostsFile = filepath.Join(chrootDir, "hosts")
	if err := spec.WritePreResolvedHosts(o.hostsFile, ruleset.Plain); err != nil {
		return err
	}

	o.seccompPath = filepath.Join(workDir, "seccomp.json")
	if err := assets.WriteSeccompProfile(o.seccompPath); err != nil {
		return err
	}

	mcpLogsDir := "/tmp/gh-aw/mcp-logs"
	if err := os.MkdirAll(mcpLogsDir, 0o777); err != nil {
		slog.Warn("creating shared mcp-logs dir failed", "error", err)
	}

	proxyCfg := proxyconf.DefaultConfig()
	proxyCfg.Ruleset = ruleset
	proxyCfg.DNSServers = o.cfg.DNSServers
	proxyCfg.AllowHostPorts = hostPortRanges
	proxyCfg.LogPath = "/var/log/squid/access.log"
	proxyCfg.URLPatterns = o.cfg.URLPatterns

	proxyConfText := proxyconf.NewManager(proxyCfg).GenerateConfig()
	if err := os.WriteFile(filepath.Join(workDir, "proxy.conf"), []byte(proxyConfText), 0o600); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "writing proxy.conf", err)
	}

	return nil
}

func (o *Orchestrator) writeComposeFile(doc *spec.Document) error {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "marshaling compose document", err)
	}
	path := filepath.Join(o.workDir, "compose.yaml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "writing compose.yaml", err)
	}
	o.composeFile = path
	return nil
}

func parsePortRanges(raw []string) ([]proxyconf.PortRange, error) {
	out := make([]proxyconf.PortRange, 0, len(raw))
	for _, r := range raw {
		pr, err := proxyconf.ParsePortRange(r)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}
