// Package netprovision ensures the firewall's bridge network exists
// (spec §4.3, C3). Grounded on the teacher's internal/network/nftables.go
// config-struct-with-defaults idiom (NFTablesConfig/NewNFTablesManager),
// retargeted from "render and apply an nftables ruleset" to "ensure the
// container engine has a bridge network with fixed addressing" — the
// network itself, not a packet-filter ruleset, which is C4's job.
package netprovision

import "context"

// engineClient is the subset of *engine.Engine that Provisioner needs —
// narrowed to an interface so tests can substitute a fake instead of
// shelling out to a real container engine.
type engineClient interface {
	NetworkExists(ctx context.Context, name string) bool
	NetworkCreate(ctx context.Context, name, subnet, bridgeName string) error
	NetworkRemove(ctx context.Context, name string) error
}

// Config is the constant-per-release network layout (spec §3
// NetworkConfig). It is deliberately fixed: the host filter, the compose
// spec, and the in-container entrypoint all reference these values
// directly and must agree.
type Config struct {
	Subnet     string
	Bridge     string
	Network    string
	SquidIP    string
	AgentIP    string
	APIProxyIP string
}

// Default is the release-constant NetworkConfig (spec §3).
var Default = Config{
	Subnet:     "172.30.0.0/24",
	Bridge:     "fw-bridge",
	Network:    "awf-net",
	SquidIP:    "172.30.0.10",
	AgentIP:    "172.30.0.20",
	APIProxyIP: "172.30.0.30",
}

// Provisioner ensures the bridge network exists via the container engine.
type Provisioner struct {
	eng engineClient
	cfg Config
}

// New returns a Provisioner bound to cfg (use Default unless a test needs
// a distinct subnet/bridge).
func New(eng engineClient, cfg Config) *Provisioner {
	return &Provisioner{eng: eng, cfg: cfg}
}

// Ensure is idempotent: if Config.Network already exists, it returns
// immediately; otherwise it creates a bridge network with the fixed
// subnet and bridge device name. It never deletes on the happy path —
// the network is reusable across invocations (spec §4.3).
func (p *Provisioner) Ensure(ctx context.Context) (Config, error) {
	if p.eng.NetworkExists(ctx, p.cfg.Network) {
		return p.cfg, nil
	}
	if err := p.eng.NetworkCreate(ctx, p.cfg.Network, p.cfg.Subnet, p.cfg.Bridge); err != nil {
		return Config{}, err
	}
	return p.cfg, nil
}

// Remove is a separate, best-effort teardown. It is not invoked by the
// default lifecycle — the network outlives any single invocation so
// repeated runs reuse it (spec §4.3).
func (p *Provisioner) Remove(ctx context.Context) error {
	return p.eng.NetworkRemove(ctx, p.cfg.Network)
}
