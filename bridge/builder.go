package bridge

import (
	"fmt"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/config"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/policy"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/transfer"
)

// BuildResult is the fallible outcome of Build: exactly one of Core
// or ErrorMessage is set. No error ever crosses the builder boundary
// as a panic.
type BuildResult struct {
	Core         *Core
	ErrorMessage string
}

// OK reports whether Build succeeded.
func (r *BuildResult) OK() bool { return r.ErrorMessage == "" }

func failf(format string, args ...any) *BuildResult {
	return &BuildResult{ErrorMessage: fmt.Sprintf(format, args...)}
}

// Build parses configPath, validates it against ts and endpoints, and
// assembles a Core for nodeName, short-circuiting on the first error.
// The built core records no metrics; use BuildWithMetrics to wire one in.
func Build(configPath, nodeName string, ts timesource.Source, endpoints endpoint.Container) *BuildResult {
	return BuildWithMetrics(configPath, nodeName, ts, endpoints, metrics.Noop{})
}

// BuildWithMetrics is Build plus a metrics.Recorder fanned out to
// every assembled TransferUnit and to the core's own tick/admin counters.
func BuildWithMetrics(configPath, nodeName string, ts timesource.Source, endpoints endpoint.Container, recorder metrics.Recorder) *BuildResult {
	if ts == nil {
		return failf("config: time source is required")
	}
	if endpoints == nil {
		return failf("config: endpoint container is required")
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return failf("%v", err)
	}

	core := NewCore(nodeName, ts, endpoints, endpoints.ListEndpointIDs())

	for _, connCfg := range cfg.Connections {
		if connCfg.NodeID != nodeName {
			continue
		}
		conn, errMsg := buildConnection(cfg, connCfg, ts, endpoints)
		if errMsg != "" {
			return failf("%s", errMsg)
		}
		conn.SetRecorder(recorder)
		core.AddConnection(conn)
	}
	core.SetMetrics(recorder)

	return &BuildResult{Core: core}
}

func buildConnection(cfg *config.BridgeConfig, connCfg config.Connection, ts timesource.Source, endpoints endpoint.Container) (*Connection, string) {
	src, ok := endpoints.Ref(connCfg.Source.EndpointID)
	if !ok {
		return nil, fmt.Sprintf("config: connection %s: unknown source endpoint %q", connCfg.ID, connCfg.Source.EndpointID)
	}
	epochValidation := connCfg.EpochValidation != nil && *connCfg.EpochValidation
	conn := NewConnection(connCfg.NodeID, connCfg.ID, epochValidation)

	// Per-connection policy cache: the same policyId used twice within
	// this connection shares one Throttle/Ticker/Immediate(false)
	// instance, but two different connections never share an instance
	// even if they reference the same policyId.
	cache := make(map[string]policy.Policy)

	for _, destCfg := range connCfg.Destinations {
		dst, ok := endpoints.Ref(destCfg.EndpointID)
		if !ok {
			return nil, fmt.Sprintf("config: connection %s: unknown destination endpoint %q", connCfg.ID, destCfg.EndpointID)
		}

		for _, tp := range connCfg.TransferPdus {
			policyDef, ok := cfg.TransferPolicies[tp.PolicyID]
			if !ok {
				return nil, fmt.Sprintf("config: connection %s: unknown policy %q", connCfg.ID, tp.PolicyID)
			}
			group, ok := cfg.PduKeyGroups[tp.PduKeyGroupID]
			if !ok {
				return nil, fmt.Sprintf("config: connection %s: unknown pdu key group %q", connCfg.ID, tp.PduKeyGroupID)
			}

			if policyDef.Type == "immediate" && policyDef.Atomic != nil && *policyDef.Atomic {
				pol := policy.NewImmediate(true)
				cfgKeys := make([]pdukey.Key, len(group))
				for i, k := range group {
					cfgKeys[i] = pdukey.Key{Robot: k.RobotName, PduName: k.PduName}
				}
				unit, err := transfer.NewAtomicGroup(src, dst, cfgKeys, pol, ts, epochValidation)
				if err != nil {
					return nil, fmt.Sprintf("config: connection %s: %v", connCfg.ID, err)
				}
				conn.AddUnit(unit)
				continue
			}

			pol, ok := cache[tp.PolicyID]
			if !ok {
				built, err := buildPolicy(policyDef)
				if err != nil {
					return nil, fmt.Sprintf("config: connection %s: policy %q: %v", connCfg.ID, tp.PolicyID, err)
				}
				pol = built
				cache[tp.PolicyID] = pol
			}

			for _, k := range group {
				cfgKey := pdukey.Key{Robot: k.RobotName, PduName: k.PduName}
				unit, err := transfer.NewSingleTransfer(src, dst, cfgKey, pol, ts, epochValidation)
				if err != nil {
					return nil, fmt.Sprintf("config: connection %s: %v", connCfg.ID, err)
				}
				conn.AddUnit(unit)
			}
		}
	}

	return conn, ""
}

func buildPolicy(def config.TransferPolicy) (policy.Policy, error) {
	if def.Type != "immediate" && def.Atomic != nil && *def.Atomic {
		// atomic is only meaningful for immediate; a cyclic policy (Ticker)
		// combined with group-commit semantics is rejected at build time
		// rather than silently ignored.
		return nil, fmt.Errorf("atomic is only valid for an immediate policy, got type %q", def.Type)
	}
	switch def.Type {
	case "immediate":
		return policy.NewImmediate(false), nil
	case "throttle":
		if def.IntervalMs == nil || *def.IntervalMs <= 0 {
			return nil, fmt.Errorf("throttle requires intervalMs > 0")
		}
		return policy.NewThrottle(uint64(*def.IntervalMs) * 1000), nil
	case "ticker":
		if def.IntervalMs == nil || *def.IntervalMs <= 0 {
			return nil, fmt.Errorf("ticker requires intervalMs > 0")
		}
		return policy.NewTicker(uint64(*def.IntervalMs) * 1000), nil
	default:
		return nil, fmt.Errorf("unknown policy type %q", def.Type)
	}
}
