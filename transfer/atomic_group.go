package transfer

import (
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/policy"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

type groupMember struct {
	cfgKey   pdukey.Key
	resolved pdukey.Resolved
}

// AtomicGroup moves a set of named PDUs from src to dst as a single
// all-or-nothing frame: none of them are forwarded until every member
// has a fresh arrival, and an epoch mismatch on any member aborts the
// whole commit rather than sending a partial frame.
//
// It is always event-driven; CyclicTrigger is intentionally inert.
type AtomicGroup struct {
	src, dst endpoint.Endpoint
	members  []groupMember
	policy   *policy.Immediate
	ts       timesource.Source

	active          atomic.Bool
	epoch           atomic.Uint32
	epochValidation bool

	commitMu     sync.Mutex
	recorder     metrics.Recorder
	connectionID string
}

// NewAtomicGroup builds an AtomicGroup over cfgKeys, all resolved
// against src. pol must be an Immediate policy constructed with
// atomic=true; every member key is registered with it.
func NewAtomicGroup(src, dst endpoint.Endpoint, cfgKeys []pdukey.Key, pol *policy.Immediate, ts timesource.Source, epochValidation bool) (*AtomicGroup, error) {
	g := &AtomicGroup{
		src:             src,
		dst:             dst,
		policy:          pol,
		ts:              ts,
		epochValidation: epochValidation,
		recorder:        metrics.Noop{},
	}
	g.active.Store(true)

	for _, cfgKey := range cfgKeys {
		resolved, err := resolveChannel(src, cfgKey)
		if err != nil {
			return nil, err
		}
		g.members = append(g.members, groupMember{cfgKey: cfgKey, resolved: resolved})
		pol.AddMemberKey(resolved)
	}

	for _, m := range g.members {
		member := m
		src.Subscribe(member.resolved, func(pdukey.Resolved, []byte) {
			g.onMemberArrived(member.resolved)
		})
	}
	return g, nil
}

func (g *AtomicGroup) SetActive(active bool) { g.active.Store(active) }

func (g *AtomicGroup) SetEpoch(epoch byte) { g.epoch.Store(uint32(epoch)) }

func (g *AtomicGroup) SetRecorder(r metrics.Recorder) { g.recorder = r }

func (g *AtomicGroup) SetConnectionID(id string) { g.connectionID = id }

// CyclicTrigger is a no-op: atomic groups only commit from arrivals.
func (g *AtomicGroup) CyclicTrigger() {}

func (g *AtomicGroup) onMemberArrived(key pdukey.Resolved) {
	if !g.active.Load() {
		return
	}
	g.policy.MarkArrived(key)
	if !g.policy.ShouldTransfer(key, g.ts) {
		return
	}
	g.commit(key)
}

func (g *AtomicGroup) commit(triggerKey pdukey.Resolved) {
	g.commitMu.Lock()
	defer g.commitMu.Unlock()

	buffers := make([][]byte, len(g.members))
	for i, m := range g.members {
		size := g.src.SizeOf(m.cfgKey)
		if size == 0 {
			glog.Warningf("atomic group %s: size unknown for member %s, aborting commit", triggerKey, m.resolved)
			g.abort(triggerKey)
			return
		}
		buf := make([]byte, size)
		status, n, err := g.src.Recv(m.cfgKey, buf)
		if err != nil {
			glog.Warningf("atomic group %s: recv error for member %s: %v, aborting commit", triggerKey, m.resolved, err)
			g.recorder.RecvError(g.connectionID)
			g.abort(triggerKey)
			return
		}
		if status != endpoint.StatusOK {
			glog.V(2).Infof("atomic group %s: member %s not ready, aborting commit", triggerKey, m.resolved)
			g.abort(triggerKey)
			return
		}
		buf = buf[:n]

		if g.epochValidation {
			if len(buf) < 1 {
				glog.Warningf("atomic group %s: member %s payload too short for epoch header, aborting commit", triggerKey, m.resolved)
				g.abort(triggerKey)
				return
			}
			if buf[0] != byte(g.epoch.Load()) {
				// Any member's stale epoch aborts the whole frame.
				g.recorder.TransferDiscardedEpoch(g.connectionID)
				g.abort(triggerKey)
				return
			}
		}
		buffers[i] = buf
	}

	for i, m := range g.members {
		if _, err := g.dst.Send(m.cfgKey, buffers[i]); err != nil {
			glog.Warningf("atomic group %s: send error for member %s: %v", triggerKey, m.resolved, err)
			g.recorder.SendError(g.connectionID)
		} else {
			g.recorder.TransferOK(g.connectionID)
		}
	}
	g.dst.ProcessRecvEvents()
	g.policy.OnTransferred(triggerKey, g.ts)
}

// abort clears arrival state after a failed commit attempt so the
// group waits for a genuinely fresh full set rather than re-trying on
// every subsequent single-member arrival.
func (g *AtomicGroup) abort(triggerKey pdukey.Resolved) {
	glog.V(2).Infof("atomic group %s: commit aborted, rearming", triggerKey)
	g.policy.Reset()
}
