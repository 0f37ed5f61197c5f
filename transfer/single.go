package transfer

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/policy"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

// SingleTransfer moves one named PDU from src to dst whenever its
// policy allows it, gated by epoch validation when configured.
type SingleTransfer struct {
	src, dst endpoint.Endpoint
	cfgKey   pdukey.Key
	resolved pdukey.Resolved
	policy   policy.Policy
	ts       timesource.Source

	active          atomic.Bool
	epoch           atomic.Uint32
	epochValidation bool

	recorder     metrics.Recorder
	connectionID string
}

// NewSingleTransfer builds a SingleTransfer for cfgKey, subscribing
// the right callback on src depending on whether pol is cyclic.
func NewSingleTransfer(src, dst endpoint.Endpoint, cfgKey pdukey.Key, pol policy.Policy, ts timesource.Source, epochValidation bool) (*SingleTransfer, error) {
	resolved, err := resolveChannel(src, cfgKey)
	if err != nil {
		return nil, err
	}
	u := &SingleTransfer{
		src:             src,
		dst:             dst,
		cfgKey:          cfgKey,
		resolved:        resolved,
		policy:          pol,
		ts:              ts,
		epochValidation: epochValidation,
		recorder:        metrics.Noop{},
	}
	u.active.Store(true)

	if pol.IsCyclic() {
		// Inert: cyclic policies are driven exclusively by CyclicTrigger.
		src.Subscribe(resolved, func(pdukey.Resolved, []byte) {})
	} else {
		src.Subscribe(resolved, func(pdukey.Resolved, []byte) {
			u.tryTransfer()
		})
	}

	if imm, ok := pol.(*policy.Immediate); ok && imm.Atomic {
		imm.AddMemberKey(resolved)
	}
	return u, nil
}

func (u *SingleTransfer) SetActive(active bool) { u.active.Store(active) }

func (u *SingleTransfer) SetEpoch(epoch byte) { u.epoch.Store(uint32(epoch)) }

func (u *SingleTransfer) SetRecorder(r metrics.Recorder) { u.recorder = r }

func (u *SingleTransfer) SetConnectionID(id string) { u.connectionID = id }

// CyclicTrigger fires try_transfer only for cyclic policies (Ticker).
func (u *SingleTransfer) CyclicTrigger() {
	if u.policy.IsCyclic() {
		u.tryTransfer()
	}
}

func (u *SingleTransfer) tryTransfer() {
	if !u.active.Load() {
		return
	}
	if !u.policy.ShouldTransfer(u.resolved, u.ts) {
		return
	}

	size := u.src.SizeOf(u.cfgKey)
	if size == 0 {
		glog.V(2).Infof("transfer %s: size unknown, skipping", u.resolved)
		return
	}

	buf := make([]byte, size)
	status, n, err := u.src.Recv(u.cfgKey, buf)
	if err != nil {
		glog.Warningf("transfer %s: recv error: %v", u.resolved, err)
		u.recorder.RecvError(u.connectionID)
		return
	}
	if status != endpoint.StatusOK {
		glog.V(2).Infof("transfer %s: recv status %v, skipping", u.resolved, status)
		return
	}
	buf = buf[:n]

	if u.epochValidation {
		if len(buf) < 1 {
			glog.Warningf("transfer %s: payload too short for epoch header", u.resolved)
			return
		}
		if buf[0] != byte(u.epoch.Load()) {
			// Silent discard: stale frame from a previous epoch.
			u.recorder.TransferDiscardedEpoch(u.connectionID)
			return
		}
	}

	if _, err := u.dst.Send(u.cfgKey, buf); err != nil {
		glog.Warningf("transfer %s: send error: %v", u.resolved, err)
		u.recorder.SendError(u.connectionID)
		return
	}
	u.recorder.TransferOK(u.connectionID)
	u.policy.OnTransferred(u.resolved, u.ts)
}
