// Package transfer implements the TransferUnit hierarchy: the objects
// that actually move bytes from a source endpoint to a destination
// endpoint once a TransferPolicy says they may. This is the hot path
// of the bridge; everything else in the module exists to build and
// drive these two types.
package transfer

import (
	"fmt"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
)

// MetricsAware is implemented by every TransferUnit so a Connection
// can tag it with its owning connection id and the bridge core's
// configured metrics.Recorder without widening the Unit contract
// itself (most callers, and all of Unit's own methods, don't care).
type MetricsAware interface {
	SetRecorder(r metrics.Recorder)
	SetConnectionID(id string)
}

// Unit is the contract Connection drives: every SingleTransfer and
// AtomicGroup implements it.
type Unit interface {
	SetActive(active bool)
	SetEpoch(epoch byte)
	CyclicTrigger()
}

func resolveChannel(src endpoint.Endpoint, key pdukey.Key) (pdukey.Resolved, error) {
	id := src.ChannelIDOf(key)
	if id < 0 {
		return pdukey.Resolved{}, fmt.Errorf("transfer: %s has no channel for %s", src.Name(), key)
	}
	return pdukey.Resolved{Robot: key.Robot, ChannelID: id}, nil
}
