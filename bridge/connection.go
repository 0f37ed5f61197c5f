// Package bridge assembles TransferUnits into Connections and drives
// them from a BridgeCore, the single coordinating loop of the data
// plane.
package bridge

import (
	"sync/atomic"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/transfer"
)

// Connection groups the TransferUnits that share a node id, an active
// flag, and an epoch counter. active and epoch are consulted both at
// the connection level (cyclic_trigger short-circuits while inactive)
// and fanned out to every unit, since unit-level callbacks bypass the
// connection layer entirely and must stay in lockstep on their own.
type Connection struct {
	NodeID          string
	ConnectionID    string
	EpochValidation bool

	epoch  atomic.Uint32
	active atomic.Bool
	units  []transfer.Unit
}

// NewConnection builds an empty, active Connection starting at epoch 0.
func NewConnection(nodeID, connectionID string, epochValidation bool) *Connection {
	c := &Connection{
		NodeID:          nodeID,
		ConnectionID:    connectionID,
		EpochValidation: epochValidation,
	}
	c.active.Store(true)
	return c
}

// AddUnit appends u, after syncing it to this connection's current
// epoch and tagging it with this connection's id for metrics. It does
// not change u's epoch-validation setting, which is fixed when u is
// constructed.
func (c *Connection) AddUnit(u transfer.Unit) {
	u.SetEpoch(byte(c.epoch.Load()))
	if ma, ok := u.(transfer.MetricsAware); ok {
		ma.SetConnectionID(c.ConnectionID)
	}
	c.units = append(c.units, u)
}

// SetRecorder fans a metrics.Recorder out to every unit that supports it.
func (c *Connection) SetRecorder(r metrics.Recorder) {
	for _, u := range c.units {
		if ma, ok := u.(transfer.MetricsAware); ok {
			ma.SetRecorder(r)
		}
	}
}

// SetActive stores b and fans it out to every unit.
func (c *Connection) SetActive(b bool) {
	c.active.Store(b)
	for _, u := range c.units {
		u.SetActive(b)
	}
}

// IsActive reports the connection's current active flag.
func (c *Connection) IsActive() bool { return c.active.Load() }

// IncrementEpoch atomically increments epoch, wrapping at 256, and
// fans the new value out to every unit.
func (c *Connection) IncrementEpoch() {
	next := byte(c.epoch.Add(1))
	for _, u := range c.units {
		u.SetEpoch(next)
	}
}

// GetEpoch returns the connection's current epoch.
func (c *Connection) GetEpoch() byte { return byte(c.epoch.Load()) }

// CyclicTrigger is a no-op while inactive; otherwise it fans
// CyclicTrigger out to every unit (cyclic policies evaluate, others
// ignore the call).
func (c *Connection) CyclicTrigger() {
	if !c.active.Load() {
		return
	}
	for _, u := range c.units {
		u.CyclicTrigger()
	}
}
