package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

// Core is the single coordinating loop of a bridge instance: one
// CyclicTrigger call drains every endpoint's receive queue (firing
// event-driven policies synchronously) and then ticks every
// connection (firing cyclic policies).
type Core struct {
	NodeName string

	running     atomic.Bool
	ts          timesource.Source
	endpoints   endpoint.Container
	endpointIDs []string

	connections []*Connection
	metrics     metrics.Recorder
}

// NewCore builds a stopped Core. endpointIDs is the full set of
// endpoint ids CyclicTrigger must pump process_recv_events on every
// tick, independent of which connections reference them.
func NewCore(nodeName string, ts timesource.Source, endpoints endpoint.Container, endpointIDs []string) *Core {
	return &Core{
		NodeName:    nodeName,
		ts:          ts,
		endpoints:   endpoints,
		endpointIDs: endpointIDs,
		metrics:     metrics.Noop{},
	}
}

// SetMetrics installs r as the core's recorder and fans it out to
// every connection added so far. Connections added afterward pick it
// up from Builder at construction time.
func (core *Core) SetMetrics(r metrics.Recorder) {
	core.metrics = r
	for _, c := range core.connections {
		c.SetRecorder(r)
	}
}

// AddConnection appends c. Only valid before Start.
func (core *Core) AddConnection(c *Connection) {
	core.connections = append(core.connections, c)
}

// Start flips running from false to true; a second call is a no-op.
func (core *Core) Start() bool {
	return core.running.CompareAndSwap(false, true)
}

// Stop cooperatively halts the driver loop: the in-flight
// CyclicTrigger call, if any, completes; the next one returns false.
func (core *Core) Stop() {
	core.running.Store(false)
}

// IsRunning reports whether Start has been called without a matching Stop.
func (core *Core) IsRunning() bool { return core.running.Load() }

// CyclicTrigger drains every endpoint's receive queue, then ticks
// every connection, and reports whether the core is still running so
// an outer `for core.CyclicTrigger() { ts.SleepDelta() }` loop knows
// when to exit.
func (core *Core) CyclicTrigger() bool {
	if !core.running.Load() {
		return false
	}
	core.metrics.Tick()

	for _, id := range core.endpointIDs {
		ep, ok := core.endpoints.Ref(id)
		if !ok {
			glog.Warningf("bridge core %s: endpoint %q not found during tick", core.NodeName, id)
			continue
		}
		ep.ProcessRecvEvents()
	}

	for _, c := range core.connections {
		c.CyclicTrigger()
	}
	return true
}

// Run is the outer daemon loop: while CyclicTrigger returns true,
// sleep for the time source's delta. It blocks until Stop is called
// from another goroutine (typically a signal handler).
func (core *Core) Run() {
	for core.CyclicTrigger() {
		core.ts.SleepDelta()
	}
}

func (core *Core) findConnection(id string) (*Connection, bool) {
	for _, c := range core.connections {
		if c.ConnectionID == id {
			return c, true
		}
	}
	return nil, false
}

// SetConnectionActive looks connectionID up by id and sets its active
// flag; returns false if the id is unknown.
func (core *Core) SetConnectionActive(connectionID string, active bool) bool {
	c, ok := core.findConnection(connectionID)
	if !ok {
		return false
	}
	c.SetActive(active)
	core.metrics.AdminOp("set_connection_active")
	return true
}

// GetConnectionEpoch returns connectionID's current epoch, or an error
// if the id is unknown.
func (core *Core) GetConnectionEpoch(connectionID string) (byte, error) {
	c, ok := core.findConnection(connectionID)
	if !ok {
		return 0, fmt.Errorf("bridge core %s: unknown connection %q", core.NodeName, connectionID)
	}
	return c.GetEpoch(), nil
}

// IncrementConnectionEpoch increments connectionID's epoch and fans
// it out to every unit; returns false if the id is unknown.
func (core *Core) IncrementConnectionEpoch(connectionID string) bool {
	c, ok := core.findConnection(connectionID)
	if !ok {
		return false
	}
	c.IncrementEpoch()
	core.metrics.AdminOp("increment_connection_epoch")
	return true
}
