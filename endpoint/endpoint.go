// Package endpoint defines the capability contract the transfer engine
// consumes from a transport attachment, plus the registry that looks
// endpoints up by configuration id. It also provides two transports,
// the in-process Memory endpoint and the TCP endpoint, and
// BuildRegistry to construct them from an endpoints config file.
package endpoint

import "github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"

// Status is the result of a recv/send call against an endpoint.
type Status int

const (
	StatusOK Status = iota
	StatusNoEntry
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoEntry:
		return "NO_ENTRY"
	default:
		return "ERROR"
	}
}

// RecvCallback is fired synchronously from ProcessRecvEvents whenever
// new data lands for a subscribed resolved key.
type RecvCallback func(key pdukey.Resolved, data []byte)

// Endpoint is the capability set the transfer engine requires of a
// transport attachment. Implementations must be safe for concurrent
// use by the core thread and any internal delivery goroutines.
type Endpoint interface {
	// SizeOf returns the fixed size in bytes of the named PDU, or 0 if
	// the PDU is not known to this endpoint.
	SizeOf(key pdukey.Key) int

	// ChannelIDOf resolves (robot, pduName) to a stable channel id, or
	// a negative number if the PDU is not known to this endpoint.
	ChannelIDOf(key pdukey.Key) int

	// Recv copies the current value of key into buf, non-destructively
	// (repeated calls observe the same value until the next Send).
	// Returns StatusNoEntry if no value has ever been set.
	Recv(key pdukey.Key, buf []byte) (Status, int, error)

	// Send writes data as the current value of key.
	Send(key pdukey.Key, data []byte) (Status, error)

	// Subscribe registers cb to be invoked from ProcessRecvEvents for
	// every Send targeting key, alongside any callback already
	// registered for key (a source PDU fanned out to several
	// destinations has one TransferUnit, and one Subscribe call, per
	// destination).
	Subscribe(key pdukey.Resolved, cb RecvCallback)

	// ProcessRecvEvents drains pending deliveries and invokes their
	// callbacks on the calling goroutine.
	ProcessRecvEvents()

	// PduNameOf returns the PDU name a resolved key was registered
	// under, or "" if unknown.
	PduNameOf(key pdukey.Resolved) string

	// Name identifies the endpoint for logging.
	Name() string
}

// Container is the capability set the bridge core and builder require
// of an endpoint registry.
type Container interface {
	Initialize() error
	StartAll() error
	IsRunningAll() bool
	Ref(id string) (Endpoint, bool)
	ListEndpointIDs() []string
	LastError() string
}
