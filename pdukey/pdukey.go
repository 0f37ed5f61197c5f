// Package pdukey defines the identifiers used to address a PDU at
// configuration time and at runtime.
//
// A PduKey is how a route is described in the configuration file: a
// robot name plus a PDU name, tagged with a config-local id. A
// ResolvedPduKey is what the bridge actually uses on the hot path,
// once the channel id has been looked up at an endpoint during build.
package pdukey

import "fmt"

// Key is the configuration-level identifier for a PDU. ID is the
// identifier used elsewhere in a config document (pduKeyGroups
// entries, etc); Robot and PduName are the lookup key at an endpoint.
type Key struct {
	ID      string
	Robot   string
	PduName string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Robot, k.PduName)
}

// Resolved is the runtime identifier for a PDU, produced once at
// build time by asking the source endpoint for the channel id of
// (Robot, PduName). It is used both as the subscription key and as
// the state-map key inside policies.
type Resolved struct {
	Robot     string
	ChannelID int
}

func (k Resolved) String() string {
	return fmt.Sprintf("%s#%d", k.Robot, k.ChannelID)
}
