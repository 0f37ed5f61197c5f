package endpoint

import (
	"fmt"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/config"
)

// BuildRegistry materializes a Registry from an endpoints config file:
// one Memory or TCP endpoint per entry, each pre-declared with its
// PDU table. TCP entries with a ListenAddr start listening; entries
// with a DialAddr dial out. Both may be set on the same entry for a
// peer that both serves and connects.
func BuildRegistry(file *config.EndpointsFile) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range file.Endpoints {
		switch def.Mode {
		case "memory":
			m := NewMemory(def.ID)
			for _, p := range def.Pdus {
				m.Declare(p.RobotName, p.PduName, p.Size)
			}
			reg.Add(def.ID, m)

		case "tcp":
			tc := NewTCP(def.ID)
			for _, p := range def.Pdus {
				tc.Declare(p.RobotName, p.PduName, p.Size)
			}
			if def.ListenAddr != "" {
				if err := tc.Listen(def.ListenAddr); err != nil {
					return nil, err
				}
			}
			if def.DialAddr != "" {
				if err := tc.DialPeer(def.DialAddr); err != nil {
					return nil, err
				}
			}
			reg.Add(def.ID, tc)

		default:
			return nil, fmt.Errorf("endpoint %s: unknown mode %q", def.ID, def.Mode)
		}
	}
	return reg, nil
}
