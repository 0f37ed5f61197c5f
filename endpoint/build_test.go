package endpoint_test

import (
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/config"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
)

func TestBuildRegistryFromMemoryEndpoints(t *testing.T) {
	file := &config.EndpointsFile{
		Endpoints: []config.EndpointDef{
			{
				ID:   "src",
				Mode: "memory",
				Pdus: []config.EndpointPdu{{RobotName: "Drone", PduName: "pos", Size: 8}},
			},
			{
				ID:   "dst",
				Mode: "memory",
				Pdus: []config.EndpointPdu{{RobotName: "Drone", PduName: "pos", Size: 8}},
			},
		},
	}

	reg, err := endpoint.BuildRegistry(file)
	if err != nil {
		t.Fatal(err)
	}

	src, ok := reg.Ref("src")
	if !ok {
		t.Fatal("expected src endpoint to be registered")
	}
	if got := src.SizeOf(pdukey.Key{Robot: "Drone", PduName: "pos"}); got != 8 {
		t.Fatalf("SizeOf = %d, want 8", got)
	}

	ids := reg.ListEndpointIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 endpoint ids, got %d", len(ids))
	}
}

func TestBuildRegistryRejectsUnknownMode(t *testing.T) {
	file := &config.EndpointsFile{
		Endpoints: []config.EndpointDef{{ID: "x", Mode: "carrier-pigeon"}},
	}
	if _, err := endpoint.BuildRegistry(file); err == nil {
		t.Fatal("expected unknown endpoint mode to error")
	}
}
