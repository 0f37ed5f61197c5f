package bridge_test

import (
	"bytes"
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/bridge"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/policy"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/transfer"
)

func newTestCore(t *testing.T) (*bridge.Core, *endpoint.Memory, *endpoint.Memory, pdukey.Key, *timesource.Virtual) {
	t.Helper()
	src := endpoint.NewMemory("src")
	dst := endpoint.NewMemory("dst")
	src.Declare("Drone", "pos", 4)
	dst.Declare("Drone", "pos", 4)
	key := pdukey.Key{Robot: "Drone", PduName: "pos"}

	registry := endpoint.NewRegistry()
	registry.Add("src", src)
	registry.Add("dst", dst)

	ts := timesource.NewVirtual(0)
	core := bridge.NewCore("node-a", ts, registry, []string{"src", "dst"})
	return core, src, dst, key, ts
}

func TestCoreCyclicTriggerRequiresStart(t *testing.T) {
	core, src, _, key, ts := newTestCore(t)
	unit, err := transfer.NewSingleTransfer(src, endpoint.NewMemory("unused"), key, policy.NewImmediate(false), ts, false)
	_ = unit
	if err != nil {
		t.Fatalf("expected construction to resolve against src only, so an undeclared dst must not fail it: %v", err)
	}

	if core.CyclicTrigger() {
		t.Fatal("expected CyclicTrigger to return false before Start")
	}
}

func TestCoreDrivesEventDrivenConnection(t *testing.T) {
	core, src, dst, key, ts := newTestCore(t)
	unit, err := transfer.NewSingleTransfer(src, dst, key, policy.NewImmediate(false), ts, false)
	if err != nil {
		t.Fatal(err)
	}
	conn := bridge.NewConnection("node-a", "conn-1", false)
	conn.AddUnit(unit)
	core.AddConnection(conn)

	if !core.Start() {
		t.Fatal("expected first Start to succeed")
	}
	if core.Start() {
		t.Fatal("expected second Start to be a no-op returning false")
	}

	src.Send(key, []byte{7, 7, 7, 7})
	if !core.CyclicTrigger() {
		t.Fatal("expected CyclicTrigger to return true while running")
	}

	buf := make([]byte, 4)
	status, n, _ := dst.Recv(key, buf)
	if status != endpoint.StatusOK || !bytes.Equal(buf[:n], []byte{7, 7, 7, 7}) {
		t.Fatalf("expected the tick's process_recv_events to have delivered the frame, status=%v buf=%v", status, buf[:n])
	}

	core.Stop()
	if core.CyclicTrigger() {
		t.Fatal("expected CyclicTrigger to return false after Stop")
	}
}

func TestCoreAdminLookupsByConnectionID(t *testing.T) {
	core, src, dst, key, ts := newTestCore(t)
	unit, err := transfer.NewSingleTransfer(src, dst, key, policy.NewImmediate(false), ts, false)
	if err != nil {
		t.Fatal(err)
	}
	conn := bridge.NewConnection("node-a", "conn-1", false)
	conn.AddUnit(unit)
	core.AddConnection(conn)
	core.Start()

	if !core.SetConnectionActive("conn-1", false) {
		t.Fatal("expected known connection id to succeed")
	}
	if core.SetConnectionActive("does-not-exist", false) {
		t.Fatal("expected unknown connection id to fail")
	}

	if !core.IncrementConnectionEpoch("conn-1") {
		t.Fatal("expected known connection id to succeed")
	}
	epoch, err := core.GetConnectionEpoch("conn-1")
	if err != nil || epoch != 1 {
		t.Fatalf("expected epoch 1, got %d err=%v", epoch, err)
	}
	if _, err := core.GetConnectionEpoch("does-not-exist"); err == nil {
		t.Fatal("expected unknown connection id to error")
	}
}
