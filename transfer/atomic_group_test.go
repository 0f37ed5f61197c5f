package transfer_test

import (
	"bytes"
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/policy"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/transfer"
)

func declareGroup(t *testing.T, src, dst *endpoint.Memory, names ...string) []pdukey.Key {
	t.Helper()
	keys := make([]pdukey.Key, len(names))
	for i, name := range names {
		src.Declare("Drone", name, 4)
		dst.Declare("Drone", name, 4)
		keys[i] = pdukey.Key{Robot: "Drone", PduName: name}
	}
	return keys
}

func TestAtomicGroupWaitsForAllMembers(t *testing.T) {
	src := endpoint.NewMemory("src")
	dst := endpoint.NewMemory("dst")
	keys := declareGroup(t, src, dst, "a", "b", "c")
	ts := timesource.NewVirtual(0)

	pol := policy.NewImmediate(true)
	_, err := transfer.NewAtomicGroup(src, dst, keys, pol, ts, false)
	if err != nil {
		t.Fatal(err)
	}

	src.Send(keys[0], []byte{1, 1, 1, 1})
	src.ProcessRecvEvents()
	src.Send(keys[1], []byte{2, 2, 2, 2})
	src.ProcessRecvEvents()

	buf := make([]byte, 4)
	for _, k := range keys {
		status, _, _ := dst.Recv(k, buf)
		if status != endpoint.StatusNoEntry {
			t.Fatalf("member %v forwarded before full set arrived", k)
		}
	}

	src.Send(keys[2], []byte{3, 3, 3, 3})
	src.ProcessRecvEvents()

	for i, k := range keys {
		status, n, _ := dst.Recv(k, buf)
		if status != endpoint.StatusOK {
			t.Fatalf("member %v: expected commit after full set arrived, status=%v", k, status)
		}
		want := []byte{byte(i + 1), byte(i + 1), byte(i + 1), byte(i + 1)}
		if !bytes.Equal(buf[:n], want) {
			t.Fatalf("member %v: unexpected payload %v, want %v", k, buf[:n], want)
		}
	}
}

func TestAtomicGroupRearmsAfterCommit(t *testing.T) {
	src := endpoint.NewMemory("src")
	dst := endpoint.NewMemory("dst")
	keys := declareGroup(t, src, dst, "a", "b")
	ts := timesource.NewVirtual(0)

	pol := policy.NewImmediate(true)
	_, err := transfer.NewAtomicGroup(src, dst, keys, pol, ts, false)
	if err != nil {
		t.Fatal(err)
	}

	src.Send(keys[0], []byte{1, 1, 1, 1})
	src.ProcessRecvEvents()
	src.Send(keys[1], []byte{2, 2, 2, 2})
	src.ProcessRecvEvents()

	// Second frame: only one member arrives so far, must not commit yet.
	src.Send(keys[0], []byte{9, 9, 9, 9})
	src.ProcessRecvEvents()

	buf := make([]byte, 4)
	status, n, _ := dst.Recv(keys[0], buf)
	if status != endpoint.StatusOK || !bytes.Equal(buf[:n], []byte{1, 1, 1, 1}) {
		t.Fatalf("expected destination to still hold first frame's value, got status=%v buf=%v", status, buf[:n])
	}
}

func TestAtomicGroupAbortsWholeCommitOnEpochMismatch(t *testing.T) {
	src := endpoint.NewMemory("src")
	dst := endpoint.NewMemory("dst")
	keys := declareGroup(t, src, dst, "a", "b")
	ts := timesource.NewVirtual(0)

	pol := policy.NewImmediate(true)
	g, err := transfer.NewAtomicGroup(src, dst, keys, pol, ts, true)
	if err != nil {
		t.Fatal(err)
	}
	g.SetEpoch(5)

	src.Send(keys[0], []byte{5, 0, 0, 0}) // matching epoch
	src.ProcessRecvEvents()
	src.Send(keys[1], []byte{9, 0, 0, 0}) // stale epoch
	src.ProcessRecvEvents()

	buf := make([]byte, 4)
	for _, k := range keys {
		status, _, _ := dst.Recv(k, buf)
		if status != endpoint.StatusNoEntry {
			t.Fatalf("expected no-partial-commit on epoch mismatch, member %v status=%v", k, status)
		}
	}
}

func TestAtomicGroupRearmsAfterAbortedCommit(t *testing.T) {
	src := endpoint.NewMemory("src")
	dst := endpoint.NewMemory("dst")
	keys := declareGroup(t, src, dst, "a", "b")
	ts := timesource.NewVirtual(0)

	pol := policy.NewImmediate(true)
	g, err := transfer.NewAtomicGroup(src, dst, keys, pol, ts, true)
	if err != nil {
		t.Fatal(err)
	}
	g.SetEpoch(5)

	// First full set: one member has a stale epoch, whole commit aborts.
	src.Send(keys[0], []byte{5, 0, 0, 0})
	src.ProcessRecvEvents()
	src.Send(keys[1], []byte{9, 0, 0, 0})
	src.ProcessRecvEvents()

	buf := make([]byte, 4)
	for _, k := range keys {
		if status, _, _ := dst.Recv(k, buf); status != endpoint.StatusNoEntry {
			t.Fatalf("member %v: expected no commit after aborted attempt, status=%v", k, status)
		}
	}

	// A single member arriving again must not immediately re-trigger a
	// commit: the aborted attempt should have reset arrival state, so
	// the group still needs a fresh full set.
	src.Send(keys[0], []byte{5, 1, 1, 1})
	src.ProcessRecvEvents()
	for _, k := range keys {
		if status, _, _ := dst.Recv(k, buf); status != endpoint.StatusNoEntry {
			t.Fatalf("member %v: commit fired on a partial set after an aborted attempt, status=%v", k, status)
		}
	}

	// Completing the set with a matching epoch now commits normally.
	src.Send(keys[1], []byte{5, 2, 2, 2})
	src.ProcessRecvEvents()
	for _, k := range keys {
		if status, _, _ := dst.Recv(k, buf); status != endpoint.StatusOK {
			t.Fatalf("member %v: expected commit after full fresh set arrived, status=%v", k, status)
		}
	}
}

func TestAtomicGroupRejectsUnknownMemberChannel(t *testing.T) {
	src := endpoint.NewMemory("src")
	dst := endpoint.NewMemory("dst")
	src.Declare("Drone", "a", 4)
	keys := []pdukey.Key{
		{Robot: "Drone", PduName: "a"},
		{Robot: "Drone", PduName: "missing"},
	}
	ts := timesource.NewVirtual(0)

	_, err := transfer.NewAtomicGroup(src, dst, keys, policy.NewImmediate(true), ts, false)
	if err == nil {
		t.Fatal("expected construction to fail when a member channel is unresolved")
	}
}
