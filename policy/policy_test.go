package policy_test

import (
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/policy"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

func TestImmediateNonAtomicAlwaysTransfers(t *testing.T) {
	p := policy.NewImmediate(false)
	ts := timesource.NewVirtual(0)
	k := pdukey.Resolved{Robot: "Drone", ChannelID: 1}
	if !p.ShouldTransfer(k, ts) {
		t.Fatal("expected immediate non-atomic to always be ready")
	}
	p.OnTransferred(k, ts)
	if !p.ShouldTransfer(k, ts) {
		t.Fatal("expected immediate non-atomic to still be ready after transfer")
	}
}

func TestImmediateAtomicRequiresAllMembers(t *testing.T) {
	p := policy.NewImmediate(true)
	ts := timesource.NewVirtual(0)
	k1 := pdukey.Resolved{Robot: "Test", ChannelID: 1}
	k2 := pdukey.Resolved{Robot: "Test", ChannelID: 2}
	p.AddMemberKey(k1)
	p.AddMemberKey(k2)

	if p.ShouldTransfer(k1, ts) {
		t.Fatal("should not be ready with no arrivals")
	}
	p.MarkArrived(k1)
	if p.ShouldTransfer(k1, ts) {
		t.Fatal("should not be ready with only one of two members arrived")
	}
	p.MarkArrived(k2)
	if !p.ShouldTransfer(k2, ts) {
		t.Fatal("expected ready once all members arrived")
	}
	p.OnTransferred(k2, ts)
	// Commit resets the whole group.
	if p.ShouldTransfer(k1, ts) {
		t.Fatal("expected reset after full-set commit")
	}
}

func TestThrottleSpacing(t *testing.T) {
	p := policy.NewThrottle(100000) // 100ms
	ts := timesource.NewVirtual(0)
	k := pdukey.Resolved{Robot: "Drone", ChannelID: 1}

	if !p.ShouldTransfer(k, ts) {
		t.Fatal("first call should always transfer")
	}
	p.OnTransferred(k, ts)

	ts.Advance(50000)
	if p.ShouldTransfer(k, ts) {
		t.Fatal("should still be throttled at +50ms")
	}

	ts.Advance(50000) // now at 100ms
	if !p.ShouldTransfer(k, ts) {
		t.Fatal("should be ready at +100ms")
	}
}

func TestTickerPrimePassThenPeriodic(t *testing.T) {
	p := policy.NewTicker(10000) // 10ms
	ts := timesource.NewVirtual(0)
	k := pdukey.Resolved{Robot: "Drone", ChannelID: 1}

	if p.ShouldTransfer(k, ts) {
		t.Fatal("first call must be the prime pass and return false")
	}
	ts.Advance(10000)
	if !p.ShouldTransfer(k, ts) {
		t.Fatal("expected ready at +10ms")
	}
	p.OnTransferred(k, ts)
	ts.Advance(5000)
	if p.ShouldTransfer(k, ts) {
		t.Fatal("should not be ready at +5ms into the new period")
	}
	ts.Advance(5000)
	if !p.ShouldTransfer(k, ts) {
		t.Fatal("expected ready at +10ms into the new period")
	}
}

func TestTickerIsCyclicOthersAreNot(t *testing.T) {
	if !(policy.NewTicker(1)).IsCyclic() {
		t.Fatal("ticker must be cyclic")
	}
	if (policy.NewThrottle(1)).IsCyclic() {
		t.Fatal("throttle must not be cyclic")
	}
	if (policy.NewImmediate(false)).IsCyclic() {
		t.Fatal("immediate must not be cyclic")
	}
}
