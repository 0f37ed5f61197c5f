// Package policy implements the TransferPolicy state machines: the
// per-route decision of whether a PDU is eligible to move from source
// to destination right now.
//
// Each policy instance is scoped to one route occurrence (see the
// builder's per-connection cache); none of these types are safe to
// share across connections, because Throttle and Ticker carry
// instance-local timing state that would otherwise be corrupted by
// unrelated routes.
package policy

import (
	"sync"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

// Policy is the contract consumed by TransferUnits. on_transferred is
// invoked immediately after a successful copy and updates state;
// should_transfer does not, except for Ticker's first call, which
// records its first deadline.
type Policy interface {
	// IsCyclic selects the trigger mode: true means the policy is
	// driven by BridgeCore's periodic tick, false means it is driven
	// by endpoint receive callbacks.
	IsCyclic() bool

	// ShouldTransfer reports whether key is eligible to transfer right
	// now. It leaves policy state unchanged, except that Ticker's first
	// call primes its next deadline.
	ShouldTransfer(key pdukey.Resolved, ts timesource.Source) bool

	// OnTransferred is called immediately after a successful src->dst
	// copy for key, so the policy can update its internal state.
	OnTransferred(key pdukey.Resolved, ts timesource.Source)
}

// Immediate policy. With Atomic=false it always transfers. With
// Atomic=true it gates on every member of a group having arrived
// since the last commit; see AddMemberKey.
type Immediate struct {
	Atomic bool

	mu       sync.Mutex
	received map[pdukey.Resolved]bool
}

// NewImmediate builds an Immediate policy. Atomic groups must call
// AddMemberKey for every member key right after construction, before
// the policy is wired into any TransferUnit.
func NewImmediate(atomic bool) *Immediate {
	p := &Immediate{Atomic: atomic}
	if atomic {
		p.received = make(map[pdukey.Resolved]bool)
	}
	return p
}

// AddMemberKey registers a resolved key as a member of this atomic
// group's arrival set. Only meaningful when Atomic is true; the builder
// constructs one Immediate policy per AtomicGroup, and
// transfer.NewAtomicGroup calls this once per member key while it
// resolves the group's channels.
func (p *Immediate) AddMemberKey(key pdukey.Resolved) {
	if !p.Atomic {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received[key] = false
}

func (p *Immediate) IsCyclic() bool { return false }

func (p *Immediate) ShouldTransfer(key pdukey.Resolved, ts timesource.Source) bool {
	if !p.Atomic {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.received {
		if !got {
			return false
		}
	}
	return len(p.received) > 0
}

func (p *Immediate) OnTransferred(key pdukey.Resolved, ts timesource.Source) {
	if !p.Atomic {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received[key] = true
	for _, got := range p.received {
		if !got {
			return
		}
	}
	for k := range p.received {
		p.received[k] = false
	}
}

// MarkArrived records that key has produced fresh data, independent
// of readiness. AtomicGroup calls this on every inbound callback so
// that membership accounting stays inside the policy (the single
// source of truth for arrival state) rather than leaking into the
// TransferUnit.
func (p *Immediate) MarkArrived(key pdukey.Resolved) {
	if !p.Atomic {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.received[key]; ok {
		p.received[key] = true
	}
}

// Reset clears every member's arrival flag without counting a commit.
// AtomicGroup calls this when a commit attempt aborts partway through
// (a recv error or epoch mismatch on some member), so a stale member
// can't leave the group permanently "ready" on every future arrival.
func (p *Immediate) Reset() {
	if !p.Atomic {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.received {
		p.received[k] = false
	}
}

// Throttle policy: transfers at most once per Interval, with the
// first call after construction always transferring.
type Throttle struct {
	IntervalUs uint64

	mu             sync.Mutex
	lastUs         uint64
	hasTransferred bool
}

func NewThrottle(intervalUs uint64) *Throttle {
	return &Throttle{IntervalUs: intervalUs}
}

func (p *Throttle) IsCyclic() bool { return false }

func (p *Throttle) ShouldTransfer(key pdukey.Resolved, ts timesource.Source) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasTransferred {
		return true
	}
	return ts.NowUs()-p.lastUs >= p.IntervalUs
}

func (p *Throttle) OnTransferred(key pdukey.Resolved, ts timesource.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastUs = ts.NowUs()
	p.hasTransferred = true
}

// Ticker policy: cyclic, fires once per Interval of time-source time.
// The first ShouldTransfer call primes next_us and returns false; no
// catch-up is attempted if ticks are missed (no drift correction).
type Ticker struct {
	IntervalUs uint64

	mu          sync.Mutex
	nextUs      uint64
	initialized bool
}

func NewTicker(intervalUs uint64) *Ticker {
	return &Ticker{IntervalUs: intervalUs}
}

func (p *Ticker) IsCyclic() bool { return true }

func (p *Ticker) ShouldTransfer(key pdukey.Resolved, ts timesource.Source) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := ts.NowUs()
	if !p.initialized {
		p.nextUs = now + p.IntervalUs
		p.initialized = true
		return false
	}
	return now >= p.nextUs
}

func (p *Ticker) OnTransferred(key pdukey.Resolved, ts timesource.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextUs = ts.NowUs() + p.IntervalUs
}
