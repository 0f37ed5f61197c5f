// Package timesource provides the monotonic clock abstraction shared
// by transfer policies and the bridge core's driver loop. A single
// TimeSource instance is wired through the whole bridge so cyclic
// policies and the outer pump loop agree on "now".
package timesource

import (
	"sync/atomic"
	"time"
)

// Source is the capability contract consumed by policies and the
// bridge core. Implementations must be safe for concurrent reads.
type Source interface {
	// NowUs returns the current time in microseconds, on whatever
	// timeline this source maintains.
	NowUs() uint64

	// DeltaUs returns the configured tick period in microseconds.
	// It is fixed for the lifetime of the source.
	DeltaUs() uint64

	// SleepDelta blocks for DeltaUs, or returns immediately for
	// sources that have no real notion of sleeping.
	SleepDelta()
}

// Real is a wall-clock time source: NowUs counts microseconds since
// the source was constructed, and SleepDelta actually sleeps.
type Real struct {
	start   time.Time
	deltaUs uint64
}

// NewReal builds a Real time source with the given tick period.
func NewReal(deltaUs uint64) *Real {
	return &Real{start: time.Now(), deltaUs: deltaUs}
}

func (r *Real) NowUs() uint64 {
	return uint64(time.Since(r.start).Microseconds())
}

func (r *Real) DeltaUs() uint64 {
	return r.deltaUs
}

func (r *Real) SleepDelta() {
	time.Sleep(time.Duration(r.deltaUs) * time.Microsecond)
}

// Virtual is a manually-advanced clock used by tests: NowUs returns
// an internally maintained counter and SleepDelta is a no-op. Advance
// is the only way the clock moves.
type Virtual struct {
	nowUs   uint64 // atomic
	deltaUs uint64
}

// NewVirtual builds a Virtual time source starting at t=0.
func NewVirtual(deltaUs uint64) *Virtual {
	return &Virtual{deltaUs: deltaUs}
}

func (v *Virtual) NowUs() uint64 {
	return atomic.LoadUint64(&v.nowUs)
}

func (v *Virtual) DeltaUs() uint64 {
	return v.deltaUs
}

func (v *Virtual) SleepDelta() {
	// Virtual time never blocks; the test driving it decides when to
	// call Advance.
}

// Advance moves the virtual clock forward by us microseconds.
func (v *Virtual) Advance(us uint64) {
	atomic.AddUint64(&v.nowUs, us)
}

// External wraps a host-provided clock, e.g. the hakoniwa simulation
// time. It is contract-only here: NowFunc is supplied by the host
// integration and SleepFunc by its scheduler.
type External struct {
	NowFunc   func() uint64
	SleepFunc func()
	deltaUs   uint64
}

// NewExternal builds an External time source backed by host-supplied
// callbacks. Passing a nil SleepFunc makes SleepDelta a no-op.
func NewExternal(deltaUs uint64, now func() uint64, sleep func()) *External {
	return &External{NowFunc: now, SleepFunc: sleep, deltaUs: deltaUs}
}

func (e *External) NowUs() uint64 {
	return e.NowFunc()
}

func (e *External) DeltaUs() uint64 {
	return e.deltaUs
}

func (e *External) SleepDelta() {
	if e.SleepFunc != nil {
		e.SleepFunc()
	}
}
