package timesource_test

import (
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

func TestVirtualAdvance(t *testing.T) {
	v := timesource.NewVirtual(10000)
	if v.NowUs() != 0 {
		t.Errorf("NowUs %v", v.NowUs())
	}
	v.Advance(5000)
	if v.NowUs() != 5000 {
		t.Errorf("NowUs after advance %v", v.NowUs())
	}
	v.Advance(5000)
	if v.NowUs() != 10000 {
		t.Errorf("NowUs after second advance %v", v.NowUs())
	}
	if v.DeltaUs() != 10000 {
		t.Errorf("DeltaUs %v", v.DeltaUs())
	}
	v.SleepDelta() // must not block or panic
}

func TestRealNowUsMonotonic(t *testing.T) {
	r := timesource.NewReal(1000)
	a := r.NowUs()
	b := r.NowUs()
	if b < a {
		t.Errorf("NowUs went backwards: %v then %v", a, b)
	}
	if r.DeltaUs() != 1000 {
		t.Errorf("DeltaUs %v", r.DeltaUs())
	}
}

func TestExternalDelegates(t *testing.T) {
	var calledSleep bool
	e := timesource.NewExternal(2000, func() uint64 { return 42 }, func() { calledSleep = true })
	if e.NowUs() != 42 {
		t.Errorf("NowUs %v", e.NowUs())
	}
	e.SleepDelta()
	if !calledSleep {
		t.Errorf("SleepFunc not invoked")
	}
}
