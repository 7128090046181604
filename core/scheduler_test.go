package core

import (
	"testing"
)

func TestTickConversions(t *testing.T) {
	cases := []struct {
		us    uint32
		ticks uint32
	}{
		{0, 0},
		{1, 12},
		{1000, 12000},
		{5000, 60000},
	}
	for _, c := range cases {
		if got := TicksFromUS(c.us); got != c.ticks {
			t.Errorf("TicksFromUS(%d) = %d, want %d", c.us, got, c.ticks)
		}
		if got := TicksToUS(c.ticks); got != c.us {
			t.Errorf("TicksToUS(%d) = %d, want %d", c.ticks, got, c.us)
		}
	}

	if got := TicksFromSeconds(0.005); got != 60000 {
		t.Errorf("TicksFromSeconds(0.005) = %d, want 60000", got)
	}
	if got := TicksFromSeconds(-1); got != 0 {
		t.Errorf("TicksFromSeconds(-1) = %d, want 0", got)
	}
}

func TestSchedulerDispatchOrder(t *testing.T) {
	var s Scheduler
	var order []int

	mk := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				order = append(order, id)
				return SF_DONE
			},
		}
	}

	// Insert out of order.
	s.Schedule(mk(3, 300))
	s.Schedule(mk(1, 100))
	s.Schedule(mk(2, 200))

	s.Dispatch(150)
	if len(order) != 1 || order[0] != 1 {
		t.Fatalf("after Dispatch(150): order = %v, want [1]", order)
	}

	s.Dispatch(500)
	if len(order) != 3 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("after Dispatch(500): order = %v, want [1 2 3]", order)
	}

	if _, ok := s.NextWake(); ok {
		t.Error("expected empty schedule after dispatching everything")
	}
}

func TestSchedulerReschedule(t *testing.T) {
	var s Scheduler
	fired := 0
	tm := &Timer{
		WakeTime: 10,
		Handler: func(tt *Timer) uint8 {
			fired++
			if fired < 3 {
				tt.WakeTime += 10
				return SF_RESCHEDULE
			}
			return SF_DONE
		},
	}
	s.Schedule(tm)

	s.Dispatch(100)
	if fired != 3 {
		t.Errorf("fired = %d, want 3", fired)
	}
}

func TestSchedulerCancel(t *testing.T) {
	var s Scheduler
	fired := false
	a := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 { return SF_DONE }}
	b := &Timer{WakeTime: 20, Handler: func(*Timer) uint8 { fired = true; return SF_DONE }}

	s.Schedule(a)
	s.Schedule(b)
	s.Cancel(b)
	s.Dispatch(100)

	if fired {
		t.Error("cancelled timer fired")
	}

	wake, ok := s.NextWake()
	if ok {
		t.Errorf("unexpected pending timer at %d", wake)
	}
}

func TestSchedulerNextWake(t *testing.T) {
	var s Scheduler
	if _, ok := s.NextWake(); ok {
		t.Fatal("empty scheduler reported a pending timer")
	}
	tm := &Timer{WakeTime: 42, Handler: func(*Timer) uint8 { return SF_DONE }}
	s.Schedule(tm)
	wake, ok := s.NextWake()
	if !ok || wake != 42 {
		t.Errorf("NextWake = %d, %v; want 42, true", wake, ok)
	}
}

func TestInIrqDuringDispatch(t *testing.T) {
	var s Scheduler
	sawIrq := false
	tm := &Timer{
		WakeTime: 1,
		Handler: func(*Timer) uint8 {
			sawIrq = InIrq()
			return SF_DONE
		},
	}
	s.Schedule(tm)

	if InIrq() {
		t.Error("InIrq true outside Dispatch")
	}
	s.Dispatch(10)
	if !sawIrq {
		t.Error("InIrq false inside a timer handler")
	}
	if InIrq() {
		t.Error("InIrq true after Dispatch returned")
	}
}
