package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Handler return values.
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler dispatches timers in WakeTime order.  Handlers run in
// interrupt context: on hardware they are invoked from the timer ISR, on
// the host from the tick loop with the irq guard raised.
type Scheduler struct {
	timerList *Timer
}

// IrqDisable enters the global critical section shared by all priority
// levels and returns a token for IrqRestore.
func IrqDisable() State {
	return disableInterrupts()
}

// IrqRestore leaves the critical section entered by IrqDisable.
func IrqRestore(state State) {
	restoreInterrupts(state)
}

// Schedule adds a timer to the schedule.
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.insertTimer(t)
}

// Cancel removes a timer from the schedule if it is pending.
func (s *Scheduler) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.timerList == t {
		s.timerList = t.Next
		t.Next = nil
		return
	}
	for current := s.timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// insertTimer inserts a timer in sorted order by WakeTime.  Must be called
// inside a critical section.
func (s *Scheduler) insertTimer(t *Timer) {
	if s.timerList == nil || t.WakeTime < s.timerList.WakeTime {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && current.Next.WakeTime < t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Dispatch processes all timers due at or before now.  Handlers returning
// SF_RESCHEDULE are re-inserted at their updated WakeTime.
func (s *Scheduler) Dispatch(now uint32) {
	enterIrq()
	defer exitIrq()

	for {
		state := disableInterrupts()
		if s.timerList == nil || s.timerList.WakeTime > now {
			restoreInterrupts(state)
			return
		}
		timer := s.timerList
		s.timerList = timer.Next
		timer.Next = nil
		restoreInterrupts(state)

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			state = disableInterrupts()
			s.insertTimer(timer)
			restoreInterrupts(state)
		}
	}
}

// NextWake returns the WakeTime of the earliest pending timer, or ok=false
// when nothing is scheduled.
func (s *Scheduler) NextWake() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.timerList == nil {
		return 0, false
	}
	return s.timerList.WakeTime, true
}
