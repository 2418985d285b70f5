package core

// Timer is a scheduled callback. The handler returns SF_DONE or, after
// moving WakeTime forward, SF_RESCHEDULE.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time and runs the due ones from
// the control loop. It is not safe for concurrent use.
type Scheduler struct {
	clock Clock
	list  *Timer
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Clock returns the scheduler's time base.
func (s *Scheduler) Clock() Clock { return s.clock }

// Schedule inserts t. A timer that is already queued is moved.
func (s *Scheduler) Schedule(t *Timer) {
	s.Cancel(t)
	s.insert(t)
}

// Cancel removes t if it is queued.
func (s *Scheduler) Cancel(t *Timer) {
	for p := &s.list; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// Pending reports whether t is queued.
func (s *Scheduler) Pending(t *Timer) bool {
	for cur := s.list; cur != nil; cur = cur.Next {
		if cur == t {
			return true
		}
	}
	return false
}

func (s *Scheduler) insert(t *Timer) {
	p := &s.list
	for *p != nil && !TimerIsBefore(t.WakeTime, (*p).WakeTime) {
		p = &(*p).Next
	}
	t.Next = *p
	*p = t
}

// Dispatch runs every timer whose wake time has passed.
func (s *Scheduler) Dispatch() {
	now := s.clock.Micros()
	for s.list != nil && !TimerIsBefore(now, s.list.WakeTime) {
		t := s.list
		s.list = t.Next
		t.Next = nil

		if t.Handler(t) == SF_RESCHEDULE {
			s.insert(t)
		}
	}
}
