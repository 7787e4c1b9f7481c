package timer

import (
	"sort"
	"sync"
	"time"
)

// Virtual is a deterministic Scheduler. Time only moves when Advance is called and
// due tasks run synchronously on the caller's goroutine, in due-time order.
type Virtual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks map[int]*virtualTask
}

type virtualTask struct {
	id       int
	v        *Virtual
	interval time.Duration
	next     time.Time
	fn       func()
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{
		now:   start,
		tasks: make(map[int]*virtualTask),
	}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Every(interval time.Duration, fn func()) Task {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTask{
		id:       v.seq,
		v:        v,
		interval: interval,
		next:     v.now.Add(interval),
		fn:       fn,
	}
	v.tasks[t.id] = t
	return t
}

// Pending returns the number of live tasks.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tasks)
}

// Advance moves the clock forward by d, firing every task that becomes due.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		t := v.nextDueLocked(target)
		if t == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		v.now = t.next
		t.next = t.next.Add(t.interval)
		fn := t.fn
		v.mu.Unlock()

		fn()
	}
}

func (v *Virtual) nextDueLocked(target time.Time) *virtualTask {
	due := make([]*virtualTask, 0, len(v.tasks))
	for _, t := range v.tasks {
		if !t.next.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}

func (t *virtualTask) Cancel() {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()
	delete(t.v.tasks, t.id)
}
