// Package typing tracks which users are typing. Every entry owns one
// expiry timer; a new typing signal restarts it.
package typing

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/roomchat/src/scheduler"
)

// DefaultTimeout is how long a typing indicator lives without a refresh.
const DefaultTimeout = 3 * time.Second

type entry struct {
	username string
	gen      uint64
	timer    scheduler.Timer
}

// cancel stops the entry's timer at most once.
func (e *entry) cancel() {
	if e.timer == nil {
		return
	}
	e.timer.Stop()
	e.timer = nil
}

// Tracker is safe for concurrent use. Expiry callbacks run on whatever
// goroutine the scheduler uses.
type Tracker struct {
	mu       sync.Mutex
	sched    scheduler.Scheduler
	timeout  time.Duration
	entries  map[string]*entry
	order    []string
	stopped  bool
	onExpire func(username string)
}

// New creates a tracker. A non-positive timeout selects DefaultTimeout.
func New(sched scheduler.Scheduler, timeout time.Duration) *Tracker {
	if sched == nil {
		sched = scheduler.System{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		sched:   sched,
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// OnExpire registers fn to be called after an entry expires.
func (t *Tracker) OnExpire(fn func(username string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Touch marks username as typing and restarts its expiry window.
// It reports whether the username was newly added.
func (t *Tracker) Touch(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	e, exists := t.entries[username]
	if !exists {
		e = &entry{username: username}
		t.entries[username] = e
		t.order = append(t.order, username)
	}
	e.cancel()
	e.gen++
	gen := e.gen
	e.timer = t.sched.AfterFunc(t.timeout, func() { t.expire(username, gen) })
	return !exists
}

// Clear removes username immediately. Clearing an absent user is a no-op.
func (t *Tracker) Clear(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[username]
	if !ok {
		return false
	}
	e.cancel()
	t.remove(username)
	return true
}

// StopAll cancels every timer and empties the tracker. Later Touch calls
// and late timer fires are ignored.
func (t *Tracker) StopAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	for _, e := range t.entries {
		e.cancel()
	}
	t.entries = make(map[string]*entry)
	t.order = nil
	t.stopped = true
	return n
}

// Usernames returns typing users in the order they started typing.
func (t *Tracker) Usernames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether username is typing.
func (t *Tracker) Has(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[username]
	return ok
}

// Len returns the number of typing users.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) expire(username string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[username]
	// A timer replaced by Touch may still fire if Stop lost the race.
	if t.stopped || !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	e.timer = nil
	t.remove(username)
	cb := t.onExpire
	t.mu.Unlock()

	if cb != nil {
		cb(username)
	}
}

func (t *Tracker) remove(username string) {
	delete(t.entries, username)
	for i, u := range t.order {
		if u == username {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
