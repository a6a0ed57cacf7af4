package arp

import (
	"sync"
	"time"
)

// Timer is a single-shot relative timer. Start arms or re-arms the timer;
// the bound callback runs once when the duration elapses, after which the
// timer reads as not running until armed again.
//
// Implementations are typically supplied by the host stack so that
// callbacks run in its event context. [SystemTimer] is a process-local
// default built on [time.AfterFunc].
type Timer interface {
	Start(d time.Duration)
	Stop()
	Running() bool
}

// TimerFactory binds a callback to a freshly created Timer. A Handler
// creates its timers through the factory once, at Reset.
type TimerFactory func(callback func()) Timer

// SystemTimer returns a Timer built on [time.AfterFunc]. The callback runs
// on its own goroutine; the Handler serializes re-entry internally.
func SystemTimer(callback func()) Timer {
	return &sysTimer{fn: callback}
}

type sysTimer struct {
	mu      sync.Mutex
	fn      func()
	t       *time.Timer
	running bool
}

func (st *sysTimer) Start(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.t == nil {
		st.t = time.AfterFunc(d, st.fire)
	} else {
		st.t.Stop()
		st.t.Reset(d)
	}
	st.running = true
}

func (st *sysTimer) Stop() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.t != nil {
		st.t.Stop()
	}
	st.running = false
}

func (st *sysTimer) Running() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

func (st *sysTimer) fire() {
	st.mu.Lock()
	if !st.running {
		// Lost the race against Stop.
		st.mu.Unlock()
		return
	}
	st.running = false
	st.mu.Unlock()
	st.fn()
}
