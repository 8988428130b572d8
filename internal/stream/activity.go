package stream

import (
	"sort"
	"sync"
	"time"
)

// ActivityLog records when each camera's stream was last requested, either
// through the bridge or by an artifact fetch. The reaper consults it to find
// transcoders nobody is watching anymore.
type ActivityLog struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Touch marks the camera as active now.
func (a *ActivityLog) Touch(cameraKey string) {
	if a == nil || cameraKey == "" {
		return
	}
	a.mu.Lock()
	a.seen[cameraKey] = a.now()
	a.mu.Unlock()
}

// IdleSince returns, sorted, every camera whose last activity is at or before
// the cutoff. Cameras never touched are not reported; their transcoders
// predate this process and are picked up once a viewer touches them.
func (a *ActivityLog) IdleSince(cutoff time.Time) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var idle []string
	for key, last := range a.seen {
		if !last.After(cutoff) {
			idle = append(idle, key)
		}
	}
	sort.Strings(idle)
	return idle
}

// Forget drops the camera's activity record, typically after its transcoder
// has been reaped.
func (a *ActivityLog) Forget(cameraKey string) {
	a.mu.Lock()
	delete(a.seen, cameraKey)
	a.mu.Unlock()
}
