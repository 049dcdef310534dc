// Package admit rate-limits candidate events per match and per throttle
// class. Lifecycle events always pass. For everything else an event is
// admitted only when the class's minimum re-fire interval has elapsed since
// the last admission for the same match.
//
// Throttling is keyed on (match, class), not (match, class, player): a second
// player's stock loss inside the window is dropped.
package admit

import (
	"sync"
	"time"

	"github.com/slipstreamco/slipcast/internal/events"
)

// Default minimum re-fire intervals per class.
const (
	DefaultStockLossWindow        = 1000 * time.Millisecond
	DefaultSignificantComboWindow = 1500 * time.Millisecond
	DefaultMinorComboWindow       = 2500 * time.Millisecond
	DefaultNeutralExchangeWindow  = 5000 * time.Millisecond
	DefaultFrameUpdateWindow      = 10000 * time.Millisecond
)

func DefaultWindows() map[events.Class]time.Duration {
	return map[events.Class]time.Duration{
		events.ClassStockLoss:        DefaultStockLossWindow,
		events.ClassSignificantCombo: DefaultSignificantComboWindow,
		events.ClassMinorCombo:       DefaultMinorComboWindow,
		events.ClassNeutralExchange:  DefaultNeutralExchangeWindow,
		events.ClassFrameUpdate:      DefaultFrameUpdateWindow,
	}
}

type bucket struct {
	handle string
	class  events.Class
}

type Controller struct {
	mu      sync.Mutex
	windows map[events.Class]time.Duration
	last    map[bucket]time.Time
	dropped map[string]int
	now     func() time.Time
}

func New(windows map[events.Class]time.Duration) *Controller {
	if windows == nil {
		windows = DefaultWindows()
	}
	return &Controller{
		windows: windows,
		last:    make(map[bucket]time.Time),
		dropped: make(map[string]int),
		now:     time.Now,
	}
}

// Admit reports whether the event may enter the pending queue. On acceptance
// the bucket timestamp is updated before returning, so within one frame's
// event batch the first event of a class wins the slot and the rest are
// dropped until the window elapses again.
func (c *Controller) Admit(handle string, ev events.Event) bool {
	class := ev.Class()
	if class == events.ClassLifecycle {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	window, ok := c.windows[class]
	if !ok {
		return true
	}
	key := bucket{handle: handle, class: class}
	now := c.now()
	if last, seen := c.last[key]; seen && now.Sub(last) < window {
		c.dropped[handle]++
		return false
	}
	c.last[key] = now
	return true
}

// Dropped returns how many events have been throttled for a match.
func (c *Controller) Dropped(handle string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped[handle]
}

// Forget clears all throttle state for a match.
func (c *Controller) Forget(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.last {
		if key.handle == handle {
			delete(c.last, key)
		}
	}
	delete(c.dropped, handle)
}
