package typing

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultIdleWindow is how long after the last keystroke the indicator is
// flipped back to false.
const DefaultIdleWindow = 1 * time.Second

// Setter is the subset of the store the controller writes through. The
// controller itself never reads.
type Setter interface {
	Set(ctx context.Context, userID, targetID string, isTyping bool) error
}

// Controller debounces keystroke-driven typing state for one user. The
// first keystroke toward a target upserts is_typing=true; each further
// keystroke resets the idle timer; when the timer fires with no further
// input the indicator is upserted back to false.
//
// Timer handles are per target and owned by the controller; Close stops
// them all so no callback outlives the session that created it.
type Controller struct {
	userID string
	store  Setter
	idle   time.Duration

	// onExpire, when set, is invoked after the idle flip to false so the
	// owner can fan out a change event. Called from the timer goroutine.
	onExpire func(targetID string)

	mu     sync.Mutex
	timers map[string]*time.Timer // targetID -> idle timer
	closed bool
}

// NewController creates a typing controller for the given user.
func NewController(userID string, store Setter, idle time.Duration) *Controller {
	if idle <= 0 {
		idle = DefaultIdleWindow
	}
	return &Controller{
		userID: userID,
		store:  store,
		idle:   idle,
		timers: make(map[string]*time.Timer),
	}
}

// OnExpire registers a callback invoked whenever the idle timer flips an
// indicator to false.
func (c *Controller) OnExpire(fn func(targetID string)) {
	c.mu.Lock()
	c.onExpire = fn
	c.mu.Unlock()
}

// Keystroke records typing activity toward target: upserts is_typing=true
// and (re)arms the idle timer. Returns true if this keystroke started a new
// typing burst (the caller may want to fan out only the first transition).
func (c *Controller) Keystroke(ctx context.Context, targetID string) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, nil
	}
	timer, existing := c.timers[targetID]
	if existing {
		timer.Reset(c.idle)
	} else {
		c.timers[targetID] = time.AfterFunc(c.idle, func() { c.expire(targetID) })
	}
	c.mu.Unlock()

	if err := c.store.Set(ctx, c.userID, targetID, true); err != nil {
		return !existing, err
	}
	return !existing, nil
}

// expire fires when the idle window elapses with no further keystrokes.
func (c *Controller) expire(targetID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.timers, targetID)
	fn := c.onExpire
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.store.Set(ctx, c.userID, targetID, false); err != nil {
		log.Printf("[typing] expire %s->%s: %v", c.userID, targetID, err)
	}
	if fn != nil {
		fn(targetID)
	}
}

// Stop clears typing state toward a single target immediately (e.g. when
// the message is actually sent).
func (c *Controller) Stop(ctx context.Context, targetID string) error {
	c.mu.Lock()
	if timer, ok := c.timers[targetID]; ok {
		timer.Stop()
		delete(c.timers, targetID)
	}
	c.mu.Unlock()
	return c.store.Set(ctx, c.userID, targetID, false)
}

// Close stops every pending timer. Indicator rows are left to their TTL;
// the point here is that no timer callback mutates state after teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for target, timer := range c.timers {
		timer.Stop()
		delete(c.timers, target)
	}
}
