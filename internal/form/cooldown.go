package form

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const ResendInterval = 30 * time.Second

// Cooldown drives the "resend code in Ns" countdown. It is cosmetic: the
// backend still decides whether a resend is allowed.
type Cooldown struct {
	mu       sync.Mutex
	every    time.Duration
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func NewCooldown(every time.Duration) *Cooldown {
	if every <= 0 {
		every = ResendInterval
	}
	return &Cooldown{every: every, limiters: map[string]*rate.Limiter{}, now: time.Now}
}

func (c *Cooldown) limiter(key string) *rate.Limiter {
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.every), 1)
		c.limiters[key] = lim
	}
	return lim
}

// Start begins a countdown for key, e.g. right after a code was sent.
func (c *Cooldown) Start(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limiter(key).AllowN(c.now(), 1)
}

// Remaining is how long until a resend should be offered again.
func (c *Cooldown) Remaining(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[key]
	if !ok {
		return 0
	}
	now := c.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return c.every
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d.Round(time.Second)
}

func (c *Cooldown) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.limiters, key)
}

// Prune drops keys whose countdown has finished and returns how many were removed.
func (c *Cooldown) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, lim := range c.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(c.limiters, k)
			n++
		}
	}
	return n
}
