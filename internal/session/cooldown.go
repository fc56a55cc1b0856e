package session

import (
	"strconv"
	"sync"
	"time"

	"rollcall/internal/model"
)

// Cooldown tracks the last accepted time per identity+direction. Ready and
// Mark are split because acceptance is only final once the store confirms
// the write.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func cooldownKey(dir model.Direction, id model.Identity) string {
	return string(dir) + "|" + strconv.FormatInt(int64(id), 10)
}

func (c *Cooldown) Ready(key string, cooldown time.Duration, now time.Time) bool {
	if cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.last[key]
	return !ok || now.Sub(ts) > cooldown
}

func (c *Cooldown) Mark(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[key] = now
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}
