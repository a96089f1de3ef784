package form

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldown_Countdown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	c := NewCooldown(30 * time.Second)
	c.now = func() time.Time { return now }

	assert.Zero(t, c.Remaining("sid:signup"))

	c.Start("sid:signup")
	assert.Equal(t, 30*time.Second, c.Remaining("sid:signup"))

	now = now.Add(10 * time.Second)
	assert.Equal(t, 20*time.Second, c.Remaining("sid:signup"))
	assert.Equal(t, 20*time.Second, c.Remaining("sid:signup"))

	now = now.Add(25 * time.Second)
	assert.Zero(t, c.Remaining("sid:signup"))
	assert.Equal(t, 1, c.Prune())
	assert.Zero(t, c.Remaining("sid:signup"))
}

func TestCooldown_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	c := NewCooldown(time.Minute)
	c.Start("a")
	assert.Positive(t, c.Remaining("a"))
	assert.Zero(t, c.Remaining("b"))

	c.Forget("a")
	assert.Zero(t, c.Remaining("a"))
}
