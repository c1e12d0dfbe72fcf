package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPinnedClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)
	c := At(start)
	assert.Equal(t, start.Truncate(time.Second), c.Now())

	c.Advance(48 * time.Hour)
	assert.Equal(t, start.Add(48*time.Hour).Truncate(time.Second), c.Now())

	c.Sync()
	assert.WithinDuration(t, time.Now(), c.Now(), 2*time.Second)

	c.Advance(time.Hour)
	assert.WithinDuration(t, time.Now(), c.Now(), 2*time.Second)
}
