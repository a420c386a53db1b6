package runtime_test

import (
	"testing"
	"time"

	"github.com/aretw0/cadence/internal/runtime"
	"github.com/stretchr/testify/assert"
)

func TestIDGenerator(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

	t.Run("Monotonic Within A Second", func(t *testing.T) {
		now := base.Add(300 * time.Millisecond)
		g := runtime.NewIDGenerator(func() time.Time { return now })

		assert.Equal(t, "20240501_120000", g.Next())
		now = base.Add(900 * time.Millisecond)
		assert.Equal(t, "20240501_120001", g.Next())
		assert.Equal(t, "20240501_120002", g.Next())
	})

	t.Run("Follows The Clock Once Ahead", func(t *testing.T) {
		now := base
		g := runtime.NewIDGenerator(func() time.Time { return now })
		g.Next()
		now = base.Add(time.Minute)
		assert.Equal(t, "20240501_120100", g.Next())
	})

	t.Run("Observe Skips Past Existing IDs", func(t *testing.T) {
		g := runtime.NewIDGenerator(func() time.Time { return base })
		g.Observe("20240501_120005")
		assert.Equal(t, "20240501_120006", g.Next())

		g.Observe("garbage")
		g.Observe("20240101_000000")
		assert.Equal(t, "20240501_120007", g.Next())
	})
}
