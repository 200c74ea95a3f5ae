package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFrameTimeAverages(t *testing.T) {
	m := NewMetrics()

	// A full window of 16ms frames averages to 16ms.
	for i := uint8(0); i < AVG_COUNT; i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 1e-9)
}

func TestMetricsFPSAfterOneSecond(t *testing.T) {
	m := NewMetrics()

	// 101 frames of 10ms cross the one-second boundary on frame 101.
	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	assert.Equal(t, 100.0, m.FPS())
}

func TestClockElapsedOnlyAfterStart(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Equal(t, 0.0, c.Elapsed())

	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)

	c.Stop()
	was := c.Elapsed()
	c.Update()
	assert.Equal(t, was, c.Elapsed())
}
