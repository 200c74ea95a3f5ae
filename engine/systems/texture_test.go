package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerboardPixels(t *testing.T) {
	pixels := checkerboardPixels(16, 4)
	require.Len(t, pixels, 16*16*4)

	// Top-left cell is magenta, the next cell to the right is black.
	assert.Equal(t, byte(255), pixels[0])
	assert.Equal(t, byte(0), pixels[1])
	assert.Equal(t, byte(255), pixels[2])
	assert.Equal(t, byte(255), pixels[3])

	right := uint32(4) * 4
	assert.Equal(t, byte(0), pixels[right])
	assert.Equal(t, byte(255), pixels[right+3])

	// One cell down flips back to magenta on the second column.
	down := (uint32(4)*16 + 4) * 4
	assert.Equal(t, byte(255), pixels[down])

	// Fully opaque everywhere.
	for i := 3; i < len(pixels); i += 4 {
		require.Equal(t, byte(255), pixels[i])
	}
}

func TestCacheName(t *testing.T) {
	assert.Equal(t, "brick", cacheName("textures/brick.png"))
	assert.Equal(t, "brick", cacheName("textures/brick.bmp"))
	assert.Equal(t, "noext", cacheName("noext"))
}
