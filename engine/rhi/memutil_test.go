package rhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	cases := []struct {
		value     uint64
		alignment uint64
		want      uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{255, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{100, 64, 128},
		{4096, 4096, 4096},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AlignUp(tc.value, tc.alignment),
			"AlignUp(%d, %d)", tc.value, tc.alignment)
	}
}

func TestAlignDown(t *testing.T) {
	cases := []struct {
		value     uint64
		alignment uint64
		want      uint64
	}{
		{0, 256, 0},
		{1, 256, 0},
		{255, 256, 0},
		{256, 256, 256},
		{511, 256, 256},
		{100, 64, 64},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AlignDown(tc.value, tc.alignment),
			"AlignDown(%d, %d)", tc.value, tc.alignment)
	}
}

func TestCheckPow2(t *testing.T) {
	for _, good := range []uint64{1, 2, 4, 256, 1 << 20, 1 << 40} {
		assert.NoError(t, CheckPow2(good, "value"))
	}
	for _, bad := range []uint64{0, 3, 6, 100, 257} {
		err := CheckPow2(bad, "value")
		require.ErrorIs(t, err, PowerOfTwoError, "CheckPow2(%d)", bad)
	}
}
