package color

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want RGB
	}{
		{"#ff8000", RGB{255, 128, 0}},
		{"#FF8000", RGB{255, 128, 0}},
		{"ff8000", RGB{255, 128, 0}},
		{"  #000000 ", Black},
		{"#ffffff", White},
		{"#0a0B0c", RGB{10, 11, 12}},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseHexRejects(t *testing.T) {
	for _, in := range []string{"", "#", "#fff", "#zzzzzz", "#12345g", "#1234567", "red"} {
		_, err := ParseHex(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidHex), in)
	}
}

func TestScale(t *testing.T) {
	c := RGB{255, 128, 0}
	assert.Equal(t, c, c.Scale(255))
	assert.Equal(t, Black, c.Scale(0))
	assert.Equal(t, RGB{127, 63, 0}, c.Scale(127))
}

func TestHexRoundTrip(t *testing.T) {
	c := RGB{1, 2, 254}
	assert.Equal(t, "#0102FE", c.Hex())
	back, err := ParseHex(c.Hex())
	require.NoError(t, err)
	assert.Equal(t, c, back)
	assert.Equal(t, uint32(0x0102FE), c.Uint32())
}

func TestFromHSV(t *testing.T) {
	assert.Equal(t, RGB{255, 0, 0}, FromHSV(0))
	assert.Equal(t, RGB{0, 255, 0}, FromHSV(120))
	assert.Equal(t, RGB{0, 0, 255}, FromHSV(240))
}
