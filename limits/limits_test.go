package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxPacketSizeFitsLargestFrame(t *testing.T) {
	assert.Equal(t, 7680*4320*3/2, MaxFramePayload)
	assert.Equal(t, MaxFramePayload+UntaggedFrameOverhead, MaxPacketSize)
}

func TestValidatePacketSize(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		max     int
		wantErr error
	}{
		{"empty", nil, 10, ErrPacketEmpty},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePacketSize(tt.data, tt.max)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidatePacket(t *testing.T) {
	assert.NoError(t, ValidatePacket([]byte{1}))
	assert.ErrorIs(t, ValidatePacket(nil), ErrPacketEmpty)
}

func TestFramePixelsAllowed(t *testing.T) {
	assert.True(t, FramePixelsAllowed(1920, 1080))
	assert.True(t, FramePixelsAllowed(7680, 4320))
	assert.False(t, FramePixelsAllowed(7680, 4321))
	assert.False(t, FramePixelsAllowed(0, 10))
	assert.False(t, FramePixelsAllowed(10, -1))
	assert.False(t, FramePixelsAllowed(1<<40, 1<<40))
}
