package rpcgo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTimeoutRoundTrip(t *testing.T) {
	cases := []time.Duration{
		0,
		time.Nanosecond,
		500 * time.Millisecond,
		3 * time.Second,
		90 * time.Minute,
		100 * time.Hour,
	}
	for _, d := range cases {
		encoded, err := encodeTimeout(d)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(encoded), maxTimeoutDigits+1)

		decoded, err := decodeTimeout(encoded)
		require.NoError(t, err)
		if d <= 0 {
			assert.Equal(t, time.Duration(0), decoded)
		} else {
			assert.Equal(t, d, decoded)
		}
	}
}

func TestDecodeTimeoutRejectsMalformed(t *testing.T) {
	_, err := decodeTimeout("")
	assert.Error(t, err)
	_, err = decodeTimeout("X")
	assert.Error(t, err)
	_, err = decodeTimeout("12Q")
	assert.Error(t, err)
	_, err = decodeTimeout("999999999S") // 9 digits, exceeds maxTimeoutDigits
	assert.Error(t, err)
}

func TestContextWithTimeoutHeaderEmpty(t *testing.T) {
	ctx, cancel, err := contextWithTimeoutHeader(context.Background(), "")
	defer cancel()
	require.NoError(t, err)
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)
}

func TestContextWithTimeoutHeaderApplies(t *testing.T) {
	ctx, cancel, err := contextWithTimeoutHeader(context.Background(), "5S")
	defer cancel()
	require.NoError(t, err)
	deadline, hasDeadline := ctx.Deadline()
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}
