package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CodeQueue, []byte("payload")))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, CodeQueue, frame.Code)
	assert.Equal(t, []byte("payload"), frame.Payload)
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CodeShutdown, nil))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, CodeShutdown, frame.Code)
	assert.Empty(t, frame.Payload)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// Write a header claiming a payload far larger than maxFrameLen,
	// with no actual payload bytes following.
	require.NoError(t, WriteFrame(&buf, CodeQueue, nil))
	raw := buf.Bytes()
	raw[4], raw[5], raw[6], raw[7] = 0xff, 0xff, 0xff, 0x7f

	_, err := ReadFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestQueueResponseRoundTrip(t *testing.T) {
	payload := EncodeQueueResponse(42)
	got, err := DecodeQueueResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
}

func TestQueueResponseRejectsWrongLength(t *testing.T) {
	_, err := DecodeQueueResponse([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestUsageStatsResultRoundTrip(t *testing.T) {
	fractions := []float64{0, 0.25, 1.0}
	payload := EncodeUsageStatsResult(fractions)
	got, err := DecodeUsageStatsResult(payload)
	require.NoError(t, err)
	assert.Equal(t, fractions, got)
}

func TestUsageStatsResultEmpty(t *testing.T) {
	payload := EncodeUsageStatsResult(nil)
	got, err := DecodeUsageStatsResult(payload)
	require.NoError(t, err)
	assert.Empty(t, got)
}
