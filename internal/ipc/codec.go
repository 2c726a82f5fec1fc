// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ipc implements the discovery engine's request/response service
// (C8): a framed binary codec over a Unix domain socket. Grounded on
// grimm-is-flywall/internal/ctlplane/server.go's net.Listen("unix", ...) /
// os.Chmod / accept-loop pattern, but the wire codec itself is hand-rolled
// rather than net/rpc: spec.md §6 pins an exact little-endian,
// length-prefixed frame layout that net/rpc's gob encoding cannot produce.
package ipc

import (
	"encoding/binary"
	"io"
	"math"

	"grimm.is/discoverer/internal/errors"
)

// Code identifies a message's meaning on the wire.
type Code uint32

const (
	CodeQueue            Code = 1
	CodeUsageStats       Code = 2
	CodeUsageStatsResult Code = 3
	CodeSNMPCacheReload  Code = 4
	CodeShutdown         Code = 5
)

// String names a Code for logging/metrics labels.
func (c Code) String() string {
	switch c {
	case CodeQueue:
		return "QUEUE"
	case CodeUsageStats:
		return "USAGE_STATS"
	case CodeUsageStatsResult:
		return "USAGE_STATS_RESULT"
	case CodeSNMPCacheReload:
		return "SNMP_CACHE_RELOAD"
	case CodeShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// maxFrameLen bounds a single frame's payload so a corrupt or hostile
// peer can't make ReadFrame allocate unboundedly.
const maxFrameLen = 16 << 20

// Frame is one decoded message: a code plus its raw payload.
type Frame struct {
	Code    Code
	Payload []byte
}

// WriteFrame writes code and payload as [u32 code][u32 len][payload],
// all little-endian, in a single Write call.
func WriteFrame(w io.Writer, code Code, payload []byte) error {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(code))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	_, err := w.Write(buf)
	if err != nil {
		return errors.Wrap(err, errors.KindIPC, "ipc: write frame")
	}
	return nil
}

// ReadFrame reads one [u32 code][u32 len][payload] frame.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, errors.Wrap(err, errors.KindIPC, "ipc: read frame header")
	}
	code := Code(binary.LittleEndian.Uint32(hdr[0:4]))
	n := binary.LittleEndian.Uint32(hdr[4:8])
	if n > maxFrameLen {
		return Frame{}, errors.Errorf(errors.KindIPC, "ipc: frame payload %d exceeds max %d", n, maxFrameLen)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, errors.Wrap(err, errors.KindIPC, "ipc: read frame payload")
		}
	}
	return Frame{Code: code, Payload: payload}, nil
}

// EncodeQueueResponse packs a u64 pending_checks payload.
func EncodeQueueResponse(pending uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, pending)
	return buf
}

// DecodeQueueResponse unpacks a u64 pending_checks payload.
func DecodeQueueResponse(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, errors.Errorf(errors.KindIPC, "ipc: QUEUE response length %d, want 8", len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

// EncodeUsageStatsResult packs [u32 n][n x f64 busy_fraction].
func EncodeUsageStatsResult(fractions []float64) []byte {
	buf := make([]byte, 4+8*len(fractions))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(fractions)))
	for i, f := range fractions {
		off := 4 + 8*i
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(f))
	}
	return buf
}

// DecodeUsageStatsResult unpacks [u32 n][n x f64 busy_fraction].
func DecodeUsageStatsResult(payload []byte) ([]float64, error) {
	if len(payload) < 4 {
		return nil, errors.Errorf(errors.KindIPC, "ipc: USAGE_STATS_RESULT payload too short")
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	want := 4 + 8*int(n)
	if len(payload) != want {
		return nil, errors.Errorf(errors.KindIPC, "ipc: USAGE_STATS_RESULT length %d, want %d", len(payload), want)
	}
	out := make([]float64, n)
	for i := range out {
		off := 4 + 8*i
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[off : off+8]))
	}
	return out, nil
}
