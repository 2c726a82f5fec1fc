// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ipaddr implements the discovery engine's lazy, uniqueness
// preserving IP-range iterator: parse a textual range expression into
// segments, compute their exact combined volume, and walk every distinct
// address across overlapping segments exactly once via a resumable
// cursor. It favors the teacher's plain, allocation-light table-walk
// style over a general-purpose interval tree.
package ipaddr

import (
	"fmt"
	"math/big"
	"net"
	"sort"
	"strconv"
	"strings"

	"grimm.is/discoverer/internal/errors"
)

// Range is one parsed segment: a CIDR block, an explicit a.b.c.d-e (or
// a.b.c.d-w.x.y.z) span, or a single address.
type Range struct {
	Start net.IP
	End   net.IP
}

// ParseRanges parses a comma-separated range specification of the form
// "a.b.c.d[-e][,f.g.h.i/24,...]" into its constituent segments. Each
// segment may be a bare address, a dash range (either a trailing-octet
// shorthand like "10.0.0.1-5" or a full end address like
// "10.0.0.1-10.0.0.3"), or a CIDR block.
func ParseRanges(spec string) ([]Range, error) {
	parts := strings.Split(spec, ",")
	ranges := make([]Range, 0, len(parts))
	for _, raw := range parts {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}
		r, err := parseSegment(seg)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindConfig, "ipaddr: parse segment %q", seg)
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, errors.New(errors.KindConfig, "ipaddr: empty range specification")
	}
	return ranges, nil
}

func parseSegment(seg string) (Range, error) {
	if strings.Contains(seg, "/") {
		_, ipnet, err := net.ParseCIDR(seg)
		if err != nil {
			return Range{}, err
		}
		start, end := cidrBounds(ipnet)
		return Range{Start: start, End: end}, nil
	}

	if idx := strings.Index(seg, "-"); idx >= 0 {
		startStr := seg[:idx]
		endStr := seg[idx+1:]

		start := net.ParseIP(startStr)
		if start == nil {
			return Range{}, fmt.Errorf("invalid start address %q", startStr)
		}

		var end net.IP
		if strings.Contains(endStr, ".") || strings.Contains(endStr, ":") {
			end = net.ParseIP(endStr)
			if end == nil {
				return Range{}, fmt.Errorf("invalid end address %q", endStr)
			}
		} else {
			last, err := strconv.Atoi(endStr)
			if err != nil || last < 0 || last > 255 {
				return Range{}, fmt.Errorf("invalid trailing-octet bound %q", endStr)
			}
			v4 := start.To4()
			if v4 == nil {
				return Range{}, fmt.Errorf("trailing-octet shorthand requires an IPv4 start address, got %q", startStr)
			}
			end = make(net.IP, net.IPv4len)
			copy(end, v4)
			end[3] = byte(last)
		}
		return Range{Start: start, End: end}, nil
	}

	ip := net.ParseIP(seg)
	if ip == nil {
		return Range{}, fmt.Errorf("invalid address %q", seg)
	}
	return Range{Start: ip, End: ip}, nil
}

func cidrBounds(ipnet *net.IPNet) (net.IP, net.IP) {
	start := ipnet.IP
	end := make(net.IP, len(start))
	copy(end, start)
	for i := range end {
		end[i] |= ^ipnet.Mask[i]
	}
	return start, end
}

// IP2Str renders an address in its canonical textual form.
func IP2Str(ip net.IP) string {
	return ip.String()
}

// Volume returns the exact count of distinct addresses spanned by
// ranges, with overlapping or adjacent segments merged so each address
// is counted once.
func Volume(ranges []Range) uint64 {
	merged := mergeSegments(ranges)
	total := new(big.Int)
	for _, seg := range merged {
		span := new(big.Int).Sub(seg.end, seg.start)
		span.Add(span, big.NewInt(1))
		total.Add(total, span)
	}
	if !total.IsUint64() {
		return ^uint64(0)
	}
	return total.Uint64()
}

type segment struct {
	start, end *big.Int
	v4         bool
}

func mergeSegments(ranges []Range) []segment {
	segs := make([]segment, 0, len(ranges))
	for _, r := range ranges {
		v4 := r.Start.To4() != nil
		segs = append(segs, segment{
			start: ipToBigInt(r.Start),
			end:   ipToBigInt(r.End),
			v4:    v4,
		})
	}
	sort.Slice(segs, func(i, j int) bool {
		return segs[i].start.Cmp(segs[j].start) < 0
	})

	merged := make([]segment, 0, len(segs))
	for _, s := range segs {
		if len(merged) == 0 {
			merged = append(merged, s)
			continue
		}
		last := &merged[len(merged)-1]
		// Adjacent (last.end+1 == s.start) or overlapping segments merge.
		adjacent := new(big.Int).Add(last.end, big.NewInt(1))
		if s.start.Cmp(adjacent) <= 0 {
			if s.end.Cmp(last.end) > 0 {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func ipToBigInt(ip net.IP) *big.Int {
	if v4 := ip.To4(); v4 != nil {
		return new(big.Int).SetBytes(v4)
	}
	return new(big.Int).SetBytes(ip.To16())
}

func bigIntToIP(v *big.Int, v4 bool) net.IP {
	b := v.Bytes()
	size := net.IPv6len
	if v4 {
		size = net.IPv4len
	}
	buf := make([]byte, size)
	copy(buf[size-len(b):], b)
	return net.IP(buf)
}

// Cursor is a resumable position within an Iterator's merged address
// space: which segment, and the address offset within it.
type Cursor struct {
	SegIndex int
	Offset   *big.Int
}

// Iterator walks the deduplicated union of a set of Range segments.
type Iterator struct {
	segments []segment
}

// NewIterator builds an Iterator over ranges, merging overlaps up front
// so every address is produced at most once regardless of how many
// input segments cover it.
func NewIterator(ranges []Range) *Iterator {
	return &Iterator{segments: mergeSegments(ranges)}
}

// ZeroCursor returns the cursor that begins iteration from the start.
func ZeroCursor() Cursor {
	return Cursor{SegIndex: 0, Offset: big.NewInt(0)}
}

// UniqNext returns the address at cursor, the cursor advanced past it,
// and true — or a zero IP, the unchanged cursor, and false once the
// union is exhausted. It is a pure function of its argument: calling it
// twice with the same cursor yields the same address, so a task that
// persists only its cursor resumes deterministically.
func (it *Iterator) UniqNext(cursor Cursor) (net.IP, Cursor, bool) {
	idx := cursor.SegIndex
	offset := cursor.Offset
	if offset == nil {
		offset = big.NewInt(0)
	}

	for idx < len(it.segments) {
		seg := it.segments[idx]
		span := new(big.Int).Sub(seg.end, seg.start)
		span.Add(span, big.NewInt(1))

		if offset.Cmp(span) >= 0 {
			idx++
			offset = big.NewInt(0)
			continue
		}

		addrVal := new(big.Int).Add(seg.start, offset)
		ip := bigIntToIP(addrVal, seg.v4)

		next := Cursor{SegIndex: idx, Offset: new(big.Int).Add(offset, big.NewInt(1))}
		if next.Offset.Cmp(span) >= 0 {
			next = Cursor{SegIndex: idx + 1, Offset: big.NewInt(0)}
		}
		return ip, next, true
	}

	return net.IP{}, cursor, false
}
