package ipaddr

import (
	"net"
	"testing"
)

func TestParseRangesSingleAddress(t *testing.T) {
	ranges, err := ParseRanges("10.0.0.1")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	if len(ranges) != 1 || !ranges[0].Start.Equal(ranges[0].End) {
		t.Fatalf("expected a single-address range, got %+v", ranges)
	}
}

func TestParseRangesTrailingOctet(t *testing.T) {
	ranges, err := ParseRanges("192.168.1.1-254")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	if !ranges[0].Start.Equal(net.ParseIP("192.168.1.1")) {
		t.Errorf("Start = %v, want 192.168.1.1", ranges[0].Start)
	}
	if !ranges[0].End.Equal(net.ParseIP("192.168.1.254")) {
		t.Errorf("End = %v, want 192.168.1.254", ranges[0].End)
	}
}

func TestParseRangesFullEndAddress(t *testing.T) {
	ranges, err := ParseRanges("10.0.0.1-10.0.0.3")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	if Volume(ranges) != 3 {
		t.Errorf("Volume = %d, want 3", Volume(ranges))
	}
}

func TestParseRangesCIDR(t *testing.T) {
	ranges, err := ParseRanges("192.168.0.0/30")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	if Volume(ranges) != 4 {
		t.Errorf("Volume(/30) = %d, want 4", Volume(ranges))
	}
}

func TestVolumeDeduplicatesOverlap(t *testing.T) {
	ranges, err := ParseRanges("10.0.0.1-10.0.0.5,10.0.0.3-10.0.0.8")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	if got := Volume(ranges); got != 8 {
		t.Errorf("Volume with overlap = %d, want 8 (addresses .1-.8 deduplicated)", got)
	}
}

func TestUniqNextEnumeratesEveryAddressOnce(t *testing.T) {
	ranges, err := ParseRanges("10.0.0.1-10.0.0.3,10.0.0.2-10.0.0.4")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	it := NewIterator(ranges)

	seen := map[string]bool{}
	cursor := ZeroCursor()
	for {
		ip, next, ok := it.UniqNext(cursor)
		if !ok {
			break
		}
		if seen[ip.String()] {
			t.Fatalf("address %s yielded more than once", ip)
		}
		seen[ip.String()] = true
		cursor = next
	}

	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
	if len(seen) != len(want) {
		t.Fatalf("got %d addresses, want %d: %v", len(seen), len(want), seen)
	}
	for _, ip := range want {
		if !seen[ip] {
			t.Errorf("expected %s to be enumerated", ip)
		}
	}
}

func TestUniqNextIsIdempotentOnSameCursor(t *testing.T) {
	ranges, err := ParseRanges("10.0.0.1-10.0.0.3")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	it := NewIterator(ranges)
	cursor := ZeroCursor()

	ip1, next1, ok1 := it.UniqNext(cursor)
	ip2, next2, ok2 := it.UniqNext(cursor)

	if !ok1 || !ok2 {
		t.Fatal("expected both calls to succeed")
	}
	if !ip1.Equal(ip2) {
		t.Errorf("UniqNext not idempotent: %s != %s", ip1, ip2)
	}
	if next1.SegIndex != next2.SegIndex || next1.Offset.Cmp(next2.Offset) != 0 {
		t.Error("resulting cursors should also match for identical input cursors")
	}
}

func TestVolumeExample2(t *testing.T) {
	// spec.md example 2: 192.168.0.0/30 has 4 addresses total.
	ranges, err := ParseRanges("192.168.0.0/30")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	it := NewIterator(ranges)
	cursor := ZeroCursor()
	count := 0
	for {
		_, next, ok := it.UniqNext(cursor)
		if !ok {
			break
		}
		count++
		cursor = next
	}
	if uint64(count) != Volume(ranges) {
		t.Errorf("enumerated %d addresses, Volume() reports %d", count, Volume(ranges))
	}
}

func TestParseRangesRejectsEmptySpec(t *testing.T) {
	if _, err := ParseRanges(""); err == nil {
		t.Fatal("expected an error for an empty range specification")
	}
}

func TestIP2StrRoundTrip(t *testing.T) {
	ranges, err := ParseRanges("10.0.0.1-10.0.0.3")
	if err != nil {
		t.Fatalf("ParseRanges: %v", err)
	}
	str := IP2Str(ranges[0].Start)
	reparsed, err := ParseRanges(str)
	if err != nil {
		t.Fatalf("re-parsing IP2Str output: %v", err)
	}
	if !reparsed[0].Start.Equal(ranges[0].Start) {
		t.Errorf("round trip mismatch: %s != %s", reparsed[0].Start, ranges[0].Start)
	}
}
