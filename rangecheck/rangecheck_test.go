package rangecheck

import "testing"

func TestParseMapsLine(t *testing.T) {
	line := "7f1234000000-7f1234021000 r--p 00000000 00:00 0"
	start, end, ok := parseMapsLine(line)
	if !ok {
		t.Fatalf("expected line to parse")
	}
	if start != 0x7f1234000000 || end != 0x7f1234021000 {
		t.Fatalf("got [0x%x, 0x%x)", start, end)
	}
}

func TestParseMapsLineRejectsGarbage(t *testing.T) {
	if _, _, ok := parseMapsLine(""); ok {
		t.Fatalf("empty line should not parse")
	}
	if _, _, ok := parseMapsLine("not-a-maps-line"); ok {
		t.Fatalf("garbage line should not parse")
	}
}

func TestRangeOverlaps(t *testing.T) {
	r := AddressRange{Name: "test", Base: 0x1000, Size: 0x100}
	if !r.overlaps(0x1050, 0x2000) {
		t.Fatalf("expected overlap")
	}
	if r.overlaps(0x2000, 0x3000) {
		t.Fatalf("expected no overlap for disjoint ranges")
	}
	if r.overlaps(0x0, 0x1000) {
		t.Fatalf("a mapping ending exactly at the range's base should not overlap")
	}
}

func TestValidateFallbackRejectsLowRanges(t *testing.T) {
	low := AddressRange{Name: "low", Base: 0x7F00_0000_0000, Size: 0x1000}
	if err := validateFallback([]AddressRange{low}); err == nil {
		t.Fatalf("expected the fallback heuristic to reject a low-address range")
	}
}

func TestValidateFallbackAcceptsHighRanges(t *testing.T) {
	high := AddressRange{Name: "high", Base: 0x7FFF_0000_0000_0000, Size: 0x1000}
	if err := validateFallback([]AddressRange{high}); err != nil {
		t.Fatalf("expected the fallback heuristic to accept a high-address range, got %v", err)
	}
}

func TestValidateLinuxDetectsOverlap(t *testing.T) {
	// /proc/self/maps always has at least one mapping (this binary's
	// own text segment); pick the whole 47-bit canonical user-space
	// range, 0 to 1<<47, as a deliberately too-broad candidate
	// that is certain to overlap something.
	broad := AddressRange{Name: "broad", Base: 0, Size: 1 << 47}
	err := validateLinux([]AddressRange{broad})
	if err == nil {
		t.Skip("no /proc/self/maps on this platform/sandbox; nothing to assert")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("expected *ConfigurationError, got %T: %v", err, err)
	}
}
