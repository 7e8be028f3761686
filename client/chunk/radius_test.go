package chunk

import (
	"slices"
	"testing"
)

func TestRadiusCoverage(t *testing.T) {
	for _, center := range []Pos{{0, 0}, {50, 50}, {-7, 13}} {
		for r := int32(0); r <= 12; r++ {
			seen := make(map[Pos]int)
			Radius(center, r, func(p Pos) {
				seen[p]++
			})
			if seen[center] != 1 {
				t.Fatalf("radius %v around %v: expected centre once, got %v", r, center, seen[center])
			}
			want := 0
			for x := center.X - r; x <= center.X+r; x++ {
				for z := center.Z - r; z <= center.Z+r; z++ {
					p := Pos{x, z}
					if !InRadius(center, p, r) {
						if seen[p] != 0 {
							t.Fatalf("radius %v around %v: %v is too far but was visited", r, center, p)
						}
						continue
					}
					want++
					if seen[p] != 1 {
						t.Fatalf("radius %v around %v: expected %v once, got %v", r, center, p, seen[p])
					}
				}
			}
			if len(seen) != want {
				t.Fatalf("radius %v around %v: expected %v positions, got %v", r, center, want, len(seen))
			}
		}
	}
}

func TestRadiusZero(t *testing.T) {
	var got []Pos
	Radius(Pos{3, 4}, 0, func(p Pos) { got = append(got, p) })
	if len(got) != 1 || got[0] != (Pos{3, 4}) {
		t.Fatalf("expected only the centre, got %v", got)
	}
	Radius(Pos{3, 4}, -1, func(p Pos) { t.Fatalf("expected nothing for negative radius, got %v", p) })
}

func TestRadiusDeterministic(t *testing.T) {
	var a, b []Pos
	Radius(Pos{1, 2}, 6, func(p Pos) { a = append(a, p) })
	Radius(Pos{1, 2}, 6, func(p Pos) { b = append(b, p) })
	if !slices.Equal(a, b) {
		t.Fatalf("expected identical order between runs")
	}
	// Offsets never shrink along the order.
	last := int32(0)
	for _, p := range a {
		d := max(abs(p.X-1), abs(p.Z-2))
		if d < last {
			t.Fatalf("expected non-decreasing offsets, %v came after offset %v", p, last)
		}
		last = d
	}
}

func TestRadiusAllocations(t *testing.T) {
	n := 0
	visit := func(Pos) { n++ }
	allocs := testing.AllocsPerRun(10, func() {
		Radius(Pos{10, 10}, 8, visit)
	})
	if allocs != 0 {
		t.Fatalf("expected no allocations, got %v", allocs)
	}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
