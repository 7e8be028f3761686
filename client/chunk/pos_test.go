package chunk

import (
	"math"
	"testing"
)

func TestIndexRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 50, -50, 1 << 20, math.MaxInt32, math.MinInt32}
	seen := make(map[Index]Pos)
	for _, x := range values {
		for _, z := range values {
			i := IndexOf(x, z)
			if got := i.Pos(); got != (Pos{x, z}) {
				t.Fatalf("expected %v, got %v", Pos{x, z}, got)
			}
			if prev, ok := seen[i]; ok {
				t.Fatalf("index %v shared by %v and %v", i, prev, Pos{x, z})
			}
			seen[i] = Pos{x, z}
		}
	}
	if IndexOf(-1, 0) == IndexOf(0, -1) {
		t.Fatalf("expected sign of z not to leak into x")
	}
}
