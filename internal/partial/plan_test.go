package partial

import "testing"

func TestPlan(t *testing.T) {
	tests := []struct {
		name   string
		out    int
		in     int
		maxOps uint64
		want   []Range
	}{
		{"unbounded", 10, 4, 0, []Range{{0, 10}}},
		{"even split", 4, 10, 20, []Range{{0, 2}, {2, 4}}},
		{"ragged tail", 5, 10, 20, []Range{{0, 2}, {2, 4}, {4, 5}}},
		{"budget below one row", 3, 100, 10, []Range{{0, 1}, {1, 2}, {2, 3}}},
		{"budget covers all", 3, 10, 1000, []Range{{0, 3}}},
		{"zero outputs", 0, 10, 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(tt.out, tt.in, tt.maxOps)
			if len(got) != len(tt.want) {
				t.Fatalf("Plan() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Plan()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPlanCoversExactlyOnce(t *testing.T) {
	for _, maxOps := range []uint64{0, 1, 7, 16, 64, 1 << 40} {
		ranges := Plan(17, 5, maxOps)
		covered := make([]int, 17)
		for _, r := range ranges {
			if r.Start >= r.End {
				t.Fatalf("maxOps %d: degenerate range %v", maxOps, r)
			}
			for j := r.Start; j < r.End; j++ {
				covered[j]++
			}
		}
		for j, c := range covered {
			if c != 1 {
				t.Errorf("maxOps %d: output %d covered %d times", maxOps, j, c)
			}
		}
	}
}
