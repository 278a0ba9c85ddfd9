package source

import "testing"

func TestSpanOf(t *testing.T) {
	s, err := SpanOf(3, 4, 9)
	if err != nil {
		t.Fatalf("SpanOf: %v", err)
	}
	if s != (Span{File: 3, Start: 4, End: 9}) {
		t.Errorf("SpanOf = %+v", s)
	}
	if s.Len() != 5 {
		t.Errorf("Len = %d", s.Len())
	}
	if _, err := SpanOf(0, 5, 1); err == nil {
		t.Error("expected error for inverted span")
	}
	if _, err := SpanOf(0, -1, 1); err == nil {
		t.Error("expected error for negative start")
	}
}

func TestSpanOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{0, 0, 5}, Span{0, 5, 9}, false},
		{"nested", Span{0, 0, 10}, Span{0, 2, 3}, true},
		{"partial", Span{0, 0, 5}, Span{0, 4, 9}, true},
		{"two inserts", Span{0, 3, 3}, Span{0, 3, 3}, false},
		{"insert inside", Span{0, 3, 3}, Span{0, 1, 5}, true},
		{"insert at border", Span{0, 5, 5}, Span{0, 1, 5}, false},
		{"other file", Span{0, 0, 5}, Span{1, 0, 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}
