package clock

import (
	"testing"
)

func TestVectorClock_New(t *testing.T) {
	vc := New(3)
	if vc.Len() != 3 {
		t.Fatalf("Expected length 3, got %d", vc.Len())
	}
	for i := 0; i < 3; i++ {
		if vc.Get(i) != 0 {
			t.Errorf("Expected slot %d to be 0, got %d", i, vc.Get(i))
		}
	}

	if New(-1).Len() != 0 {
		t.Error("Expected negative size to produce an empty clock")
	}
}

func TestVectorClock_Increment(t *testing.T) {
	vc := New(3)
	vc.Increment(1)
	if vc.Get(1) != 1 {
		t.Errorf("Expected counter 1, got %d", vc.Get(1))
	}

	vc.Increment(1)
	if vc.Get(1) != 2 {
		t.Errorf("Expected counter 2, got %d", vc.Get(1))
	}

	if vc.Get(0) != 0 || vc.Get(2) != 0 {
		t.Errorf("Expected other slots untouched, got %s", vc)
	}
}

func TestVectorClock_Observe(t *testing.T) {
	vc := New(2)
	vc.Observe(0)
	vc.Observe(0)
	if vc.Get(0) != 2 {
		t.Errorf("Expected counter 2 for sender 0, got %d", vc.Get(0))
	}
}

func TestVectorClock_GetOutOfRange(t *testing.T) {
	vc := VectorClock{1, 2}
	if vc.Get(-1) != 0 || vc.Get(5) != 0 {
		t.Error("Expected out-of-range reads to return 0")
	}
}

func TestVectorClock_Compare(t *testing.T) {
	tests := []struct {
		name     string
		vc1      VectorClock
		vc2      VectorClock
		expected CompareResult
	}{
		{
			name:     "equal clocks",
			vc1:      VectorClock{1, 2},
			vc2:      VectorClock{1, 2},
			expected: Equal,
		},
		{
			name:     "empty clocks are equal",
			vc1:      New(0),
			vc2:      New(0),
			expected: Equal,
		},
		{
			name:     "vc1 before vc2",
			vc1:      VectorClock{1, 1},
			vc2:      VectorClock{2, 2},
			expected: Before,
		},
		{
			name:     "vc1 after vc2",
			vc1:      VectorClock{2, 2},
			vc2:      VectorClock{1, 1},
			expected: After,
		},
		{
			name:     "concurrent: vc1 has higher slot 0, vc2 has higher slot 1",
			vc1:      VectorClock{2, 1},
			vc2:      VectorClock{1, 2},
			expected: Concurrent,
		},
		{
			name:     "shorter clock padded with zeros",
			vc1:      VectorClock{1},
			vc2:      VectorClock{1, 1},
			expected: Before,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.vc1.Compare(tt.vc2)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestVectorClock_Snapshot(t *testing.T) {
	vc1 := VectorClock{5, 3}

	vc2 := vc1.Snapshot()
	if !vc1.Equal(vc2) {
		t.Error("Snapshot should be equal to original")
	}

	vc1.Increment(0)
	if vc2.Get(0) != 5 {
		t.Errorf("Modifying original should not affect snapshot, got %d", vc2.Get(0))
	}

	vc2.Increment(1)
	if vc1.Get(1) != 3 {
		t.Errorf("Modifying snapshot should not affect original, got %d", vc1.Get(1))
	}
}

func TestVectorClock_CopyNil(t *testing.T) {
	var vc VectorClock
	if vc.Copy() != nil {
		t.Error("Copy of nil clock should be nil")
	}
}

func TestVectorClock_Dominates(t *testing.T) {
	vc1 := VectorClock{2, 2}
	vc2 := VectorClock{1, 1}

	if !vc1.Dominates(vc2) {
		t.Error("vc1 should dominate vc2")
	}

	if vc2.Dominates(vc1) {
		t.Error("vc2 should not dominate vc1")
	}
}

func TestVectorClock_String(t *testing.T) {
	vc := VectorClock{1, 0, 2}
	if vc.String() != "[1 0 2]" {
		t.Errorf("Expected [1 0 2], got %s", vc.String())
	}
	if New(0).String() != "[]" {
		t.Errorf("Expected [], got %s", New(0).String())
	}
}

func TestCompareResult_String(t *testing.T) {
	if Concurrent.String() != "CONCURRENT" {
		t.Errorf("Expected CONCURRENT, got %s", Concurrent.String())
	}
	if CompareResult(42).String() != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN, got %s", CompareResult(42).String())
	}
}
