package simulation

import (
	"sync"
	"testing"
)

func TestNewRing_PanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRing(0) should panic")
		}
	}()
	NewRing[int](0)
}

func TestRing_PushOverwrite(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}

	if r.Size() != 3 {
		t.Errorf("Size() = %d, want 3", r.Size())
	}
	got := r.All()
	want := []int{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if newest, ok := r.Newest(); !ok || newest != 4 {
		t.Errorf("Newest() = %d, %v; want 4, true", newest, ok)
	}
}

func TestRing_Last(t *testing.T) {
	r := NewRing[string](5)
	for _, s := range []string{"a", "b", "c", "d"} {
		r.Push(s)
	}

	tests := []struct {
		n    int
		want []string
	}{
		{0, []string{}},
		{2, []string{"c", "d"}},
		{10, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		got := r.Last(tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("Last(%d)[%d] = %q, want %q", tt.n, i, got[i], tt.want[i])
			}
		}
	}
}

func TestRing_Clear(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Clear()

	if r.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", r.Size())
	}
	if _, ok := r.Newest(); ok {
		t.Error("Newest() ok after Clear, want false")
	}
}

func TestRing_Concurrent(t *testing.T) {
	r := NewRing[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(i)
				_ = r.All()
			}
		}()
	}
	wg.Wait()

	if r.Size() != 64 {
		t.Errorf("Size() = %d, want 64", r.Size())
	}
}
