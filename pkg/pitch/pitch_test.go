package pitch

import (
	"sync"
	"testing"
)

func TestNewAccumulator(t *testing.T) {
	tests := []struct {
		name      string
		reference float64
		want      float64
	}{
		{"explicit", 432, 432},
		{"zero falls back", 0, Reference},
		{"negative falls back", -1, Reference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccumulator(tt.reference)
			if got := a.Read(); got != tt.want {
				t.Errorf("Read() = %v, want %v", got, tt.want)
			}
			if got := a.Reference(); got != tt.want {
				t.Errorf("Reference() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteAndReset(t *testing.T) {
	a := NewAccumulator(Reference)

	if got := a.WriteAndReturn(660); got != 660 {
		t.Errorf("WriteAndReturn() = %v, want 660", got)
	}
	if got := a.Read(); got != 660 {
		t.Errorf("Read() = %v, want 660", got)
	}

	a.WriteAndReturn(110)
	if got := a.Read(); got != 110 {
		t.Errorf("Read() after WriteAndReturn(110) = %v, want 110", got)
	}

	a.Reset()
	if got := a.Read(); got != Reference {
		t.Errorf("Read() after Reset = %v, want %v", got, Reference)
	}
}

func TestConcurrentWrites(t *testing.T) {
	a := NewAccumulator(Reference)
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(hz float64) {
			defer wg.Done()
			a.WriteAndReturn(hz)
			_ = a.Read()
		}(float64(i))
	}
	wg.Wait()

	if got := a.Read(); got < 1 || got > 50 {
		t.Errorf("Read() = %v, want one of the written values", got)
	}
}
