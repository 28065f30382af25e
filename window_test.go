package h2

import "testing"

func TestWindowConsumeAndCredit(t *testing.T) {
	w := NewWindow(100)

	if w.Available() != 100 {
		t.Fatalf("Available() = %d, want 100", w.Available())
	}

	w.Consume(40)
	if w.Available() != 60 {
		t.Fatalf("Available() after Consume(40) = %d, want 60", w.Available())
	}

	if err := w.Credit(40); err != nil {
		t.Fatalf("unexpected error crediting: %v", err)
	}
	if w.Available() != 100 {
		t.Fatalf("Available() after Credit(40) = %d, want 100", w.Available())
	}
}

func TestWindowConsumeBeyondAvailablePanics(t *testing.T) {
	w := NewWindow(10)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic consuming beyond available credit")
		}
	}()
	w.Consume(11)
}

func TestWindowCreditOverflow(t *testing.T) {
	w := NewWindow(0)
	if err := w.Credit(int64(maxWindowSize)); err != nil {
		t.Fatalf("unexpected error at the boundary: %v", err)
	}
	if err := w.Credit(1); err != ErrFlowControlOverflow {
		t.Fatalf("Credit past the 2^31-1 ceiling = %v, want ErrFlowControlOverflow", err)
	}
}

func TestWindowReceiveSideThreshold(t *testing.T) {
	w := NewWindow(100) // threshold = 25

	w.Dec(20)
	if w.NeedsUpdate() {
		t.Fatalf("NeedsUpdate() should be false below the threshold")
	}

	w.Dec(10) // consumed=30, crosses threshold
	if !w.NeedsUpdate() {
		t.Fatalf("NeedsUpdate() should be true once consumed crosses the threshold")
	}

	inc := w.TakeUpdate()
	if inc != 30 {
		t.Fatalf("TakeUpdate() = %d, want 30", inc)
	}
	if w.NeedsUpdate() {
		t.Fatalf("NeedsUpdate() should reset to false after TakeUpdate")
	}
}

func TestWindowSetCapacityPreservesInFlightUsage(t *testing.T) {
	w := NewWindow(100)
	w.Consume(30) // available = 70

	w.SetCapacity(200) // delta = +100
	if w.Available() != 170 {
		t.Fatalf("Available() after growing capacity = %d, want 170", w.Available())
	}
	if w.Capacity() != 200 {
		t.Fatalf("Capacity() = %d, want 200", w.Capacity())
	}
}
