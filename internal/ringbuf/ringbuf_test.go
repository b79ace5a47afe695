package ringbuf

import "testing"

func TestBuffer_PushBelowCapacity(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)
	if b.Len() != 2 {
		t.Fatalf("expected len 2, got %d", b.Len())
	}
	got := b.Items()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected items %v", got)
	}
}

func TestBuffer_OverwritesOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	got := b.Items()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBuffer_NeverExceedsCapacity(t *testing.T) {
	b := New[string](100)
	for i := 0; i < 1000; i++ {
		b.Push("x")
		if b.Len() > b.Cap() {
			t.Fatalf("len %d exceeds cap %d", b.Len(), b.Cap())
		}
	}
	if b.Len() != 100 {
		t.Fatalf("expected len 100, got %d", b.Len())
	}
}

func TestBuffer_Last(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Push(i)
	}
	got := b.Last(2)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("expected [5 6], got %v", got)
	}
	if all := b.Last(0); len(all) != 4 || all[0] != 3 {
		t.Fatalf("expected all four items from 3, got %v", all)
	}
	if over := b.Last(10); len(over) != 4 {
		t.Fatalf("expected 4 items, got %d", len(over))
	}
}

func TestBuffer_NewestAndClear(t *testing.T) {
	b := New[int](2)
	if _, ok := b.Newest(); ok {
		t.Fatal("empty buffer should have no newest item")
	}
	b.Push(7)
	b.Push(8)
	b.Push(9)
	if v, ok := b.Newest(); !ok || v != 9 {
		t.Fatalf("expected newest 9, got %d", v)
	}
	b.Clear()
	if b.Len() != 0 || b.Cap() != 2 {
		t.Fatalf("clear should keep capacity, got len=%d cap=%d", b.Len(), b.Cap())
	}
}

func TestNew_ClampsCapacity(t *testing.T) {
	if New[int](0).Cap() != 1 {
		t.Fatal("expected capacity clamped to 1")
	}
}
