package kernel

import "testing"

type fakeCloser struct{ closed bool }

func (c *fakeCloser) Close() error {
	c.closed = true
	return nil
}

func TestHandleTableSetClosesPreviousEntry(t *testing.T) {
	h := newHandleTable(4)
	first := &fakeCloser{}
	second := &fakeCloser{}

	h.Set(0, first)
	h.Set(0, second)

	if !first.closed {
		t.Fatalf("replacing a handle did not close the previous entry")
	}
	if got := h.Get(0); got != second {
		t.Fatalf("Get(0) = %v, want the second entry", got)
	}
}

func TestHandleTableCloseAllClosesEveryEntry(t *testing.T) {
	h := newHandleTable(4)
	a, b := &fakeCloser{}, &fakeCloser{}
	h.Set(0, a)
	h.Set(2, b)

	h.CloseAll()

	if !a.closed || !b.closed {
		t.Fatalf("CloseAll did not close every live entry")
	}
	if h.Get(0) != nil || h.Get(2) != nil {
		t.Fatalf("CloseAll did not clear slots")
	}
}

func TestHandleTableOutOfRangeSlotIsANoop(t *testing.T) {
	h := newHandleTable(2)
	h.Set(-1, &fakeCloser{})
	h.Set(2, &fakeCloser{})
	if h.Get(-1) != nil || h.Get(2) != nil {
		t.Fatalf("out-of-range Get did not return nil")
	}
}
