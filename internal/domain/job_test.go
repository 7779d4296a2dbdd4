package domain

import "testing"

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{Queued, Processing},
		{Queued, Cancelled},
		{Processing, Completed},
		{Processing, Failed},
		{Processing, Cancelled},
		{Failed, Queued},
	}
	for _, e := range legal {
		if !CanTransition(e.from, e.to) {
			t.Errorf("%s -> %s should be legal", e.from, e.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{Queued, Completed},
		{Queued, Failed},
		{Processing, Queued},
		{Completed, Queued},
		{Completed, Processing},
		{Completed, Cancelled},
		{Cancelled, Queued},
		{Cancelled, Processing},
		{Failed, Processing},
		{Failed, Completed},
		{Queued, Queued},
	}
	for _, e := range illegal {
		if CanTransition(e.from, e.to) {
			t.Errorf("%s -> %s should be illegal", e.from, e.to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{Completed, Failed, Cancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{Queued, Processing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPageOffset(t *testing.T) {
	if got := (Page{Page: 1, Limit: 20}).Offset(); got != 0 {
		t.Errorf("Offset = %d, want 0", got)
	}
	if got := (Page{Page: 3, Limit: 10}).Offset(); got != 20 {
		t.Errorf("Offset = %d, want 20", got)
	}
}
