package reload

import "testing"

func TestNotifierNotify(t *testing.T) {
	n := NewNotifier()
	n.Notify()
	select {
	case <-n.C:
	default:
		t.Fatal("expected a pending notification")
	}
}

func TestNotifierNotifyNonBlocking(t *testing.T) {
	n := NewNotifier()
	// Two back-to-back requests should coalesce into a single pending
	// notification instead of blocking the second send.
	n.Notify()
	n.Notify()
	select {
	case <-n.C:
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-n.C:
		t.Fatal("coalesced notifications should not double-fire")
	default:
	}
}
