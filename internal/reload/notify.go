package reload

// Notifier implements config reload request notification
type Notifier struct {
	C chan struct{}
}

// NewNotifier initializes and returns new notifier.
func NewNotifier() Notifier {
	n := Notifier{C: make(chan struct{}, 1)}
	n.subscribe()
	return n
}

// Notify requests a reload, the same way a SIGUSR2 or a management API
// call does. Non-blocking: a reload already pending is not queued twice.
func (n Notifier) Notify() {
	select {
	case n.C <- struct{}{}:
	default:
	}
}
