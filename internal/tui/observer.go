package tui

// ChannelObserver adapts a session observer callback to a channel for Bubble Tea.
// Only the most recent value is kept: a slow reader skips intermediate
// states but always sees the last one.
type ChannelObserver[T any] struct {
	ch chan T
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver[T any]() *ChannelObserver[T] {
	return &ChannelObserver[T]{ch: make(chan T, 1)}
}

// Notify replaces any unread value with v. Never blocks.
func (o *ChannelObserver[T]) Notify(v T) {
	for {
		select {
		case o.ch <- v:
			return
		default:
		}
		// Full: drop the stale value and try again
		select {
		case <-o.ch:
		default:
		}
	}
}

// C returns the receive side of the channel
func (o *ChannelObserver[T]) C() <-chan T {
	return o.ch
}
