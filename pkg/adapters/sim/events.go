package sim

import (
	"context"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// Notifier receives perception events, typically a bridge.
type Notifier interface {
	Notify(ev domain.PerceptionEvent) error
}

// Subscribe returns a channel of appearance and disappearance events. The
// channel is closed once ctx is done. Events that do not fit in the buffer
// are dropped.
func (w *World) Subscribe(ctx context.Context, buffer int) <-chan domain.PerceptionEvent {
	ch := make(chan domain.PerceptionEvent, buffer)

	w.mu.Lock()
	w.subscribers = append(w.subscribers, ch)
	w.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, sub := range w.subscribers {
			if sub == ch {
				w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// publish must be called with w.mu held.
func (w *World) publish(ev domain.PerceptionEvent) {
	for _, ch := range w.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Forward pumps world events into n until ctx is done. Events n refuses are
// counted in dropped.
func (w *World) Forward(ctx context.Context, n Notifier) (dropped int, err error) {
	for ev := range w.Subscribe(ctx, 64) {
		if n.Notify(ev) != nil {
			dropped++
		}
	}
	return dropped, ctx.Err()
}
