package watch

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debouncer coalesces bursts of filesystem events into batches. A batch is released once no
// event arrived for window. Events keep accumulating while the consumer is busy, and any new
// event holds the batch back for another window.
type debouncer struct {
	window  time.Duration
	in      <-chan fsnotify.Event
	out     chan []fsnotify.Event
	onEvent func(fsnotify.Event)
}

func newDebouncer(window time.Duration, in <-chan fsnotify.Event) *debouncer {
	return &debouncer{
		window: window,
		in:     in,
		out:    make(chan []fsnotify.Event),
	}
}

// run forwards batches to d.out until ctx is done or the input channel is closed.
func (d *debouncer) run(ctx context.Context) {
	timer := time.NewTimer(d.window)
	timer.Stop()
	defer timer.Stop()

	var (
		pending []fsnotify.Event
		out     chan<- []fsnotify.Event // nil until a batch is ready
	)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-d.in:
			if !ok {
				return
			}

			if d.onEvent != nil {
				d.onEvent(ev)
			}

			pending = append(pending, ev)
			out = nil
			timer.Reset(d.window)

		case <-timer.C:
			if len(pending) > 0 {
				out = d.out
			}

		case out <- pending:
			pending = nil
			out = nil
		}
	}
}
