package chat

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// outbox is an unbounded FIFO between the session loop and the caller, so a
// slow reader never stalls event handling.
type outbox struct {
	mu     sync.Mutex
	queue  deque.Deque[Event]
	sealed bool
	wake   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(ev Event) {
	o.mu.Lock()
	if o.sealed {
		o.mu.Unlock()
		return
	}
	o.queue.PushBack(ev)
	o.mu.Unlock()
	o.signal()
}

// seal stops accepting events. Already queued events are still delivered.
func (o *outbox) seal() {
	o.mu.Lock()
	o.sealed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// run delivers events to out until sealed and drained, then closes out.
// After sealing, delivery gives up once flush has elapsed.
func (o *outbox) run(out chan<- Event, flush time.Duration) {
	defer close(out)

	var deadline <-chan time.Time
	for {
		o.mu.Lock()
		sealed := o.sealed
		if o.queue.Len() == 0 {
			o.mu.Unlock()
			if sealed {
				return
			}
			<-o.wake
			continue
		}
		ev := o.queue.PopFront()
		o.mu.Unlock()

		if sealed && deadline == nil {
			timer := time.NewTimer(flush)
			defer timer.Stop()
			deadline = timer.C
		}

		select {
		case out <- ev:
		case <-o.wake:
			o.mu.Lock()
			o.queue.PushFront(ev)
			o.mu.Unlock()
		case <-deadline:
			return
		}
	}
}
