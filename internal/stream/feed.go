package stream

import "sync"

// Observer receives chunks for live display. It runs on the feed's own
// goroutine, so a slow observer delays only the display.
type Observer func(chunk string)

// feed is an unbounded ordered queue between the accumulator and one
// observer. Push never blocks; chunks are delivered in push order.
type feed struct {
	observer Observer

	mu     sync.Mutex
	queue  []string
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newFeed(observer Observer) *feed {
	f := &feed{
		observer: observer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *feed) push(chunk string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, chunk)
	f.mu.Unlock()
	f.signal()
}

// close stops accepting chunks; queued chunks are still delivered.
func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()
}

func (f *feed) wait() {
	<-f.done
}

func (f *feed) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *feed) run() {
	defer close(f.done)
	for {
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		closed := f.closed
		f.mu.Unlock()

		for _, chunk := range batch {
			f.observer(chunk)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-f.wake
	}
}
