package livecall

import "sync"

const subscriberBuffer = 16

// Broker fans out SSE frames to stream subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan []byte]struct{})}
}

// Subscribe returns a channel of SSE frames. Callers must Unsubscribe.
func (broker *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)

	broker.mu.Lock()
	broker.subscribers[ch] = struct{}{}
	broker.mu.Unlock()

	return ch
}

// Unsubscribe removes ch and closes it.
func (broker *Broker) Unsubscribe(ch chan []byte) {
	broker.mu.Lock()
	_, ok := broker.subscribers[ch]
	delete(broker.subscribers, ch)
	broker.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (broker *Broker) Subscribers() int {
	broker.mu.RLock()
	defer broker.mu.RUnlock()

	return len(broker.subscribers)
}

// Publish sends a frame to every subscriber. A subscriber whose buffer is
// full misses this frame.
func (broker *Broker) Publish(event string, data []byte) {
	frame := FormatSSE(event, data)

	broker.mu.RLock()
	defer broker.mu.RUnlock()

	for ch := range broker.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

// FormatSSE renders one server-sent event.
func FormatSSE(event string, data []byte) []byte {
	frame := make([]byte, 0, len(event)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	return frame
}
