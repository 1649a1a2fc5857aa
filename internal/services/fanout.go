package services

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/models"
)

// Fanout broadcasts state-change events to any number of live
// subscribers. Sends are non-blocking: a slow or stalled subscriber
// drops events instead of holding up the acknowledgement path or the
// other subscribers.
type Fanout struct {
	mu          sync.Mutex
	subscribers map[chan models.StateChangeEvent]struct{}
	bufferSize  int
	logger      zerolog.Logger
}

// NewFanout creates an empty broadcaster.
func NewFanout(logger zerolog.Logger) *Fanout {
	return &Fanout{
		subscribers: make(map[chan models.StateChangeEvent]struct{}),
		bufferSize:  constants.DefaultFanoutBufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new consumer channel.
func (f *Fanout) Subscribe() chan models.StateChangeEvent {
	ch := make(chan models.StateChangeEvent, f.bufferSize)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes a consumer channel and closes it.
func (f *Fanout) Unsubscribe(ch chan models.StateChangeEvent) {
	if ch == nil {
		return
	}
	f.mu.Lock()
	_, ok := f.subscribers[ch]
	delete(f.subscribers, ch)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish delivers the event to every currently registered subscriber.
// The lock is held across the sends so an unsubscribe cannot close a
// channel mid-broadcast; the sends never block, so nothing stalls
// behind it.
func (f *Fanout) Publish(event models.StateChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			f.logger.Warn().
				Str("device", event.Device).
				Str("kind", event.Kind).
				Msg("Dropping event for slow subscriber")
		}
	}
}
