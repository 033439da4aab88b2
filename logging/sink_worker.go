package logging

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// sinkWorker feeds one sink. After a failed write it waits an
// exponentially growing delay before writing again.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback logrus.FieldLogger
	retry    *backoff.ExponentialBackOff
	dropped  atomic.Uint64
}

func newSinkWorker(name string, sink Sink, buffer int, fallback logrus.FieldLogger) *sinkWorker {
	if buffer <= 0 {
		buffer = 32
	}
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 32 * time.Second
	return &sinkWorker{
		name:     name,
		sink:     sink,
		events:   make(chan Event, buffer),
		fallback: fallback,
		retry:    retry,
	}
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- cloneForFields(event):
	default:
		w.dropped.Add(1)
		w.fallback.WithFields(logrus.Fields{"sink": w.name, "type": event.Type}).Warn("sink backlog full, dropping event")
	}
}

// run writes events until the channel closes. A cool-down is cut short when
// the router shuts down so Close does not wait on a broken sink.
func (w *sinkWorker) run(done <-chan struct{}) {
	var wait time.Duration
	for event := range w.events {
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-done:
				timer.Stop()
			}
		}
		if err := w.sink.Write(event); err != nil {
			wait = w.retry.NextBackOff()
			w.fallback.WithError(err).WithFields(logrus.Fields{"sink": w.name, "retry": wait}).Warn("sink failed")
			continue
		}
		if wait > 0 {
			wait = 0
			w.retry.Reset()
		}
	}
}
