package metrics

import (
	"context"

	"github.com/kilianp07/gridcourier/core/events"
	coremetrics "github.com/kilianp07/gridcourier/core/metrics"
	"github.com/kilianp07/gridcourier/infra/logger"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

// Streamer hands out buffered event subscriptions.
type Streamer interface {
	Stream(buffer int, types ...string) (<-chan eventbus.Event, func())
}

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled. The returned channel is closed once
// the collector has exited.
func StartEventCollector(ctx context.Context, bus Streamer, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub, cancel := bus.Stream(256,
		events.OrderAssigned, events.QueueUpdated, events.OrderQueued,
		events.OrderCompleted, events.SLAViolation, events.CourierStatusChanged)
	go func() {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnw("record metric failed", map[string]any{"type": ev.Type, "error": err})
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.Data.(type) {
	case events.AssignmentEvent:
		rec := coremetrics.AssignmentEvent{
			CourierID: e.CourierID,
			Transport: e.Transport,
			Distance:  e.Distance,
			Manual:    e.Manual,
			Time:      ev.Timestamp,
		}
		if e.Order != nil {
			rec.OrderID = e.Order.ID
			rec.Weight = e.Order.Weight
		}
		return sink.RecordAssignment(rec)
	case events.QueueEvent:
		if r, ok := sink.(coremetrics.QueueRecorder); ok {
			return r.RecordQueue(coremetrics.QueueEvent{Action: e.Action, OrderID: e.OrderID, Size: e.Size, Time: ev.Timestamp})
		}
	case events.QueuedEvent:
		if r, ok := sink.(coremetrics.QueueRecorder); ok && e.Order != nil {
			return r.RecordQueue(coremetrics.QueueEvent{Action: "queued", OrderID: e.Order.ID, Size: e.QueueSize, Reason: e.Reason, Time: ev.Timestamp})
		}
	case events.OrderEvent:
		if ev.Type != events.OrderCompleted || e.Order == nil {
			return nil
		}
		if r, ok := sink.(coremetrics.CompletionRecorder); ok {
			return r.RecordCompletion(coremetrics.CompletionEvent{
				OrderID:   e.Order.ID,
				CourierID: e.CourierID,
				Duration:  e.Order.Duration(),
				Time:      ev.Timestamp,
			})
		}
	case events.ViolationEvent:
		if r, ok := sink.(coremetrics.ViolationRecorder); ok {
			return r.RecordViolation(coremetrics.ViolationEvent{
				Kind:      e.Kind,
				OrderID:   e.OrderID,
				Duration:  e.Duration,
				Threshold: e.Threshold,
				Time:      ev.Timestamp,
			})
		}
	case events.CourierEvent:
		if r, ok := sink.(coremetrics.CourierStatusRecorder); ok && e.Courier != nil {
			return r.RecordCourierStatus(coremetrics.CourierStatusEvent{
				CourierID: e.Courier.ID,
				Transport: e.Courier.Transport.Name,
				Status:    string(e.Courier.Status),
				Previous:  string(e.Previous),
				Time:      ev.Timestamp,
			})
		}
	}
	return nil
}
