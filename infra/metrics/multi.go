package metrics

import coremetrics "github.com/kilianp07/gridcourier/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordQueue forwards backlog changes.
func (m *MultiSink) RecordQueue(ev coremetrics.QueueEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.QueueRecorder); ok {
			if err := rec.RecordQueue(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCompletion forwards deliveries.
func (m *MultiSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.CompletionRecorder); ok {
			if err := rec.RecordCompletion(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordViolation forwards SLA violations.
func (m *MultiSink) RecordViolation(ev coremetrics.ViolationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ViolationRecorder); ok {
			if err := rec.RecordViolation(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCourierStatus forwards courier status changes.
func (m *MultiSink) RecordCourierStatus(ev coremetrics.CourierStatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.CourierStatusRecorder); ok {
			if err := rec.RecordCourierStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
