package metrics

import "time"

// AssignmentEvent records an order bound to a courier.
type AssignmentEvent struct {
	OrderID   string
	CourierID string
	Transport string
	Distance  float64
	Weight    float64
	Manual    bool
	Time      time.Time
}

// MetricsSink records dispatch activity for observability purposes.
type MetricsSink interface {
	RecordAssignment(ev AssignmentEvent) error
}

// QueueEvent captures a backlog change.
type QueueEvent struct {
	Action  string
	OrderID string
	Size    int
	Reason  string
	Time    time.Time
}

// QueueRecorder records backlog changes.
type QueueRecorder interface {
	RecordQueue(ev QueueEvent) error
}

// CompletionEvent captures an order reaching delivered.
type CompletionEvent struct {
	OrderID   string
	CourierID string
	Duration  time.Duration
	Time      time.Time
}

// CompletionRecorder records delivered orders.
type CompletionRecorder interface {
	RecordCompletion(ev CompletionEvent) error
}

// ViolationEvent captures a breached SLA threshold.
type ViolationEvent struct {
	Kind      string
	OrderID   string
	Duration  time.Duration
	Threshold time.Duration
	Time      time.Time
}

// ViolationRecorder records SLA violations.
type ViolationRecorder interface {
	RecordViolation(ev ViolationEvent) error
}

// CourierStatusEvent is a courier snapshot after a status change.
type CourierStatusEvent struct {
	CourierID string
	Transport string
	Status    string
	Previous  string
	Time      time.Time
}

// CourierStatusRecorder records courier status changes.
type CourierStatusRecorder interface {
	RecordCourierStatus(ev CourierStatusEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentEvent) error       { return nil }
func (NopSink) RecordQueue(QueueEvent) error                 { return nil }
func (NopSink) RecordCompletion(CompletionEvent) error       { return nil }
func (NopSink) RecordViolation(ViolationEvent) error         { return nil }
func (NopSink) RecordCourierStatus(CourierStatusEvent) error { return nil }
