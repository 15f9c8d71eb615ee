// Package events defines the dispatch events emitted on the event bus.
//
// Available event types:
//   - ORDER_CREATED, ORDER_ASSIGNED, ORDER_COMPLETED, ORDER_CANCELLED
//   - ORDER_QUEUED, QUEUE_UPDATED
//   - COURIER_STATUS_CHANGED
//   - SLA_VIOLATION
package events
