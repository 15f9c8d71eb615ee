package app

import (
	"context"
	"errors"
	"time"
)

// markDirty schedules a save. Requests coalesce while a save is pending.
func (s *Service) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// saver writes the latest state whenever it is marked dirty. Failures are
// logged and the engine keeps running.
func (s *Service) saver() {
	defer close(s.saverDone)
	for {
		select {
		case <-s.quit:
			return
		case <-s.dirty:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(ctx); err != nil {
				s.log.Errorf("save state: %v", err)
			}
			cancel()
		}
	}
}

// Flush saves orders and couriers synchronously.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	orders := s.ordersLocked()
	couriers := s.matcher.Couriers()
	s.mu.Unlock()
	return errors.Join(
		s.store.SaveOrders(ctx, orders),
		s.store.SaveCouriers(ctx, couriers),
	)
}
