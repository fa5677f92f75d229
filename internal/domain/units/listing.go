package units

import (
	"context"
	"iter"
	"time"

	"unitrack/internal/core/apperror"
)

// ListExpiring yields the facility's expired units, then the units expiring
// within windowDays. Each group is loaded only when the consumer reaches it;
// empty groups are skipped. windowDays <= 0 uses DefaultAlertWindowDays.
//
// Group keys always equal the Expiry.Status of their units. A unit inside
// windowDays but outside its own alert window is yielded in a trailing
// fresh group.
//
// The sequence can be ranged more than once; every pass queries the store
// again. A store error is yielded once and ends the sequence.
func (s *Service) ListExpiring(ctx context.Context, facilityID string, windowDays int) iter.Seq2[Group[ExpiryStatus], error] {
	return func(yield func(Group[ExpiryStatus], error) bool) {
		if facilityID == "" {
			yield(Group[ExpiryStatus]{}, apperror.NewValidation("facility is required"))
			return
		}
		if windowDays <= 0 {
			windowDays = DefaultAlertWindowDays
		}

		now := s.now()
		stages := []struct {
			key    ExpiryStatus
			filter ExpiryFilter
		}{
			{ExpiryExpired, ExpiryFilter{Before: now}},
			{ExpiryExpiring, ExpiryFilter{From: now, Through: WindowEnd(now, windowDays)}},
		}

		for _, st := range stages {
			units, err := s.repo.ListByExpiry(ctx, facilityID, st.filter)
			if err != nil {
				yield(Group[ExpiryStatus]{}, err)
				return
			}
			for _, g := range groupByExpiry(units, now, st.key) {
				if !yield(g, nil) {
					return
				}
			}
		}
	}
}

// groupByExpiry classifies units at now and splits them by status. The
// expected status comes first; other statuses follow in severity order.
func groupByExpiry(units []*Unit, now time.Time, expected ExpiryStatus) []Group[ExpiryStatus] {
	if len(units) == 0 {
		return nil
	}
	byStatus := make(map[ExpiryStatus][]*Unit, 1)
	for _, u := range units {
		u.RefreshExpiry(now)
		byStatus[u.Expiry.Status] = append(byStatus[u.Expiry.Status], u)
	}

	order := []ExpiryStatus{expected}
	for _, st := range []ExpiryStatus{ExpiryExpired, ExpiryExpiring, ExpiryFresh, ExpiryUntracked} {
		if st != expected {
			order = append(order, st)
		}
	}

	var out []Group[ExpiryStatus]
	for _, st := range order {
		if len(byStatus[st]) > 0 {
			out = append(out, Group[ExpiryStatus]{Key: st, Units: byStatus[st]})
		}
	}
	return out
}

// ListLowStock yields one group per product whose total active quantity is
// above zero and at most threshold, in product name order. Units within a
// group are in FIFO order and are loaded as the consumer advances.
func (s *Service) ListLowStock(ctx context.Context, facilityID string, threshold int) iter.Seq2[Group[string], error] {
	return func(yield func(Group[string], error) bool) {
		if facilityID == "" {
			yield(Group[string]{}, apperror.NewValidation("facility is required"))
			return
		}
		if threshold < 1 {
			yield(Group[string]{}, apperror.NewValidation("threshold must be at least 1").
				WithDetail("threshold", threshold))
			return
		}

		levels, err := s.repo.StockLevels(ctx, facilityID, threshold)
		if err != nil {
			yield(Group[string]{}, err)
			return
		}

		for _, lvl := range levels {
			units, err := s.repo.FindActive(ctx, facilityID, lvl.ProductName, false)
			if err != nil {
				yield(Group[string]{}, err)
				return
			}
			if len(units) == 0 {
				continue
			}
			s.refresh(units...)
			if !yield(Group[string]{Key: lvl.ProductName, Units: units}, nil) {
				return
			}
		}
	}
}

// StockLevels returns the low-stock aggregates without loading units.
func (s *Service) StockLevels(ctx context.Context, facilityID string, threshold int) ([]StockLevel, error) {
	if facilityID == "" {
		return nil, apperror.NewValidation("facility is required")
	}
	if threshold < 1 {
		return nil, apperror.NewValidation("threshold must be at least 1")
	}
	return s.repo.StockLevels(ctx, facilityID, threshold)
}
