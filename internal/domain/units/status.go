package units

import (
	"context"
	"strings"

	"unitrack/internal/core/apperror"
	appctx "unitrack/internal/core/context"
	"unitrack/pkg/logger"
)

// GetUnit returns one unit by sku with its expiry status refreshed.
func (s *Service) GetUnit(ctx context.Context, facilityID, unitSKU string) (*Unit, error) {
	if facilityID == "" || strings.TrimSpace(unitSKU) == "" {
		return nil, apperror.NewValidation("facility and unit sku are required")
	}
	u, err := s.repo.GetBySKU(ctx, facilityID, strings.TrimSpace(unitSKU))
	if err != nil {
		return nil, err
	}
	s.refresh(u)
	return u, nil
}

// ListBatch returns every unit of a batch in creation order.
func (s *Service) ListBatch(ctx context.Context, facilityID, batchID string) ([]*Unit, error) {
	if facilityID == "" || strings.TrimSpace(batchID) == "" {
		return nil, apperror.NewValidation("facility and batch id are required")
	}
	units, err := s.repo.ListByBatch(ctx, facilityID, strings.TrimSpace(batchID))
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	s.refresh(units...)
	return units, nil
}

// ChangeStatusRequest moves a unit in or out of service.
type ChangeStatusRequest struct {
	FacilityID string `json:"facilityId"`
	UnitSKU    string `json:"unitSku"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
	ActorID    string `json:"actorId,omitempty"`
}

// CanTransition reports whether a manual change from -> to is allowed.
// Exhausted is terminal and only reached through distribution. A unit can
// return to active only while it still holds quantity.
func CanTransition(from, to Status, quantity int) bool {
	switch {
	case from == to || from == StatusExhausted || to == StatusExhausted:
		return false
	case to == StatusActive:
		return quantity > 0
	case to == StatusDamaged || to == StatusRecalled:
		return true
	}
	return false
}

// ChangeStatus marks a unit damaged or recalled, or returns it to active.
// Units out of active status are skipped by distribution.
func (s *Service) ChangeStatus(ctx context.Context, req ChangeStatusRequest) (*Unit, error) {
	if !req.Status.Valid() {
		return nil, apperror.NewValidation("unknown status").WithDetail("status", string(req.Status))
	}
	ctx = appctx.WithFacility(ctx, req.FacilityID)

	var out *Unit
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		u, err := s.GetUnit(ctx, req.FacilityID, req.UnitSKU)
		if err != nil {
			return err
		}
		if !CanTransition(u.Status, req.Status, u.Quantity) {
			return apperror.NewInvalidTransition(string(u.Status), string(req.Status)).
				WithDetail("unit_sku", u.UnitSKU)
		}

		now := s.now()
		expected := u.Version
		h := NewHistoryEntry(req.ActorID, now, StatusChangedDetails{
			From:   u.Status,
			To:     req.Status,
			Reason: req.Reason,
		})
		u.Status = req.Status
		u.Version++
		u.UpdatedAt = now
		u.appendHistory(h)

		if err := s.repo.UpdateUnit(ctx, UnitUpdate{
			Unit:            u,
			ExpectedVersion: expected,
			History:         []HistoryEntry{h},
		}); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "unit status changed",
		"unit_sku", out.UnitSKU,
		"status", out.Status,
	)
	return out, nil
}

// RefreshExpiry persists the current expiry status of every tracked active
// unit in the facility and returns how many changed. Units modified
// concurrently are skipped; they are reclassified on their next load.
func (s *Service) RefreshExpiry(ctx context.Context, facilityID string) (int, error) {
	if facilityID == "" {
		return 0, apperror.NewValidation("facility is required")
	}
	ctx = appctx.WithFacility(ctx, facilityID)

	units, err := s.repo.ListByExpiry(ctx, facilityID, ExpiryFilter{})
	if err != nil {
		return 0, err
	}

	now := s.now()
	changed := 0
	for _, u := range units {
		expected := u.Version
		if !u.RefreshExpiry(now) {
			continue
		}
		u.Version++
		u.UpdatedAt = now
		err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.repo.UpdateUnit(ctx, UnitUpdate{Unit: u, ExpectedVersion: expected})
		})
		if apperror.IsConcurrentModification(err) {
			logger.Debug(ctx, "expiry refresh skipped", "unit_sku", u.UnitSKU)
			continue
		}
		if err != nil {
			return changed, err
		}
		changed++
	}

	if changed > 0 {
		logger.Info(ctx, "expiry statuses refreshed", "changed", changed)
	}
	return changed, nil
}

// RefreshAllExpiry runs RefreshExpiry for every facility holding units.
func (s *Service) RefreshAllExpiry(ctx context.Context) (int, error) {
	facilities, err := s.repo.ListFacilities(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, f := range facilities {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.RefreshExpiry(ctx, f)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
