package units

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"unitrack/internal/core/apperror"
	appctx "unitrack/internal/core/context"
	"unitrack/internal/core/tx"
	"unitrack/internal/core/types"
	"unitrack/pkg/logger"
)

// DistributionRequest asks for Quantity units of a product to leave stock.
type DistributionRequest struct {
	FacilityID  string `json:"facilityId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	Destination string `json:"destination,omitempty"`
	ActorID     string `json:"actorId,omitempty"`
	OperationID string `json:"operationId,omitempty"`
}

func (r DistributionRequest) validate() error {
	switch {
	case r.FacilityID == "":
		return apperror.NewValidation("facility is required")
	case strings.TrimSpace(r.ProductName) == "":
		return apperror.NewValidation("product name is required")
	case r.Quantity < 1:
		return apperror.NewValidation("quantity must be at least 1").WithDetail("quantity", r.Quantity)
	case strings.TrimSpace(r.Reason) == "" && strings.TrimSpace(r.Destination) == "":
		return apperror.NewValidation("reason or destination is required")
	}
	return nil
}

// ConsumedUnit reports how much was taken from one unit.
type ConsumedUnit struct {
	UnitSKU       string      `json:"unitSku"`
	BatchID       string      `json:"batchId"`
	QuantityTaken int         `json:"quantityTaken"`
	Remaining     int         `json:"remaining"`
	FIFOPosition  int         `json:"fifoPosition"`
	UnitPrice     types.Money `json:"unitPrice"`
}

// DistributionResult is the outcome of a successful distribution.
type DistributionResult struct {
	OperationID string         `json:"operationId,omitempty"`
	FacilityID  string         `json:"facilityId"`
	ProductName string         `json:"productName"`
	Requested   int            `json:"requested"`
	Distributed int            `json:"distributed"`
	TotalValue  types.Money    `json:"totalValue"`
	Units       []ConsumedUnit `json:"units"`
	Timestamp   time.Time      `json:"timestamp"`
	Replayed    bool           `json:"replayed,omitempty"`
}

// Batches returns the distinct batch ids touched, in FIFO order.
func (r *DistributionResult) Batches() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, u := range r.Units {
		if _, ok := seen[u.BatchID]; ok {
			continue
		}
		seen[u.BatchID] = struct{}{}
		out = append(out, u.BatchID)
	}
	return out
}

// Distribute consumes req.Quantity from the product's active units, oldest
// received first. If the total available is short nothing is touched and
// INSUFFICIENT_INVENTORY reports both quantities.
func (s *Service) Distribute(ctx context.Context, req DistributionRequest) (*DistributionResult, error) {
	ctx, span := tracer.Start(ctx, "units.Distribute",
		trace.WithAttributes(
			attribute.String("facility.id", req.FacilityID),
			attribute.Int("units.requested", req.Quantity),
		),
	)
	defer span.End()
	ctx = appctx.WithFacility(ctx, req.FacilityID)

	if err := req.validate(); err != nil {
		return nil, err
	}
	req.ProductName = strings.TrimSpace(req.ProductName)

	var prev DistributionResult
	replayed, err := s.replay(ctx, req.OperationID, OperationDistribute, req.FacilityID, &prev)
	if err != nil {
		return nil, err
	}
	if replayed {
		prev.Replayed = true
		return &prev, nil
	}

	atomic := tx.IsAtomic(s.txManager)
	var result *DistributionResult
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		units, err := s.repo.FindActive(ctx, req.FacilityID, req.ProductName, true)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return apperror.NewNotFound("product", req.ProductName).
				WithDetail("facility_id", req.FacilityID)
		}

		available := 0
		for _, u := range units {
			available += u.Available()
		}
		if available < req.Quantity {
			return apperror.NewInsufficientInventory(req.ProductName, available, req.Quantity)
		}

		now := s.now()
		result = &DistributionResult{
			OperationID: req.OperationID,
			FacilityID:  req.FacilityID,
			ProductName: req.ProductName,
			Requested:   req.Quantity,
			TotalValue:  types.Zero(),
			Timestamp:   now,
		}

		remaining := req.Quantity
		for i, u := range units {
			if remaining == 0 {
				break
			}
			take := min(remaining, u.Available())
			if take == 0 {
				continue
			}
			upd := u.consume(take, i+1, req, now)
			if err := s.repo.UpdateUnit(ctx, upd); err != nil {
				if !atomic && len(result.Units) > 0 {
					return apperror.NewPartialDistribution(consumedSKUs(result.Units), remaining, err)
				}
				return err
			}
			remaining -= take
			result.Distributed += take
			result.TotalValue = result.TotalValue.Add(types.LineTotal(u.PricePerUnit, take))
			result.Units = append(result.Units, ConsumedUnit{
				UnitSKU:       u.UnitSKU,
				BatchID:       u.BatchID,
				QuantityTaken: take,
				Remaining:     u.Quantity,
				FIFOPosition:  i + 1,
				UnitPrice:     u.PricePerUnit,
			})
		}

		return s.recordOperation(ctx, req.OperationID, OperationDistribute, req.FacilityID, result)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "units distributed",
		"product_name", req.ProductName,
		"quantity", result.Distributed,
		"units", len(result.Units),
		"batches", result.Batches(),
	)
	return result, nil
}

// consume takes n from the unit, records the distribution and history entry,
// and returns the conditional update that persists it.
func (u *Unit) consume(n, fifoPosition int, req DistributionRequest, now time.Time) UnitUpdate {
	expected := u.Version

	u.Quantity -= n
	if u.Quantity == 0 {
		u.Status = StatusExhausted
	}
	u.Version++
	u.UpdatedAt = now
	u.RefreshExpiry(now)

	d := Distribution{
		Reason:          req.Reason,
		Destination:     req.Destination,
		QuantityTaken:   n,
		UnitPriceAtTime: u.PricePerUnit,
		Timestamp:       now,
		RemainingAfter:  u.Quantity,
		ActorID:         req.ActorID,
		OperationID:     req.OperationID,
	}
	u.Distributions = append(u.Distributions, d)

	h := NewHistoryEntry(req.ActorID, now, DistributedDetails{
		DistributedQuantity: n,
		Reason:              req.Reason,
		Destination:         req.Destination,
		FIFOPosition:        fifoPosition,
		OperationID:         req.OperationID,
	})
	u.appendHistory(h)

	return UnitUpdate{
		Unit:            u,
		ExpectedVersion: expected,
		MinQuantity:     n,
		Distribution:    &d,
		History:         []HistoryEntry{h},
	}
}

func consumedSKUs(units []ConsumedUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.UnitSKU
	}
	return out
}
