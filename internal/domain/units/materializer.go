package units

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"unitrack/internal/core/apperror"
	appctx "unitrack/internal/core/context"
	"unitrack/internal/core/id"
	"unitrack/internal/core/numerator"
	"unitrack/internal/core/types"
	"unitrack/pkg/logger"
)

// MaxUnitsPerBatch caps the number of units a single creation may produce.
const MaxUnitsPerBatch = 10000

// ProductData describes received stock to materialize into units.
type ProductData struct {
	ProductName     string      `json:"productName"`
	Category        string      `json:"category,omitempty"`
	Description     string      `json:"description,omitempty"`
	Quantity        int         `json:"quantity"`
	PricePerUnit    types.Money `json:"pricePerUnit"`
	ReceivedDate    time.Time   `json:"receivedDate"` // zero means now
	ExpiryDate      *time.Time  `json:"expiryDate,omitempty"`
	AlertWindowDays *int        `json:"alertWindowDays,omitempty"` // nil means DefaultAlertWindowDays
	OperationID     string      `json:"operationId,omitempty"`
}

func (d ProductData) validate(facilityID string) error {
	switch {
	case strings.TrimSpace(d.ProductName) == "":
		return apperror.NewValidation("product name is required")
	case facilityID == "":
		return apperror.NewValidation("facility is required")
	case d.Quantity < 1:
		return apperror.NewValidation("quantity must be at least 1").WithDetail("quantity", d.Quantity)
	case d.Quantity > MaxUnitsPerBatch:
		return apperror.NewValidation("quantity exceeds batch limit").
			WithDetail("quantity", d.Quantity).
			WithDetail("limit", MaxUnitsPerBatch)
	case d.PricePerUnit.IsNegative():
		return apperror.NewValidation("price per unit cannot be negative")
	case d.AlertWindowDays != nil && *d.AlertWindowDays < 0:
		return apperror.NewValidation("alert window cannot be negative")
	}
	return nil
}

// CreateResult is the outcome of CreateUnits.
type CreateResult struct {
	Batch    BatchAllocation `json:"batch"`
	Units    []*Unit         `json:"units"`
	Replayed bool            `json:"replayed,omitempty"`
}

type createdOperation struct {
	Batch BatchAllocation `json:"batch"`
}

// CreateUnits materializes data.Quantity units of quantity 1 under a freshly
// allocated batch id. Either every unit is stored or none is.
func (s *Service) CreateUnits(ctx context.Context, data ProductData, facilityID, userID string) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "units.CreateUnits",
		trace.WithAttributes(
			attribute.String("facility.id", facilityID),
			attribute.Int("units.quantity", data.Quantity),
		),
	)
	defer span.End()
	ctx = appctx.WithFacility(ctx, facilityID)

	if err := data.validate(facilityID); err != nil {
		return nil, err
	}
	data.ProductName = strings.TrimSpace(data.ProductName)

	unlock, err := s.locker.Lock(ctx, AllocationKey(facilityID, data.ProductName))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var prev createdOperation
	replayed, err := s.replay(ctx, data.OperationID, OperationCreateUnits, facilityID, &prev)
	if err != nil {
		return nil, err
	}
	if replayed {
		units, err := s.repo.ListByBatch(ctx, facilityID, prev.Batch.BatchID)
		if err != nil {
			return nil, err
		}
		s.refresh(units...)
		return &CreateResult{Batch: prev.Batch, Units: units, Replayed: true}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxCreateAttempts; attempt++ {
		res, err := s.createOnce(ctx, data, facilityID, userID)
		if err == nil {
			span.SetAttributes(attribute.String("batch.id", res.Batch.BatchID))
			logger.Info(ctx, "units created",
				"product_name", data.ProductName,
				"batch_id", res.Batch.BatchID,
				"count", len(res.Units),
			)
			return res, nil
		}
		if !apperror.IsDuplicate(err) {
			span.RecordError(err)
			return nil, err
		}
		lastErr = err
		logger.Warn(ctx, "unit sku collision, retrying allocation",
			"product_name", data.ProductName,
			"attempt", attempt,
		)
	}
	span.RecordError(lastErr)
	return nil, lastErr
}

func (s *Service) createOnce(ctx context.Context, data ProductData, facilityID, userID string) (*CreateResult, error) {
	alloc, err := s.sequencer.GetNextBatchNumber(ctx, data.ProductName, facilityID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	received := data.ReceivedDate
	if received.IsZero() {
		received = now
	}

	units := make([]*Unit, 0, data.Quantity)
	for i := 1; i <= data.Quantity; i++ {
		u := &Unit{
			ID:              id.New(),
			ProductName:     data.ProductName,
			Category:        data.Category,
			Description:     data.Description,
			FacilityID:      facilityID,
			BatchID:         alloc.BatchID,
			UnitSKU:         numerator.FormatUnitSKU(alloc.BatchID, i),
			Quantity:        1,
			InitialQuantity: 1,
			PricePerUnit:    data.PricePerUnit,
			TotalPrice:      types.LineTotal(data.PricePerUnit, 1),
			ReceivedDate:    received.UTC(),
			Expiry:          NewExpiry(data.ExpiryDate, data.AlertWindowDays, now),
			Status:          StatusActive,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
			CreatedBy:       userID,
		}
		u.appendHistory(NewHistoryEntry(userID, now, CreatedDetails{
			Batch:       alloc.BatchID,
			Unit:        i,
			OperationID: data.OperationID,
		}))
		units = append(units, u)
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertUnits(ctx, units); err != nil {
			return err
		}
		return s.recordOperation(ctx, data.OperationID, OperationCreateUnits, facilityID, createdOperation{Batch: alloc})
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Batch: alloc, Units: units}, nil
}
