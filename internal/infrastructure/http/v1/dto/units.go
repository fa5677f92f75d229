package dto

import (
	"time"

	"unitrack/internal/core/types"
	"unitrack/internal/domain/units"
)

// --- Requests ---

// CreateUnitsRequest receives stock into a facility.
type CreateUnitsRequest struct {
	ProductName     string      `json:"productName" binding:"required,notblank,max=200"`
	Category        string      `json:"category" binding:"max=100"`
	Description     string      `json:"description" binding:"max=1000"`
	Quantity        int         `json:"quantity" binding:"required,min=1"`
	PricePerUnit    types.Money `json:"pricePerUnit"`
	ReceivedDate    *time.Time  `json:"receivedDate"`
	ExpiryDate      *time.Time  `json:"expiryDate"`
	AlertWindowDays *int        `json:"alertWindowDays" binding:"omitempty,min=0"`
}

// ToProductData converts the request to engine input.
func (r CreateUnitsRequest) ToProductData(operationID string) units.ProductData {
	data := units.ProductData{
		ProductName:     r.ProductName,
		Category:        r.Category,
		Description:     r.Description,
		Quantity:        r.Quantity,
		PricePerUnit:    r.PricePerUnit,
		ExpiryDate:      r.ExpiryDate,
		AlertWindowDays: r.AlertWindowDays,
		OperationID:     operationID,
	}
	if r.ReceivedDate != nil {
		data.ReceivedDate = *r.ReceivedDate
	}
	return data
}

// DistributeRequest takes stock out of a facility.
type DistributeRequest struct {
	ProductName string `json:"productName" binding:"required,notblank"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	Reason      string `json:"reason"`
	Destination string `json:"destination"`
}

// ToDistributionRequest converts the request to engine input.
func (r DistributeRequest) ToDistributionRequest(facilityID, actorID, operationID string) units.DistributionRequest {
	return units.DistributionRequest{
		FacilityID:  facilityID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		Reason:      r.Reason,
		Destination: r.Destination,
		ActorID:     actorID,
		OperationID: operationID,
	}
}

// ChangeStatusRequest moves a unit in or out of service.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active damaged recalled"`
	Reason string `json:"reason" binding:"max=500"`
}

// --- Responses ---

// UnitSummary is the compact form of a unit used in lists.
type UnitSummary struct {
	UnitSKU      string     `json:"unitSku"`
	BatchID      string     `json:"batchId"`
	ProductName  string     `json:"productName"`
	Quantity     int        `json:"quantity"`
	Status       string     `json:"status"`
	ExpiryStatus string     `json:"expiryStatus"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	ReceivedDate time.Time  `json:"receivedDate"`
}

// FromUnit converts a unit to its summary.
func FromUnit(u *units.Unit) UnitSummary {
	return UnitSummary{
		UnitSKU:      u.UnitSKU,
		BatchID:      u.BatchID,
		ProductName:  u.ProductName,
		Quantity:     u.Quantity,
		Status:       string(u.Status),
		ExpiryStatus: string(u.Expiry.Status),
		ExpiryDate:   u.Expiry.Date,
		ReceivedDate: u.ReceivedDate,
	}
}

// FromUnits converts a slice of units.
func FromUnits(list []*units.Unit) []UnitSummary {
	out := make([]UnitSummary, len(list))
	for i, u := range list {
		out[i] = FromUnit(u)
	}
	return out
}

// UnitDetail is the full view of one unit, with its distributions and
// history in the order they were recorded.
type UnitDetail struct {
	UnitSummary
	FacilityID      string              `json:"facilityId"`
	Category        string              `json:"category,omitempty"`
	Description     string              `json:"description,omitempty"`
	InitialQuantity int                 `json:"initialQuantity"`
	PricePerUnit    types.Money         `json:"pricePerUnit"`
	TotalPrice      types.Money         `json:"totalPrice"`
	AlertWindowDays int                 `json:"alertWindowDays"`
	Version         int                 `json:"version"`
	CreatedBy       string              `json:"createdBy,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Distributions   []DistributionEntry `json:"distributions"`
	History         []HistoryEntry      `json:"history"`
}

// DistributionEntry is one recorded consumption from a unit.
type DistributionEntry struct {
	Reason          string      `json:"reason"`
	Destination     string      `json:"destination,omitempty"`
	QuantityTaken   int         `json:"quantityTaken"`
	UnitPriceAtTime types.Money `json:"unitPriceAtTime"`
	RemainingAfter  int         `json:"remainingAfter"`
	ActorID         string      `json:"actorId,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// HistoryEntry is one audit record of a unit.
type HistoryEntry struct {
	Action    string        `json:"action"`
	ActorID   string        `json:"actorId"`
	Timestamp time.Time     `json:"timestamp"`
	Details   units.Details `json:"details"`
}

// FromUnitDetail converts a unit to its detail view.
func FromUnitDetail(u *units.Unit) UnitDetail {
	out := UnitDetail{
		UnitSummary:     FromUnit(u),
		FacilityID:      u.FacilityID,
		Category:        u.Category,
		Description:     u.Description,
		InitialQuantity: u.InitialQuantity,
		PricePerUnit:    u.PricePerUnit,
		TotalPrice:      u.TotalPrice,
		AlertWindowDays: u.Expiry.AlertWindowDays,
		Version:         u.Version,
		CreatedBy:       u.CreatedBy,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
		Distributions:   make([]DistributionEntry, len(u.Distributions)),
		History:         make([]HistoryEntry, len(u.History)),
	}
	for i, d := range u.Distributions {
		out.Distributions[i] = DistributionEntry{
			Reason:          d.Reason,
			Destination:     d.Destination,
			QuantityTaken:   d.QuantityTaken,
			UnitPriceAtTime: d.UnitPriceAtTime,
			RemainingAfter:  d.RemainingAfter,
			ActorID:         d.ActorID,
			Timestamp:       d.Timestamp,
		}
	}
	for i, h := range u.History {
		out.History[i] = HistoryEntry{
			Action:    string(h.Action),
			ActorID:   h.ActorID,
			Timestamp: h.Timestamp,
			Details:   h.Details,
		}
	}
	return out
}

// CreateUnitsResponse reports the batch created.
type CreateUnitsResponse struct {
	BatchID  string        `json:"batchId"`
	Prefix   string        `json:"prefix"`
	Degraded bool          `json:"degraded,omitempty"`
	Units    []UnitSummary `json:"units"`
	Replayed bool          `json:"replayed,omitempty"`
}

// FromCreateResult converts the engine result.
func FromCreateResult(r *units.CreateResult) CreateUnitsResponse {
	return CreateUnitsResponse{
		BatchID:  r.Batch.BatchID,
		Prefix:   r.Batch.Prefix,
		Degraded: r.Batch.Degraded,
		Units:    FromUnits(r.Units),
		Replayed: r.Replayed,
	}
}

// DistributionResponse reports what was taken, unit by unit.
type DistributionResponse struct {
	*units.DistributionResult
	Batches []string `json:"batches"`
}

// FromDistributionResult converts the engine result.
func FromDistributionResult(r *units.DistributionResult) DistributionResponse {
	return DistributionResponse{DistributionResult: r, Batches: r.Batches()}
}

// ExpiryGroupResponse lists units sharing an expiry status.
type ExpiryGroupResponse struct {
	Status string        `json:"status"`
	Units  []UnitSummary `json:"units"`
}

// LowStockGroupResponse lists the active units of a product under threshold.
type LowStockGroupResponse struct {
	ProductName string        `json:"productName"`
	Available   int           `json:"available"`
	Units       []UnitSummary `json:"units"`
}

// NewLowStockGroup builds a group response, summing available quantity.
func NewLowStockGroup(productName string, list []*units.Unit) LowStockGroupResponse {
	available := 0
	for _, u := range list {
		available += u.Available()
	}
	return LowStockGroupResponse{ProductName: productName, Available: available, Units: FromUnits(list)}
}
