// Package units implements the unit identity and FIFO depletion engine:
// prefix allocation, batch sequencing, per-unit materialization, FIFO
// distribution and expiry classification.
package units

import (
	"context"
	"time"

	"unitrack/internal/core/apperror"
	"unitrack/internal/core/id"
	"unitrack/internal/core/types"
)

// Status is the lifecycle state of a unit.
type Status string

const (
	StatusActive    Status = "active"
	StatusExhausted Status = "exhausted"
	StatusDamaged   Status = "damaged"
	StatusRecalled  Status = "recalled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExhausted, StatusDamaged, StatusRecalled:
		return true
	}
	return false
}

// Expiry describes time-sensitive stock. Status is derived from Date and
// AlertWindowDays and refreshed on every load and save.
type Expiry struct {
	IsTracked       bool         `json:"isTracked"`
	Date            *time.Time   `json:"date,omitempty"`
	AlertWindowDays int          `json:"alertWindowDays"`
	Status          ExpiryStatus `json:"status"`
}

// Distribution records one consumption from a unit.
type Distribution struct {
	Reason          string      `json:"reason"`
	Destination     string      `json:"destination,omitempty"`
	QuantityTaken   int         `json:"quantityTaken"`
	UnitPriceAtTime types.Money `json:"unitPriceAtTime"`
	Timestamp       time.Time   `json:"timestamp"`
	RemainingAfter  int         `json:"remainingAfter"`
	ActorID         string      `json:"actorId,omitempty"`
	OperationID     string      `json:"operationId,omitempty"`
}

// Unit is one physical item. It is never a quantity bucket: Quantity starts
// at 1 and only moves toward 0 through distribution.
type Unit struct {
	ID              id.ID          `json:"id"`
	Seq             int64          `json:"-"` // store-assigned creation order
	ProductName     string         `json:"productName"`
	Category        string         `json:"category,omitempty"`
	Description     string         `json:"description,omitempty"`
	FacilityID      string         `json:"facilityId"`
	BatchID         string         `json:"batchId"`
	UnitSKU         string         `json:"unitSku"`
	Quantity        int            `json:"quantity"`
	InitialQuantity int            `json:"initialQuantity"`
	PricePerUnit    types.Money    `json:"pricePerUnit"`
	TotalPrice      types.Money    `json:"totalPrice"`
	ReceivedDate    time.Time      `json:"receivedDate"`
	Expiry          Expiry         `json:"expiry"`
	Status          Status         `json:"status"`
	Distributions   []Distribution `json:"distributions"`
	History         []HistoryEntry `json:"history"`
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	CreatedBy       string         `json:"createdBy,omitempty"`
}

// Available returns the quantity distribution may take from the unit.
func (u *Unit) Available() int {
	if u.Status != StatusActive || u.Quantity <= 0 {
		return 0
	}
	return u.Quantity
}

// Distributed returns the sum of all recorded distributions.
func (u *Unit) Distributed() int {
	total := 0
	for _, d := range u.Distributions {
		total += d.QuantityTaken
	}
	return total
}

// RefreshExpiry recomputes Expiry.Status for now. Returns true if it changed.
func (u *Unit) RefreshExpiry(now time.Time) bool {
	next := Classify(u.Expiry, now)
	if next == u.Expiry.Status {
		return false
	}
	u.Expiry.Status = next
	return true
}

// Validate checks the unit invariants that do not need the store.
func (u *Unit) Validate(_ context.Context) error {
	switch {
	case u.FacilityID == "":
		return apperror.NewValidation("facility is required")
	case u.UnitSKU == "" || u.BatchID == "":
		return apperror.NewValidation("unit sku and batch id are required")
	case u.Quantity < 0:
		return apperror.NewValidation("quantity cannot be negative").WithDetail("unit_sku", u.UnitSKU)
	case u.Distributed() > u.InitialQuantity:
		return apperror.NewValidation("distributed quantity exceeds initial quantity").
			WithDetail("unit_sku", u.UnitSKU)
	case !u.Status.Valid():
		return apperror.NewValidation("unknown status").WithDetail("status", string(u.Status))
	}
	return nil
}

// appendHistory adds an entry to the audit log. Entries are never edited.
func (u *Unit) appendHistory(e HistoryEntry) {
	u.History = append(u.History, e)
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	if u.Expiry.Date != nil {
		d := *u.Expiry.Date
		c.Expiry.Date = &d
	}
	c.Distributions = append([]Distribution(nil), u.Distributions...)
	c.History = append([]HistoryEntry(nil), u.History...)
	return &c
}

// Group is one bucket of a grouped listing.
type Group[K comparable] struct {
	Key   K       `json:"key"`
	Units []*Unit `json:"units"`
}
