package handlers

import (
	"context"
	"iter"

	"github.com/gin-gonic/gin"

	"unitrack/internal/domain/units"
	"unitrack/internal/infrastructure/http/v1/dto"
	"unitrack/internal/infrastructure/http/v1/middleware"
)

// UnitEngine is the part of units.Service the HTTP layer drives.
type UnitEngine interface {
	CreateUnits(ctx context.Context, data units.ProductData, facilityID, userID string) (*units.CreateResult, error)
	Distribute(ctx context.Context, req units.DistributionRequest) (*units.DistributionResult, error)
	GetUnit(ctx context.Context, facilityID, unitSKU string) (*units.Unit, error)
	ListBatch(ctx context.Context, facilityID, batchID string) ([]*units.Unit, error)
	ChangeStatus(ctx context.Context, req units.ChangeStatusRequest) (*units.Unit, error)
	ListExpiring(ctx context.Context, facilityID string, windowDays int) iter.Seq2[units.Group[units.ExpiryStatus], error]
	ListLowStock(ctx context.Context, facilityID string, threshold int) iter.Seq2[units.Group[string], error]
}

var _ UnitEngine = (*units.Service)(nil)

// UnitHandler serves the facility-scoped unit endpoints.
type UnitHandler struct {
	*BaseHandler
	engine            UnitEngine
	defaultLowStock   int
	defaultWindowDays int
}

// NewUnitHandler creates a unit handler. defaultLowStock is the threshold
// used when the request names none.
func NewUnitHandler(base *BaseHandler, engine UnitEngine, defaultLowStock int) *UnitHandler {
	if defaultLowStock < 1 {
		defaultLowStock = 10
	}
	return &UnitHandler{
		BaseHandler:       base,
		engine:            engine,
		defaultLowStock:   defaultLowStock,
		defaultWindowDays: units.DefaultAlertWindowDays,
	}
}

// Create materializes received stock into units.
// POST /facilities/:facility/units
func (h *UnitHandler) Create(c *gin.Context) {
	var req dto.CreateUnitsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.engine.CreateUnits(c.Request.Context(),
		req.ToProductData(middleware.OperationID(c)), c.Param("facility"), h.UserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromCreateResult(res))
}

// Distribute takes stock out FIFO.
// POST /facilities/:facility/distributions
func (h *UnitHandler) Distribute(c *gin.Context) {
	var req dto.DistributeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.engine.Distribute(c.Request.Context(),
		req.ToDistributionRequest(c.Param("facility"), h.UserID(c), middleware.OperationID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDistributionResult(res))
}

// Get returns one unit with its distributions and history.
// GET /facilities/:facility/units/:sku
func (h *UnitHandler) Get(c *gin.Context) {
	u, err := h.engine.GetUnit(c.Request.Context(), c.Param("facility"), c.Param("sku"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUnitDetail(u))
}

// Batch lists the units of one batch.
// GET /facilities/:facility/batches/:batch
func (h *UnitHandler) Batch(c *gin.Context) {
	list, err := h.engine.ListBatch(c.Request.Context(), c.Param("facility"), c.Param("batch"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromUnits(list)))
}

// ChangeStatus marks a unit damaged, recalled or active again.
// PATCH /facilities/:facility/units/:sku/status
func (h *UnitHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	u, err := h.engine.ChangeStatus(c.Request.Context(), units.ChangeStatusRequest{
		FacilityID: c.Param("facility"),
		UnitSKU:    c.Param("sku"),
		Status:     units.Status(req.Status),
		Reason:     req.Reason,
		ActorID:    h.UserID(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUnit(u))
}

// Expiring lists expired then expiring units.
// GET /facilities/:facility/expiring?window=
func (h *UnitHandler) Expiring(c *gin.Context) {
	window, ok := h.IntQuery(c, "window", h.defaultWindowDays)
	if !ok {
		return
	}

	var groups []dto.ExpiryGroupResponse
	for g, err := range h.engine.ListExpiring(c.Request.Context(), c.Param("facility"), window) {
		if err != nil {
			h.Error(c, err)
			return
		}
		groups = append(groups, dto.ExpiryGroupResponse{Status: string(g.Key), Units: dto.FromUnits(g.Units)})
	}
	h.OK(c, dto.NewListResponse(groups))
}

// LowStock lists products at or below the threshold with their units.
// GET /facilities/:facility/low-stock?threshold=
func (h *UnitHandler) LowStock(c *gin.Context) {
	threshold, ok := h.IntQuery(c, "threshold", h.defaultLowStock)
	if !ok {
		return
	}

	var groups []dto.LowStockGroupResponse
	for g, err := range h.engine.ListLowStock(c.Request.Context(), c.Param("facility"), threshold) {
		if err != nil {
			h.Error(c, err)
			return
		}
		groups = append(groups, dto.NewLowStockGroup(g.Key, g.Units))
	}
	h.OK(c, dto.NewListResponse(groups))
}
