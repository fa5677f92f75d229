package v1

import (
	"github.com/gin-gonic/gin"

	"unitrack/internal/infrastructure/http/v1/middleware"
)

// Roles granted by tokens. Admin tokens pass every role check.
const (
	RoleReceiver    = "receiver"
	RoleDistributor = "distributor"
	RoleSupervisor  = "supervisor"
	RoleViewer      = "viewer"
)

// UnitRouteHandler defines the facility-scoped unit endpoints.
type UnitRouteHandler interface {
	Create(c *gin.Context)
	Distribute(c *gin.Context)
	Get(c *gin.Context)
	Batch(c *gin.Context)
	ChangeStatus(c *gin.Context)
	Expiring(c *gin.Context)
	LowStock(c *gin.Context)
}

// RegisterUnitRoutes registers the unit routes on a /facilities/:facility group.
func RegisterUnitRoutes(group *gin.RouterGroup, handler UnitRouteHandler) {
	read := middleware.RequireRole(RoleViewer, RoleReceiver, RoleDistributor, RoleSupervisor)

	group.POST("/units", middleware.RequireRole(RoleReceiver, RoleSupervisor), handler.Create)
	group.GET("/units/:sku", read, handler.Get)
	group.PATCH("/units/:sku/status", middleware.RequireRole(RoleSupervisor), handler.ChangeStatus)
	group.GET("/batches/:batch", read, handler.Batch)
	group.POST("/distributions", middleware.RequireRole(RoleDistributor, RoleSupervisor), handler.Distribute)
	group.GET("/expiring", read, handler.Expiring)
	group.GET("/low-stock", read, handler.LowStock)
}
