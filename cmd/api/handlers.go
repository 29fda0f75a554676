package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/distribution-service/internal/application"
	"github.com/wms-platform/distribution-service/internal/infrastructure/export"
	"github.com/wms-platform/distribution-service/pkg/api"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/middleware"
)

// services bundles the application services the routes call into
type services struct {
	distributions *application.DistributionService
	queries       *application.BatchQueryService
	acceptance    *application.BatchAcceptanceService
	location      *time.Location
	clock         func() time.Time
}

type createDistributionRequest struct {
	DestinationStoreID string                     `json:"destinationStoreId" binding:"required"`
	Items              []createDistributionLineIn `json:"items" binding:"required,min=1,dive"`
}

type createDistributionLineIn struct {
	ProductID   string `json:"productId" binding:"required"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unitPrice" binding:"required"`
	Notes       string `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// registerRoutes mounts the v1 API. idempotent may be nil.
func registerRoutes(router *gin.Engine, svc *services, idempotent gin.HandlerFunc, logger *logging.Logger) {
	v1 := router.Group("/api/v1")

	create := []gin.HandlerFunc{middleware.RequireWarehouse(), middleware.RequireUser()}
	if idempotent != nil {
		create = append(create, idempotent)
	}
	create = append(create, createDistributionHandler(svc.distributions, logger))
	v1.POST("/distributions", create...)

	store := v1.Group("/store/batches", middleware.RequireStore())
	{
		// static routes before :batchRef
		store.GET("", listStoreBatchesHandler(svc.queries, logger))
		store.GET("/export", exportStoreBatchesHandler(svc.queries, svc.location, svc.clock, logger))
		store.GET("/:batchRef", getStoreBatchHandler(svc.queries, logger))
		store.POST("/:batchRef/accept", middleware.RequireUser(), acceptBatchHandler(svc.acceptance, logger))
		store.POST("/:batchRef/cancel", middleware.RequireUser(), cancelBatchHandler(svc.acceptance, logger))
	}

	warehouse := v1.Group("/warehouse/stores/:storeId/batches", middleware.RequireWarehouse())
	{
		warehouse.GET("", listWarehouseStoreBatchesHandler(svc.queries, logger))
		warehouse.POST("/:batchRef/cancel", middleware.RequireUser(), withdrawBatchHandler(svc.acceptance, logger))
	}
}

func createDistributionHandler(service *application.DistributionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDistributionRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			middleware.RespondWithError(c, logger, appErr)
			return
		}

		tc := middleware.GetTenantContext(c)
		cmd := application.CreateDistributionCommand{
			WarehouseID:        tc.WarehouseID,
			DistributorID:      tc.UserID,
			DestinationStoreID: req.DestinationStoreID,
			Items:              make([]application.CreateDistributionItem, 0, len(req.Items)),
		}
		for _, item := range req.Items {
			cmd.Items = append(cmd.Items, application.CreateDistributionItem{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Notes:       item.Notes,
			})
		}

		batch, err := service.CreateDistribution(c.Request.Context(), cmd)
		if err != nil {
			middleware.RespondWithError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, batch)
	}
}

// bindListQuery reads paging and filter parameters. It responds itself on failure.
func bindListQuery(c *gin.Context, logger *logging.Logger) (api.PageRequest, api.FilterRequest, bool) {
	var page api.PageRequest
	var filter api.FilterRequest
	if appErr := api.BindQueryAndValidate(c, &page); appErr != nil {
		middleware.RespondWithError(c, logger, appErr)
		return page, filter, false
	}
	if appErr := api.BindQueryAndValidate(c, &filter); appErr != nil {
		middleware.RespondWithError(c, logger, appErr)
		return page, filter, false
	}
	return page.Normalize(), filter, true
}

func listBatches(c *gin.Context, service *application.BatchQueryService, logger *logging.Logger, scope application.ListBatchesQuery) {
	page, filter, ok := bindListQuery(c, logger)
	if !ok {
		return
	}

	scope.Search = filter.Search
	scope.Status = filter.Status
	scope.Page = page.Page
	scope.PageSize = page.PageSize

	result, err := service.ListBatches(c.Request.Context(), scope)
	if err != nil {
		middleware.RespondWithError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func listStoreBatchesHandler(service *application.BatchQueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		listBatches(c, service, logger, application.ListBatchesQuery{
			StoreID: middleware.GetTenantContext(c).StoreID,
		})
	}
}

// listWarehouseStoreBatchesHandler shows a store only the batches the caller's warehouse shipped
func listWarehouseStoreBatchesHandler(service *application.BatchQueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		listBatches(c, service, logger, application.ListBatchesQuery{
			StoreID:     c.Param("storeId"),
			WarehouseID: middleware.GetTenantContext(c).WarehouseID,
		})
	}
}

func exportStoreBatchesHandler(service *application.BatchQueryService, loc *time.Location, clock func() time.Time, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := middleware.GetTenantContext(c).StoreID
		var filter api.FilterRequest
		if appErr := api.BindQueryAndValidate(c, &filter); appErr != nil {
			middleware.RespondWithError(c, logger, appErr)
			return
		}

		batches, err := service.ExportBatches(c.Request.Context(), application.ListBatchesQuery{
			StoreID: storeID,
			Search:  filter.Search,
			Status:  filter.Status,
		})
		if err != nil {
			middleware.RespondWithError(c, logger, err)
			return
		}

		c.Header("Content-Type", export.ContentType)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(storeID, clock().In(loc))))
		c.Status(http.StatusOK)
		if err := export.WriteBatches(c.Writer, batches, loc); err != nil {
			logger.WithContext(c.Request.Context()).WithError(err).Error("Failed to write batch export", "storeId", storeID)
		}
	}
}

func getStoreBatchHandler(service *application.BatchQueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		batch, err := service.GetBatch(c.Request.Context(), application.GetBatchQuery{
			StoreID:  middleware.GetTenantContext(c).StoreID,
			BatchRef: c.Param("batchRef"),
		})
		if err != nil {
			middleware.RespondWithError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func acceptBatchHandler(service *application.BatchAcceptanceService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := middleware.GetTenantContext(c)

		batch, err := service.Accept(c.Request.Context(), application.TransitionCommand{
			StoreID:  tc.StoreID,
			BatchRef: c.Param("batchRef"),
			ActorID:  tc.UserID,
		})
		if err != nil {
			middleware.RespondWithError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

// bindCancel reads the optional cancel body
func bindCancel(c *gin.Context, logger *logging.Logger) (cancelRequest, bool) {
	var req cancelRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		middleware.RespondWithError(c, logger, appErr)
		return req, false
	}
	return req, true
}

func cancelBatchHandler(service *application.BatchAcceptanceService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindCancel(c, logger)
		if !ok {
			return
		}

		tc := middleware.GetTenantContext(c)
		batch, err := service.Cancel(c.Request.Context(), application.TransitionCommand{
			StoreID:  tc.StoreID,
			BatchRef: c.Param("batchRef"),
			ActorID:  tc.UserID,
			Reason:   req.Reason,
		})
		if err != nil {
			middleware.RespondWithError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func withdrawBatchHandler(service *application.BatchAcceptanceService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindCancel(c, logger)
		if !ok {
			return
		}

		tc := middleware.GetTenantContext(c)
		batch, err := service.Withdraw(c.Request.Context(), application.WithdrawCommand{
			WarehouseID: tc.WarehouseID,
			StoreID:     c.Param("storeId"),
			BatchRef:    c.Param("batchRef"),
			ActorID:     tc.UserID,
			Reason:      req.Reason,
		})
		if err != nil {
			middleware.RespondWithError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}
