package application

import "github.com/wms-platform/distribution-service/internal/domain"

// ToBatchDTO converts a batch view to its response shape
func ToBatchDTO(batch *domain.DistributionBatch) *BatchDTO {
	if batch == nil {
		return nil
	}

	items := make([]LineItemDTO, 0, len(batch.Items))
	for _, item := range batch.Items {
		items = append(items, LineItemDTO{
			ID:              item.ID,
			LineNo:          item.LineNo,
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice.String(),
			TotalAmount:     item.TotalAmount.String(),
			Status:          string(item.Status),
			Notes:           item.Notes,
			StatusChangedBy: item.StatusChangedBy,
			StatusChangedAt: item.StatusChangedAt,
		})
	}

	return &BatchDTO{
		BatchID:             batch.BatchID,
		InvoiceNumber:       batch.InvoiceNumber,
		DistributedAt:       batch.DistributedAt,
		DistributedByUserID: batch.DistributedByUserID,
		DistributedByName:   batch.DistributedByName,
		DestinationStoreID:  batch.DestinationStoreID,
		SourceWarehouseID:   batch.SourceWarehouseID,
		Status:              string(batch.Status),
		ItemCount:           batch.ItemCount,
		TotalQuantity:       batch.TotalQuantity,
		TotalAmount:         batch.TotalAmount.String(),
		Items:               items,
	}
}

// ToBatchDTOs converts a list of batch views
func ToBatchDTOs(batches []*domain.DistributionBatch) []BatchDTO {
	dtos := make([]BatchDTO, 0, len(batches))
	for _, batch := range batches {
		dtos = append(dtos, *ToBatchDTO(batch))
	}
	return dtos
}
