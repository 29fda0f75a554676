package domain

import (
	"fmt"
	"time"
)

// Totals are the batch-level sums
type Totals struct {
	ItemCount     int
	TotalQuantity int
	TotalAmount   Money
}

// Aggregate sums a batch. It fails on an empty batch and on members whose
// statuses disagree, since either means the grouping upstream is broken.
func Aggregate(items []*DistributionLineItem) (Totals, LineItemStatus, error) {
	if len(items) == 0 {
		return Totals{}, "", ErrEmptyBatch
	}

	status := items[0].Status
	totals := Totals{TotalAmount: ZeroMoney()}
	for _, item := range items {
		if item.Status != status {
			return Totals{}, "", fmt.Errorf("%w: %s and %s", ErrInconsistentBatch, status, item.Status)
		}
		totals.ItemCount++
		totals.TotalQuantity += item.Quantity
		totals.TotalAmount = totals.TotalAmount.Add(item.TotalAmount)
	}

	return totals, status, nil
}

// DistributionBatch is the derived view of one shipment
type DistributionBatch struct {
	BatchID             string                  `json:"batchId"`
	InvoiceNumber       string                  `json:"invoiceNumber"`
	DistributedAt       time.Time               `json:"distributedAt"`
	DistributedByUserID string                  `json:"distributedByUserId"`
	DistributedByName   string                  `json:"distributedByName"`
	DestinationStoreID  string                  `json:"destinationStoreId"`
	SourceWarehouseID   string                  `json:"sourceWarehouseId"`
	Status              LineItemStatus          `json:"status"`
	Items               []*DistributionLineItem `json:"items"`
	ItemCount           int                     `json:"itemCount"`
	TotalQuantity       int                     `json:"totalQuantity"`
	TotalAmount         Money                   `json:"totalAmount"`
}

// Key rebuilds the batch key of the view
func (b *DistributionBatch) Key() BatchKey {
	return BatchKey{StoreID: b.DestinationStoreID, DistributorID: b.DistributedByUserID, Bucket: b.DistributedAt}
}

// IDs returns the member line-item ids in member order
func (b *DistributionBatch) IDs() []string {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.ID
	}
	return ids
}

// BuildBatch assembles the view of one group. distributorName may be empty,
// in which case the distributor id is shown.
func BuildBatch(group Group, invoices *InvoiceGenerator, distributorName string) (*DistributionBatch, error) {
	totals, status, err := Aggregate(group.Items)
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", group.Key.BatchID(), err)
	}

	if distributorName == "" {
		distributorName = group.Key.DistributorID
	}

	return &DistributionBatch{
		BatchID:             group.Key.BatchID(),
		InvoiceNumber:       invoices.ForBatch(group.Key, group.Items),
		DistributedAt:       group.Key.Bucket,
		DistributedByUserID: group.Key.DistributorID,
		DistributedByName:   distributorName,
		DestinationStoreID:  group.Key.StoreID,
		SourceWarehouseID:   group.Items[0].SourceWarehouseID,
		Status:              status,
		Items:               group.Items,
		ItemCount:           totals.ItemCount,
		TotalQuantity:       totals.TotalQuantity,
		TotalAmount:         totals.TotalAmount,
	}, nil
}
