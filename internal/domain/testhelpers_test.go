package domain

import (
	"fmt"
	"time"
)

var testInstant = time.Date(2024, 3, 15, 9, 30, 0, 123_000_000, time.UTC)

func newItem(id string, lineNo int, store, distributor string, at time.Time, qty int, price int64) *DistributionLineItem {
	unit := MoneyFromInt(price)
	return &DistributionLineItem{
		ID:                  id,
		LineNo:              lineNo,
		ProductID:           fmt.Sprintf("product-%s", id),
		Quantity:            qty,
		UnitPrice:           unit,
		TotalAmount:         unit.Multiply(qty),
		DistributedAt:       at,
		DistributedByUserID: distributor,
		SourceWarehouseID:   "wh-1",
		DestinationStoreID:  store,
		Status:              StatusPendingAcceptance,
		CreatedAt:           at,
		UpdatedAt:           at,
	}
}
