package application

import (
	"time"

	"github.com/wms-platform/distribution-service/pkg/api"
)

// BatchDTO represents a distribution batch in responses
type BatchDTO struct {
	BatchID             string        `json:"batchId"`
	InvoiceNumber       string        `json:"invoiceNumber"`
	DistributedAt       time.Time     `json:"distributedAt"`
	DistributedByUserID string        `json:"distributedByUserId"`
	DistributedByName   string        `json:"distributedByName"`
	DestinationStoreID  string        `json:"destinationStoreId"`
	SourceWarehouseID   string        `json:"sourceWarehouseId"`
	Status              string        `json:"status"`
	ItemCount           int           `json:"itemCount"`
	TotalQuantity       int           `json:"totalQuantity"`
	TotalAmount         string        `json:"totalAmount"`
	Items               []LineItemDTO `json:"items"`
}

// LineItemDTO represents one member of a batch
type LineItemDTO struct {
	ID              string     `json:"id"`
	LineNo          int        `json:"lineNo"`
	ProductID       string     `json:"productId"`
	ProductName     string     `json:"productName,omitempty"`
	Quantity        int        `json:"quantity"`
	UnitPrice       string     `json:"unitPrice"`
	TotalAmount     string     `json:"totalAmount"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	StatusChangedBy string     `json:"statusChangedBy,omitempty"`
	StatusChangedAt *time.Time `json:"statusChangedAt,omitempty"`
}

// BatchListDTO is one page of batches
type BatchListDTO = api.PageResponse[BatchDTO]
