package cloudevents

import (
	"time"
)

// Distribution event types
const (
	BatchCreated   = "wms.distribution.batch-created"
	BatchAccepted  = "wms.distribution.batch-accepted"
	BatchCancelled = "wms.distribution.batch-cancelled"
)

// SourceDistribution is the CloudEvents source of this service
const SourceDistribution = "/wms/distribution-service"

// WMSCloudEvent represents a CloudEvents v1.0 compliant event
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// WMS extensions
	CorrelationID string `json:"wmscorrelationid,omitempty"`
	StoreID       string `json:"wmsstoreid,omitempty"`
	WarehouseID   string `json:"wmswarehouseid,omitempty"`
}

// BatchLine is one product line carried in batch events
type BatchLine struct {
	LineItemID string `json:"lineItemId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
}

// BatchCreatedData is the payload of BatchCreated
type BatchCreatedData struct {
	BatchID             string      `json:"batchId"`
	InvoiceNumber       string      `json:"invoiceNumber"`
	DestinationStoreID  string      `json:"destinationStoreId"`
	SourceWarehouseID   string      `json:"sourceWarehouseId"`
	DistributedByUserID string      `json:"distributedByUserId"`
	DistributedAt       time.Time   `json:"distributedAt"`
	TotalQuantity       int         `json:"totalQuantity"`
	TotalAmount         string      `json:"totalAmount"`
	Lines               []BatchLine `json:"lines"`
}

// BatchTransitionedData is the payload of BatchAccepted and BatchCancelled
type BatchTransitionedData struct {
	BatchID            string      `json:"batchId"`
	InvoiceNumber      string      `json:"invoiceNumber"`
	DestinationStoreID string      `json:"destinationStoreId"`
	SourceWarehouseID  string      `json:"sourceWarehouseId"`
	FromStatus         string      `json:"fromStatus"`
	ToStatus           string      `json:"toStatus"`
	ChangedBy          string      `json:"changedBy"`
	ChangedAt          time.Time   `json:"changedAt"`
	Reason             string      `json:"reason,omitempty"`
	Lines              []BatchLine `json:"lines"`
}
