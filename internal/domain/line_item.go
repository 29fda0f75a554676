package domain

import (
	"fmt"
	"strings"
	"time"
)

// LineItemStatus is the lifecycle state of a line item, shared by every member of its batch
type LineItemStatus string

const (
	StatusPendingAcceptance LineItemStatus = "PENDING_ACCEPTANCE"
	StatusDelivered         LineItemStatus = "DELIVERED"
	StatusCancelled         LineItemStatus = "CANCELLED"
)

// IsValid reports whether s is a known status
func (s LineItemStatus) IsValid() bool {
	switch s {
	case StatusPendingAcceptance, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s LineItemStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseLineItemStatus accepts a status name in any case
func ParseLineItemStatus(s string) (LineItemStatus, error) {
	status := LineItemStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", NewValidationError("status", "unknown status %q", s)
	}
	return status, nil
}

// DistributionLineItem is one product shipped in one distribution
type DistributionLineItem struct {
	ID                  string         `bson:"_id" json:"id"`
	LineNo              int            `bson:"lineNo" json:"lineNo"`
	ProductID           string         `bson:"productId" json:"productId"`
	ProductName         string         `bson:"productName,omitempty" json:"productName,omitempty"`
	Quantity            int            `bson:"quantity" json:"quantity"`
	UnitPrice           Money          `bson:"unitPrice" json:"unitPrice"`
	TotalAmount         Money          `bson:"totalAmount" json:"totalAmount"`
	DistributedAt       time.Time      `bson:"distributedAt" json:"distributedAt"`
	DistributedByUserID string         `bson:"distributedByUserId" json:"distributedByUserId"`
	SourceWarehouseID   string         `bson:"sourceWarehouseId" json:"sourceWarehouseId"`
	DestinationStoreID  string         `bson:"destinationStoreId" json:"destinationStoreId"`
	Status              LineItemStatus `bson:"status" json:"status"`
	Notes               string         `bson:"notes,omitempty" json:"notes,omitempty"`
	InvoiceNumber       string         `bson:"invoiceNumber,omitempty" json:"invoiceNumber,omitempty"`
	StatusChangedBy     string         `bson:"statusChangedBy,omitempty" json:"statusChangedBy,omitempty"`
	StatusChangedAt     *time.Time     `bson:"statusChangedAt,omitempty" json:"statusChangedAt,omitempty"`
	CreatedAt           time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Shipment carries the fields every line item of one submitted distribution shares
type Shipment struct {
	DistributedAt       time.Time
	DistributedByUserID string
	SourceWarehouseID   string
	DestinationStoreID  string
	InvoiceNumber       string
}

// ShipmentLine is one requested product of a distribution
type ShipmentLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   Money
	Notes       string
}

// NewDistributionLineItem validates one line and stamps it with the shipment fields
func NewDistributionLineItem(id string, lineNo int, shipment Shipment, line ShipmentLine) (*DistributionLineItem, error) {
	item := &DistributionLineItem{
		ID:                  id,
		LineNo:              lineNo,
		ProductID:           strings.TrimSpace(line.ProductID),
		ProductName:         strings.TrimSpace(line.ProductName),
		Quantity:            line.Quantity,
		UnitPrice:           line.UnitPrice,
		TotalAmount:         line.UnitPrice.Multiply(line.Quantity),
		DistributedAt:       TimingBucket(shipment.DistributedAt),
		DistributedByUserID: shipment.DistributedByUserID,
		SourceWarehouseID:   shipment.SourceWarehouseID,
		DestinationStoreID:  shipment.DestinationStoreID,
		Status:              StatusPendingAcceptance,
		Notes:               line.Notes,
		InvoiceNumber:       shipment.InvoiceNumber,
		CreatedAt:           shipment.DistributedAt.UTC(),
		UpdatedAt:           shipment.DistributedAt.UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks the line item invariants
func (li *DistributionLineItem) Validate() error {
	prefix := fmt.Sprintf("items[%d]", li.LineNo)

	switch {
	case li.ID == "":
		return NewValidationError(prefix+".id", "is required")
	case li.ProductID == "":
		return NewValidationError(prefix+".productId", "is required")
	case li.Quantity < 1:
		return NewValidationError(prefix+".quantity", "must be at least 1, got %d", li.Quantity)
	case li.UnitPrice.IsNegative():
		return NewValidationError(prefix+".unitPrice", "must not be negative, got %s", li.UnitPrice)
	case li.DistributedAt.IsZero():
		return NewValidationError("distributedAt", "is required")
	case li.DistributedByUserID == "":
		return NewValidationError("distributedByUserId", "is required")
	case li.SourceWarehouseID == "":
		return NewValidationError("sourceWarehouseId", "is required")
	case li.DestinationStoreID == "":
		return NewValidationError("destinationStoreId", "is required")
	case !li.Status.IsValid():
		return NewValidationError("status", "unknown status %q", li.Status)
	case !li.TotalAmount.Equals(li.UnitPrice.Multiply(li.Quantity)):
		return NewValidationError(prefix+".totalAmount", "must equal quantity × unitPrice")
	}
	return nil
}

// Key returns the batch key the line item belongs to
func (li *DistributionLineItem) Key() BatchKey {
	return BatchKey{
		StoreID:       li.DestinationStoreID,
		DistributorID: li.DistributedByUserID,
		Bucket:        TimingBucket(li.DistributedAt),
	}
}
