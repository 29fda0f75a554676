package cloudevents

import (
	"github.com/wms-platform/distribution-service/pkg/tenant"
)

// CloudEvents extension attribute names
const (
	ExtStoreID       = "wmsstoreid"
	ExtWarehouseID   = "wmswarehouseid"
	ExtCorrelationID = "wmscorrelationid"
)

// HTTP header names carrying the caller identity set by the gateway
const (
	HeaderStoreID       = "X-WMS-Store-ID"
	HeaderWarehouseID   = "X-WMS-Warehouse-ID"
	HeaderUserID        = "X-WMS-User-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// WithTenantContext copies store and warehouse identity onto the event
func (e *WMSCloudEvent) WithTenantContext(tc *tenant.Context) *WMSCloudEvent {
	if tc == nil {
		return e
	}
	if tc.StoreID != "" {
		e.StoreID = tc.StoreID
	}
	if tc.WarehouseID != "" {
		e.WarehouseID = tc.WarehouseID
	}
	return e
}

// Headers returns the Kafka headers mirroring the event extensions
func (e *WMSCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-id":          e.ID,
		"content-type":   "application/cloudevents+json",
	}
	if e.CorrelationID != "" {
		headers["ce-"+ExtCorrelationID] = e.CorrelationID
	}
	if e.StoreID != "" {
		headers["ce-"+ExtStoreID] = e.StoreID
	}
	if e.WarehouseID != "" {
		headers["ce-"+ExtWarehouseID] = e.WarehouseID
	}
	return headers
}
