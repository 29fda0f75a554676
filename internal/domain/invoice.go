package domain

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

const (
	InvoicePrefix = "DST"
	invoiceSeqMod = 100000
)

// InvoiceGenerator derives human-readable invoice numbers from batch keys.
// Two processes grouping the same data produce the same number.
type InvoiceGenerator struct {
	loc *time.Location
}

// NewInvoiceGenerator uses loc for the date part; nil means UTC
func NewInvoiceGenerator(loc *time.Location) *InvoiceGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &InvoiceGenerator{loc: loc}
}

// Generate returns DST-YYYYMMDD-NNNNN for key
func (g *InvoiceGenerator) Generate(key BatchKey) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.StoreID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.DistributorID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(key.Bucket.UnixMilli(), 10)))

	return fmt.Sprintf("%s-%s-%05d", InvoicePrefix, key.Bucket.In(g.loc).Format("20060102"), h.Sum32()%invoiceSeqMod)
}

// ForBatch prefers the invoice number stored on the earliest member and
// falls back to Generate for rows created without one.
func (g *InvoiceGenerator) ForBatch(key BatchKey, items []*DistributionLineItem) string {
	var earliest *DistributionLineItem
	for _, item := range items {
		if item.InvoiceNumber == "" {
			continue
		}
		if earliest == nil || item.CreatedAt.Before(earliest.CreatedAt) ||
			(item.CreatedAt.Equal(earliest.CreatedAt) && item.LineNo < earliest.LineNo) {
			earliest = item
		}
	}
	if earliest != nil {
		return earliest.InvoiceNumber
	}
	return g.Generate(key)
}
