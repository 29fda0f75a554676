package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoicePattern = regexp.MustCompile(`^DST-\d{8}-\d{5}$`)

func TestInvoiceGenerator_Generate(t *testing.T) {
	gen := NewInvoiceGenerator(nil)
	key := BatchKey{StoreID: "store-1", DistributorID: "user-1", Bucket: TimingBucket(testInstant)}

	number := gen.Generate(key)

	assert.Regexp(t, invoicePattern, number)
	assert.Equal(t, "DST-20240315-", number[:13])
	assert.Equal(t, number, NewInvoiceGenerator(time.UTC).Generate(key), "deterministic across generators")

	other := key
	other.Bucket = key.Bucket.Add(time.Millisecond)
	assert.Regexp(t, invoicePattern, gen.Generate(other))
}

func TestInvoiceGenerator_DateUsesBusinessZone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	key := BatchKey{
		StoreID:       "store-1",
		DistributorID: "user-1",
		Bucket:        time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC),
	}

	assert.Contains(t, NewInvoiceGenerator(nil).Generate(key), "-20240315-")
	assert.Contains(t, NewInvoiceGenerator(jakarta).Generate(key), "-20240316-")
}

func TestInvoiceGenerator_PrefersEarliestStoredNumber(t *testing.T) {
	gen := NewInvoiceGenerator(nil)
	first := newItem("a", 0, "store-1", "user-1", testInstant, 1, 1)
	second := newItem("b", 1, "store-1", "user-1", testInstant, 1, 1)
	first.InvoiceNumber = "INV-LEGACY-1"
	second.InvoiceNumber = "INV-LEGACY-2"
	second.CreatedAt = testInstant.Add(-time.Second)

	assert.Equal(t, "INV-LEGACY-2", gen.ForBatch(first.Key(), []*DistributionLineItem{first, second}))
}

func TestInvoiceGenerator_FallsBackWhenNothingStored(t *testing.T) {
	gen := NewInvoiceGenerator(nil)
	item := newItem("a", 0, "store-1", "user-1", testInstant, 1, 1)
	require.Empty(t, item.InvoiceNumber)

	assert.Equal(t, gen.Generate(item.Key()), gen.ForBatch(item.Key(), []*DistributionLineItem{item}))
}
