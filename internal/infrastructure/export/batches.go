// Package export renders batch lists as spreadsheets
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/wms-platform/distribution-service/internal/domain"
)

const (
	// ContentType is the MIME type of the produced workbook
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	BatchSheet = "Batches"
	ItemSheet  = "Items"
)

var (
	batchHeader = []interface{}{
		"Invoice", "Distributed At", "Distributor", "Warehouse", "Status",
		"Items", "Total Quantity", "Total Amount", "Batch ID",
	}
	itemHeader = []interface{}{
		"Invoice", "Line", "Product ID", "Product", "Quantity", "Unit Price", "Amount", "Status", "Notes",
	}
)

// Filename names the export of one store on one day
func Filename(storeID string, at time.Time) string {
	return fmt.Sprintf("distributions-%s-%s.xlsx", storeID, at.Format("20060102"))
}

// WriteBatches writes a two-sheet workbook: one row per batch, then one row
// per line item. Times are shown in loc.
func WriteBatches(w io.Writer, batches []*domain.DistributionBatch, loc *time.Location) error {
	f, err := Workbook(batches, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Workbook builds the workbook in memory
func Workbook(batches []*domain.DistributionBatch, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", BatchSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ItemSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}

	if err := fill(f, batches, loc); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fill(f *excelize.File, batches []*domain.DistributionBatch, loc *time.Location) error {
	if err := setRow(f, BatchSheet, 1, batchHeader); err != nil {
		return err
	}
	if err := setRow(f, ItemSheet, 1, itemHeader); err != nil {
		return err
	}

	itemRow := 2
	for i, batch := range batches {
		if err := setRow(f, BatchSheet, i+2, []interface{}{
			batch.InvoiceNumber,
			batch.DistributedAt.In(loc).Format("2006-01-02 15:04:05"),
			batch.DistributedByName,
			batch.SourceWarehouseID,
			string(batch.Status),
			batch.ItemCount,
			batch.TotalQuantity,
			batch.TotalAmount.Decimal().InexactFloat64(),
			batch.BatchID,
		}); err != nil {
			return err
		}

		for _, item := range batch.Items {
			if err := setRow(f, ItemSheet, itemRow, []interface{}{
				batch.InvoiceNumber,
				item.LineNo + 1,
				item.ProductID,
				item.ProductName,
				item.Quantity,
				item.UnitPrice.Decimal().InexactFloat64(),
				item.TotalAmount.Decimal().InexactFloat64(),
				string(item.Status),
				item.Notes,
			}); err != nil {
				return err
			}
			itemRow++
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
