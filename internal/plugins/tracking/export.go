package tracking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of ChangedWorkbook output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var changedHeader = []string{"entity_path", "tag_version", "changed_fields"}

// ChangedWorkbook renders a changed-entity listing as a single-sheet
// workbook named after the kind, one row per entity.
func ChangedWorkbook(kind EntityKind, changed []ChangedEntity) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := sheetName(string(kind))
	if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if err := xl.SetSheetRow(sheet, "A1", &changedHeader); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, ce := range changed {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []string{ce.EntityPath, strconv.Itoa(ce.Version), strings.Join(ce.ChangedFields, ", ")}
		if err := xl.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetName strips the characters Excel rejects and keeps the 31 char limit.
func sheetName(name string) string {
	name = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_").Replace(name)
	name = strings.TrimSpace(name)
	if len(name) > 31 {
		name = name[:31]
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}
