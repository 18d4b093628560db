package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

func (r *StockSummaryReportResponse) GetCellValues() []interface{} {
	return []interface{}{
		r.MaterialCode, r.MaterialName,
		r.OpeningStock, r.QtyIn, r.QtyOut, r.QtyAdjusted, r.ClosingStock,
	}
}

func (r *TangkiStockReportResponse) GetCellValues() []interface{} {
	return []interface{}{
		r.TangkiName, r.MaterialName, r.Kapasitas,
		r.OpeningIsi, r.QtyMasuk, r.QtyKeluar, r.QtyAdjusted, r.ClosingIsi, r.UtilisasiPct,
	}
}

var stockSummaryHeadings = []string{
	"MaterialCode", "MaterialName", "OpeningStock", "QtyIn", "QtyOut", "QtyAdjusted", "ClosingStock",
}

var tangkiStockHeadings = []string{
	"TangkiName", "MaterialName", "Kapasitas", "OpeningIsi", "QtyMasuk", "QtyKeluar", "QtyAdjusted", "ClosingIsi", "UtilisasiPct",
}

func WriteStockSummaryExcel(w io.Writer, data []*StockSummaryReportResponse) error {
	rows := make([]ExcelExporter, len(data))
	for i, d := range data {
		rows[i] = d
	}
	return writeExcel(w, rows, stockSummaryHeadings...)
}

func WriteTangkiStockExcel(w io.Writer, data []*TangkiStockReportResponse) error {
	rows := make([]ExcelExporter, len(data))
	for i, d := range data {
		rows[i] = d
	}
	return writeExcel(w, rows, tangkiStockHeadings...)
}

func writeExcel(w io.Writer, data []ExcelExporter, headings ...string) error {

	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	// Add headers
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheetName, cell, h)
	}

	// Add data
	for rowNo, d := range data {
		for colNo, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(colNo+1, rowNo+2)
			if err != nil {
				return err
			}
			// decimal.Decimal is not a native excelize type
			f.SetCellValue(sheetName, cell, fmt.Sprint(value))
		}
	}

	return f.Write(w)
}
