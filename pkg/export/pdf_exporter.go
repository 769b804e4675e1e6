package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Sheet is a printable table. Widths are relative weights per column; an
// empty slice spreads columns evenly.
type Sheet struct {
	Title    string
	Subtitle []string
	Headers  []string
	Widths   []float64
	Rows     [][]string
}

// PDFExporter renders sheets into A4 PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a title block and a bordered table.
func (e *PDFExporter) Render(sheet Sheet) ([]byte, error) {
	if len(sheet.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths, err := columnWidths(sheet, 190.0)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if sheet.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(sheet.Title), "", 1, "C", false, 0, "")
	}
	if len(sheet.Subtitle) > 0 {
		pdf.SetFont("Arial", "", 10)
		for _, line := range sheet.Subtitle {
			pdf.CellFormat(0, 6, line, "", 1, "C", false, 0, "")
		}
	}
	pdf.Ln(4)

	writeHeader := func() {
		pdf.SetFont("Arial", "B", 10)
		for i, header := range sheet.Headers {
			pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			writeHeader()
		}
	})
	writeHeader()

	for _, row := range sheet.Rows {
		for i := range sheet.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(widths[i], 8, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(sheet Sheet, total float64) ([]float64, error) {
	n := len(sheet.Headers)
	if len(sheet.Widths) == 0 {
		widths := make([]float64, n)
		for i := range widths {
			widths[i] = total / float64(n)
		}
		return widths, nil
	}
	if len(sheet.Widths) != n {
		return nil, fmt.Errorf("pdf widths length %d does not match %d headers", len(sheet.Widths), n)
	}
	var sum float64
	for _, w := range sheet.Widths {
		if w <= 0 {
			return nil, fmt.Errorf("pdf widths must be positive")
		}
		sum += w
	}
	widths := make([]float64, n)
	for i, w := range sheet.Widths {
		widths[i] = total * w / sum
	}
	return widths, nil
}
