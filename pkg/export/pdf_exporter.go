package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// InvoiceDocument is the printable content of an invoice.
type InvoiceDocument struct {
	Title      string
	Number     string
	IssuedAt   string
	Reference  string
	BilledTo   []string
	Items      Dataset
	Summary    [][2]string
	FooterNote string
}

// PDFExporter renders invoice documents with the core PDF fonts.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderInvoice lays out header, billing block, line items and the payment summary.
func (e *PDFExporter) RenderInvoice(doc InvoiceDocument) ([]byte, error) {
	if doc.Number == "" {
		return nil, fmt.Errorf("invoice number required")
	}
	if len(doc.Items.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one item header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(doc.Number, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, doc.Title, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Invoice No: "+doc.Number, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Issued: "+doc.IssuedAt, "", 1, "L", false, 0, "")
	if doc.Reference != "" {
		pdf.CellFormat(0, 6, "Transaction: "+doc.Reference, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(doc.BilledTo) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Billed To", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, line := range doc.BilledTo {
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 180.0 / float64(len(doc.Items.Headers))
	for _, header := range doc.Items.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range doc.Items.Rows {
		for _, header := range doc.Items.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	for _, line := range doc.Summary {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(130, 7, line[0], "", 0, "R", false, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, line[1], "", 1, "R", false, 0, "")
	}

	if doc.FooterNote != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, doc.FooterNote, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
