package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate holds the fields printed on a course completion certificate.
type Certificate struct {
	Issuer      string
	LearnerName string
	CourseTitle string
	Instructor  string
	CompletedAt time.Time
	Serial      string
}

// PDFExporter renders datasets and certificates into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a landscape PDF with an optional title and a bordered table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colWidth := (pageWidth - left - right) / float64(len(data.Headers))

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for _, row := range data.Rows {
		if pdf.GetY()+7 > pageHeight-15 {
			pdf.AddPage()
			header()
		}
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[h]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

// RenderCertificate draws a single-page completion certificate.
func (e *PDFExporter) RenderCertificate(cert Certificate) ([]byte, error) {
	if cert.LearnerName == "" || cert.CourseTitle == "" {
		return nil, fmt.Errorf("certificate requires learner name and course title")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, pageWidth-20, pageHeight-20, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(14, 14, pageWidth-28, pageHeight-28, "D")

	pdf.SetY(40)
	pdf.SetFont("Arial", "B", 28)
	pdf.CellFormat(0, 14, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(0, 12, tr(cert.LearnerName), "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, tr(strings.TrimSpace(cert.CourseTitle)), "", 1, "C", false, 0, "")

	if cert.Instructor != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "I", 12)
		pdf.CellFormat(0, 8, tr("Instructor: "+cert.Instructor), "", 1, "C", false, 0, "")
	}

	pdf.SetY(pageHeight - 50)
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, "Completed on "+cert.CompletedAt.UTC().Format("January 2, 2006"), "", 1, "C", false, 0, "")
	if cert.Issuer != "" {
		pdf.CellFormat(0, 7, tr("Issued by "+cert.Issuer), "", 1, "C", false, 0, "")
	}
	if cert.Serial != "" {
		pdf.SetFont("Arial", "", 8)
		pdf.CellFormat(0, 6, "Serial "+cert.Serial, "", 1, "C", false, 0, "")
	}
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
