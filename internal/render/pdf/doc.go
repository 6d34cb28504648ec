package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/willowglen/reportpdf/internal/domain"
)

const (
	pageMargin   = 15.0
	lineHeight   = 6.0
	labelWidth   = 45.0
	accentR      = 0x19
	accentG      = 0x76
	accentB      = 0xd2
	darkR        = 0x0d
	darkG        = 0x47
	darkB        = 0xa1
	tableShadeR  = 0xe3
	tableShadeG  = 0xf2
	tableShadeB  = 0xfd
	signBoxH     = 28.0
	signImgMaxH  = 20.0
	signImgMaxW  = 55.0
	contentWidth = 210 - 2*pageMargin
)

// doc wraps fpdf with the layout helpers shared by every report kind.
// Document dates are pinned to the payload's GeneratedAt so the same
// payload always produces byte-identical output.
type doc struct {
	pdf       *fpdf.Fpdf
	rowHeight float64
}

func newDoc(payload domain.ReportPayload, s style) *doc {
	p := fpdf.New("P", "mm", "A4", "")
	p.SetCatalogSort(true)
	p.SetCreationDate(payload.GeneratedAt.UTC())
	p.SetModificationDate(payload.GeneratedAt.UTC())
	p.SetTitle(s.subject+" "+payload.JobNo, false)
	p.SetSubject(s.subject, false)
	p.SetMargins(pageMargin, pageMargin, pageMargin)
	p.SetAutoPageBreak(true, pageMargin)
	p.AddPage()

	rowHeight := lineHeight
	if s.compactTables {
		rowHeight = lineHeight - 1
	}
	return &doc{pdf: p, rowHeight: rowHeight}
}

func (d *doc) title(text string) {
	d.pdf.SetFont("Helvetica", "B", 18)
	d.pdf.SetTextColor(accentR, accentG, accentB)
	d.pdf.CellFormat(0, 12, text, "", 1, "C", false, 0, "")
	d.pdf.Ln(2)
}

func (d *doc) headerGrid(fields []domain.Field) {
	d.pdf.SetFont("Helvetica", "", 10)
	half := contentWidth / 2
	for i := 0; i < len(fields); i += 2 {
		d.headerCell(fields[i], half)
		if i+1 < len(fields) {
			d.headerCell(fields[i+1], half)
		}
		d.pdf.Ln(lineHeight)
	}
	d.pdf.Ln(3)
}

func (d *doc) headerCell(field domain.Field, width float64) {
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.SetTextColor(darkR, darkG, darkB)
	d.pdf.CellFormat(labelWidth*0.7, lineHeight, field.Label+":", "", 0, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.CellFormat(width-labelWidth*0.7, lineHeight, field.Value, "", 0, "L", false, 0, "")
}

func (d *doc) sectionTitle(text string) {
	d.pdf.SetFont("Helvetica", "B", 13)
	d.pdf.SetTextColor(accentR, accentG, accentB)
	d.pdf.CellFormat(0, 9, text, "", 1, "L", false, 0, "")
}

func (d *doc) fieldRows(fields []domain.Field) {
	for _, field := range fields {
		d.pdf.SetFont("Helvetica", "B", 10)
		d.pdf.SetTextColor(darkR, darkG, darkB)
		d.pdf.CellFormat(labelWidth, lineHeight, field.Label, "", 0, "L", false, 0, "")
		d.pdf.SetFont("Helvetica", "", 10)
		d.pdf.SetTextColor(0, 0, 0)
		d.pdf.MultiCell(contentWidth-labelWidth, lineHeight, field.Value, "", "L", false)
	}
	d.pdf.Ln(2)
}

func (d *doc) table(table domain.Table) {
	if len(table.Columns) == 0 {
		return
	}
	if table.Title != "" {
		d.pdf.SetFont("Helvetica", "B", 11)
		d.pdf.SetTextColor(darkR, darkG, darkB)
		d.pdf.CellFormat(0, 7, table.Title, "", 1, "L", false, 0, "")
	}

	colWidth := contentWidth / float64(len(table.Columns))
	d.pdf.SetFont("Helvetica", "B", 9)
	d.pdf.SetFillColor(tableShadeR, tableShadeG, tableShadeB)
	d.pdf.SetTextColor(darkR, darkG, darkB)
	for _, columnName := range table.Columns {
		d.pdf.CellFormat(colWidth, d.rowHeight, columnName, "1", 0, "L", true, 0, "")
	}
	d.pdf.Ln(d.rowHeight)

	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.SetTextColor(0, 0, 0)
	for _, row := range table.Rows {
		for i := range table.Columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			d.pdf.CellFormat(colWidth, d.rowHeight, value, "1", 0, "L", false, 0, "")
		}
		d.pdf.Ln(d.rowHeight)
	}
	d.pdf.Ln(3)
}

func (d *doc) remarks(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.SetTextColor(darkR, darkG, darkB)
	d.pdf.CellFormat(0, lineHeight, "Remarks", "", 1, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.MultiCell(contentWidth, lineHeight, text, "1", "L", false)
	d.pdf.Ln(2)
}

// section renders one payload section in its canonical order: fields,
// tables, remarks.
func (d *doc) section(section domain.Section) {
	d.sectionTitle(section.Title)
	if len(section.Fields) > 0 {
		d.fieldRows(section.Fields)
	}
	for _, table := range section.Tables {
		d.table(table)
	}
	d.remarks(section.Remarks)
}

// signatureBlock is the one signature rendering shared by every report
// kind. Absent roles draw an empty signing box under the role caption so
// a final report without a captured image still closes cleanly.
func (d *doc) signatureBlock(set domain.SignatureSet) {
	d.sectionTitle("Signatures")

	half := contentWidth / 2
	startY := d.pdf.GetY()
	d.signatureBox(pageMargin, startY, half-5, "Attended By", set.AttendedBy)
	d.signatureBox(pageMargin+half+5, startY, half-5, "Approved By", set.ApprovedBy)
	d.pdf.SetY(startY + signBoxH + 16)
}

func (d *doc) signatureBox(x, y, width float64, caption string, sig *domain.Signature) {
	d.pdf.SetDrawColor(120, 120, 120)
	d.pdf.Rect(x, y, width, signBoxH, "D")

	if sig != nil && len(sig.Image) > 0 {
		name := fmt.Sprintf("sig-%s-%s", sig.Role, sig.ImagePath)
		options := fpdf.ImageOptions{ImageType: imageTypeFor(sig)}
		d.pdf.RegisterImageOptionsReader(name, options, bytes.NewReader(sig.Image))
		d.pdf.ImageOptions(name, x+(width-signImgMaxW)/2, y+(signBoxH-signImgMaxH)/2, signImgMaxW, signImgMaxH, false, options, 0, "")
	}

	d.pdf.SetXY(x, y+signBoxH+1)
	d.pdf.SetFont("Helvetica", "B", 9)
	d.pdf.SetTextColor(darkR, darkG, darkB)
	d.pdf.CellFormat(width, 5, caption, "", 2, "C", false, 0, "")

	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.SetTextColor(0, 0, 0)
	detail := ""
	if sig != nil {
		detail = sig.SignerName
		if !sig.VerifiedAt.IsZero() {
			detail += "  " + sig.VerifiedAt.UTC().Format("2006-01-02 15:04")
		}
	}
	d.pdf.SetX(x)
	d.pdf.CellFormat(width, 5, detail, "", 2, "C", false, 0, "")
}

// imageTypeFor prefers the format the resolver detected from the image
// bytes; the file extension is only a fallback and may lie.
func imageTypeFor(sig *domain.Signature) string {
	switch sig.ImageFormat {
	case "jpeg":
		return "JPG"
	case "gif":
		return "GIF"
	case "png":
		return "PNG"
	}

	lower := strings.ToLower(sig.ImagePath)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "JPG"
	case strings.HasSuffix(lower, ".gif"):
		return "GIF"
	default:
		return "PNG"
	}
}

func (d *doc) output() ([]byte, error) {
	var buffer bytes.Buffer
	if err := d.pdf.Output(&buffer); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buffer.Bytes(), nil
}
