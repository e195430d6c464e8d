package sandbox

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/bharatemr/practice/internal/domain/visit"
)

var (
	//go:embed fonts/DejaVuSans.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSans-Bold.ttf
	fontBold []byte
)

const (
	fontFamily = "DejaVu"
	lineHeight = 6.0
)

// rxSection is one titled block of the printed prescription. An empty
// title continues the header block.
type rxSection struct {
	title string
	lines []string
}

// prescriptionSections is the text of the printed prescription, in order.
func prescriptionSections(v visit.Visit) []rxSection {
	header := rxSection{lines: []string{
		"Visit: " + v.ID,
		"Date: " + v.CreatedAt.Format("02 Jan 2006"),
		"Patient: " + v.PatientName,
	}}
	if v.DoctorName != "" {
		header.lines = append(header.lines, "Doctor: "+v.DoctorName)
	}
	sections := []rxSection{header}
	if v.ChiefComplaint != "" {
		sections = append(sections, rxSection{title: "Chief complaint", lines: []string{v.ChiefComplaint}})
	}

	rx := rxSection{title: "Rx"}
	for i, m := range v.Medicines {
		parts := []string{m.MedicineName}
		for _, s := range []string{m.Dosage, m.Frequency.Label(), m.Duration, m.Instructions} {
			if s != "" {
				parts = append(parts, s)
			}
		}
		rx.lines = append(rx.lines, fmt.Sprintf("%d. %s", i+1, strings.Join(parts, " | ")))
	}
	if len(rx.lines) == 0 {
		rx.lines = []string{"No medicines prescribed"}
	}
	sections = append(sections, rx)

	if len(v.Tests) > 0 {
		tests := rxSection{title: "Tests"}
		for _, t := range v.Tests {
			line := "- " + t.TestName
			if t.Instructions != "" {
				line += " (" + t.Instructions + ")"
			}
			tests.lines = append(tests.lines, line)
		}
		sections = append(sections, tests)
	}
	if v.FollowUp != nil && v.FollowUp.Active() {
		line := v.FollowUp.ScheduledDate.String()
		if v.FollowUp.Notes != "" {
			line += " " + v.FollowUp.Notes
		}
		sections = append(sections, rxSection{title: "Follow-up", lines: []string{line}})
	}
	return sections
}

// prescriptionDoc lays the sections out on A4 pages. Lines wrap at the
// right margin and pages break automatically.
func prescriptionDoc(v visit.Visit) *fpdf.Fpdf {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	doc.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	doc.SetTitle("Prescription "+v.ID, true)
	if !v.CreatedAt.IsZero() {
		doc.SetCreationDate(v.CreatedAt)
	}
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 18)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-14)
		doc.SetFont(fontFamily, "", 8)
		doc.CellFormat(0, 5, fmt.Sprintf("%s  ·  page %d of {nb}", v.ID, doc.PageNo()), "", 0, "C", false, 0, "")
	})
	doc.AddPage()

	doc.SetFont(fontFamily, "B", 16)
	doc.MultiCell(0, 9, "Prescription", "", "L", false)
	doc.Ln(2)
	for _, s := range prescriptionSections(v) {
		if s.title != "" {
			doc.Ln(3)
			doc.SetFont(fontFamily, "B", 12)
			doc.MultiCell(0, lineHeight+1, s.title, "", "L", false)
		}
		doc.SetFont(fontFamily, "", 11)
		for _, l := range s.lines {
			doc.MultiCell(0, lineHeight, l, "", "L", false)
		}
	}
	return doc
}

// RenderPrescription prints the visit's prescription as a PDF document.
func RenderPrescription(v visit.Visit) ([]byte, error) {
	doc := prescriptionDoc(v)
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering prescription %s: %w", v.ID, err)
	}
	return buf.Bytes(), nil
}
