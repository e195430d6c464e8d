package consultation

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestDraft_ReadinessFollowsChiefComplaint(t *testing.T) {
	d := NewDraft("P-100")
	if d.IsReadyToSubmit() {
		t.Fatal("expected empty draft not to be ready")
	}

	d.AddPrescriptionLine()
	d.UpdatePrescriptionLine(0, FieldMedicineName, "Paracetamol")
	d.SetFollowUp(NewDate(2024, time.May, 1), "review bloods")
	if d.IsReadyToSubmit() {
		t.Fatal("expected draft without chief complaint not to be ready")
	}

	d.UpdateHistory(HistoryPatch{ChiefComplaint: strPtr("   ")})
	if d.IsReadyToSubmit() {
		t.Fatal("expected whitespace chief complaint not to count")
	}

	d.UpdateHistory(HistoryPatch{ChiefComplaint: strPtr("fever")})
	if !d.IsReadyToSubmit() {
		t.Fatal("expected draft to be ready once chief complaint is set")
	}
}

func TestDraft_PayloadNotReady(t *testing.T) {
	d := NewDraft("P-100")
	if _, err := d.ToSubmissionPayload(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestDraft_UpdateHistoryMerges(t *testing.T) {
	d := NewDraft("P-1")
	d.UpdateHistory(HistoryPatch{ChiefComplaint: strPtr("cough"), PastIllness: strPtr("TB 2019")})
	d.UpdateHistory(HistoryPatch{ClinicalNotes: strPtr("wheeze on auscultation")})

	h := d.History()
	if h.ChiefComplaint != "cough" || h.PastIllness != "TB 2019" || h.ClinicalNotes != "wheeze on auscultation" {
		t.Errorf("unexpected history %+v", h)
	}
}

func TestDraft_SubmissionFiltering(t *testing.T) {
	d := NewDraft("P-7")
	d.UpdateHistory(HistoryPatch{ChiefComplaint: strPtr("headache")})

	i := d.AddPrescriptionLine()
	d.UpdatePrescriptionLine(i, FieldMedicineName, "Ibuprofen")
	d.UpdatePrescriptionLine(i, FieldFrequency, "1-0-1")
	d.AddPrescriptionLine()
	j := d.AddPrescriptionLine()
	d.UpdatePrescriptionLine(j, FieldMedicineName, "  ")

	k := d.AddTestOrder()
	d.UpdateTestOrder(k, FieldTestName, "CBC")
	d.AddTestOrder()

	d.SetFollowUp(Date{}, "call if worse")

	p, err := d.ToSubmissionPayload()
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Medicines) != 1 || p.Medicines[0].MedicineName != "Ibuprofen" || p.Medicines[0].Frequency != TwiceDaily {
		t.Errorf("unexpected medicines %+v", p.Medicines)
	}
	if len(p.Tests) != 1 || p.Tests[0].TestName != "CBC" {
		t.Errorf("unexpected tests %+v", p.Tests)
	}
	if p.FollowUp != nil {
		t.Error("expected follow-up without a date to be omitted")
	}
	if p.SubjectID != "P-7" {
		t.Errorf("expected subject P-7, got %q", p.SubjectID)
	}

	// incomplete entries stay in the draft for further editing
	if got := len(d.PrescriptionLines()); got != 3 {
		t.Errorf("expected 3 lines kept in draft, got %d", got)
	}

	d.SetFollowUp(NewDate(2024, time.July, 10), "")
	p, _ = d.ToSubmissionPayload()
	if p.FollowUp == nil || p.FollowUp.ScheduledDate.String() != "2024-07-10" {
		t.Errorf("expected follow-up on 2024-07-10, got %+v", p.FollowUp)
	}

	d.ClearFollowUp()
	p, _ = d.ToSubmissionPayload()
	if p.FollowUp != nil {
		t.Error("expected cleared follow-up to be omitted")
	}
}

func TestDraft_OutOfRange(t *testing.T) {
	d := NewDraft("P-1")
	d.AddPrescriptionLine()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"update line negative", func() error { return d.UpdatePrescriptionLine(-1, FieldDosage, "5ml") }},
		{"update line past end", func() error { return d.UpdatePrescriptionLine(1, FieldDosage, "5ml") }},
		{"remove line past end", func() error { return d.RemovePrescriptionLine(3) }},
		{"update test empty list", func() error { return d.UpdateTestOrder(0, FieldTestName, "LFT") }},
		{"remove test empty list", func() error { return d.RemoveTestOrder(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var oor *OutOfRangeError
			if err := tt.fn(); !errors.As(err, &oor) {
				t.Errorf("expected OutOfRangeError, got %v", err)
			}
		})
	}
	if got := len(d.PrescriptionLines()); got != 1 {
		t.Errorf("expected failed calls not to mutate, got %d lines", got)
	}
}

func TestDraft_RemovePreservesOrder(t *testing.T) {
	d := NewDraft("P-1")
	for _, name := range []string{"A", "B", "C", "D"} {
		i := d.AddPrescriptionLine()
		d.UpdatePrescriptionLine(i, FieldMedicineName, name)
	}
	if err := d.RemovePrescriptionLine(1); err != nil {
		t.Fatal(err)
	}
	lines := d.PrescriptionLines()
	got := ""
	for _, l := range lines {
		got += l.MedicineName
	}
	if got != "ACD" {
		t.Errorf("expected ACD, got %s", got)
	}
}

func TestDraft_UnknownFrequency(t *testing.T) {
	d := NewDraft("P-1")
	d.AddPrescriptionLine()
	d.UpdatePrescriptionLine(0, FieldFrequency, "1-1-1")

	err := d.UpdatePrescriptionLine(0, FieldFrequency, "twice a day")
	if !errors.Is(err, ErrUnknownFrequency) {
		t.Fatalf("expected ErrUnknownFrequency, got %v", err)
	}
	if got := d.PrescriptionLines()[0].Frequency; got != ThriceDaily {
		t.Errorf("expected frequency unchanged, got %q", got)
	}

	if err := d.UpdatePrescriptionLine(0, FieldFrequency, ""); err != nil {
		t.Errorf("expected clearing frequency to succeed, got %v", err)
	}
	if err := d.UpdatePrescriptionLine(0, FieldTestName, "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestDraftFromEncounter(t *testing.T) {
	fu := &FollowUp{ScheduledDate: NewDate(2024, time.May, 1), Notes: "recheck"}
	enc := Encounter{
		ID:        "V-9",
		PatientID: "P-3",
		History:   History{ChiefComplaint: "cough", ClinicalNotes: "mild"},
		Medicines: []PrescriptionLine{{MedicineName: "Azithromycin", Frequency: MorningOnly}},
		FollowUp:  fu,
	}
	d := DraftFromEncounter(enc)

	if d.Mode() != ModeEdit || d.OriginalEncounterID() != "V-9" || d.SubjectID() != "P-3" {
		t.Errorf("unexpected identity: mode %s id %q subject %q", d.Mode(), d.OriginalEncounterID(), d.SubjectID())
	}
	if d.History().ChiefComplaint != "cough" {
		t.Errorf("expected chief complaint cough, got %q", d.History().ChiefComplaint)
	}
	if len(d.TestOrders()) != 0 {
		t.Error("expected absent tests to map to an empty list")
	}

	// the draft owns its own copy
	enc.Medicines[0].MedicineName = "changed"
	fu.Notes = "changed"
	if d.PrescriptionLines()[0].MedicineName != "Azithromycin" || d.FollowUp().Notes != "recheck" {
		t.Error("expected draft to be independent of the source encounter")
	}

	noFollowUp := DraftFromEncounter(Encounter{ID: "V-1", PatientID: "P-1"})
	if noFollowUp.FollowUp().Active() {
		t.Error("expected absent follow-up to be inactive")
	}
}

func TestFrequency(t *testing.T) {
	if got := TwiceDaily.Label(); got != "1-0-1 (Twice daily)" {
		t.Errorf("unexpected label %q", got)
	}
	for _, f := range Frequencies {
		if !f.Known() {
			t.Errorf("expected %q to be known", f)
		}
	}
	if Frequency("2-2-2").Known() {
		t.Error("expected 2-2-2 to be unknown")
	}
}
