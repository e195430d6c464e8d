package consultation

import (
	"fmt"
	"strings"
)

// Mode tells whether a draft creates a new encounter or edits one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Field names a property of a prescription line or test order.
type Field string

const (
	FieldMedicineName Field = "medicineName"
	FieldDosage       Field = "dosage"
	FieldFrequency    Field = "frequency"
	FieldDuration     Field = "duration"
	FieldInstructions Field = "instructions"
	FieldTestName     Field = "testName"
)

// Draft is the in-progress consultation. Edits are never blocked; the chief
// complaint is only enforced when the payload is built. A Draft is not safe
// for concurrent use.
type Draft struct {
	subjectID           string
	mode                Mode
	originalEncounterID string

	history  History
	lines    []PrescriptionLine
	tests    []TestOrder
	followUp FollowUp
}

// NewDraft returns an empty draft for a new encounter with the patient.
func NewDraft(subjectID string) *Draft {
	return &Draft{subjectID: subjectID, mode: ModeCreate}
}

// DraftFromEncounter returns an edit-mode draft populated field by field
// from enc. Absent optional parts become empty values.
func DraftFromEncounter(enc Encounter) *Draft {
	d := &Draft{
		subjectID:           enc.PatientID,
		mode:                ModeEdit,
		originalEncounterID: enc.ID,
		history:             enc.History,
		lines:               append([]PrescriptionLine(nil), enc.Medicines...),
		tests:               append([]TestOrder(nil), enc.Tests...),
	}
	if enc.FollowUp != nil {
		d.followUp = *enc.FollowUp
	}
	return d
}

func (d *Draft) SubjectID() string           { return d.subjectID }
func (d *Draft) Mode() Mode                  { return d.mode }
func (d *Draft) OriginalEncounterID() string { return d.originalEncounterID }
func (d *Draft) History() History            { return d.history }
func (d *Draft) FollowUp() FollowUp          { return d.followUp }

// PrescriptionLines returns a copy of the lines, incomplete ones included.
func (d *Draft) PrescriptionLines() []PrescriptionLine {
	return append([]PrescriptionLine(nil), d.lines...)
}

// TestOrders returns a copy of the test orders, incomplete ones included.
func (d *Draft) TestOrders() []TestOrder {
	return append([]TestOrder(nil), d.tests...)
}

// UpdateHistory merges p into the history.
func (d *Draft) UpdateHistory(p HistoryPatch) {
	d.history = d.history.apply(p)
}

// ---------------------------------------------------------------------------
// Prescription lines
// ---------------------------------------------------------------------------

// AddPrescriptionLine appends an empty line and returns its index.
func (d *Draft) AddPrescriptionLine() int {
	d.lines = append(d.lines, PrescriptionLine{})
	return len(d.lines) - 1
}

// UpdatePrescriptionLine sets one field of line i. An unknown frequency code
// is rejected and leaves the line unchanged.
func (d *Draft) UpdatePrescriptionLine(i int, field Field, value string) error {
	if i < 0 || i >= len(d.lines) {
		return &OutOfRangeError{List: "prescription", Index: i, Len: len(d.lines)}
	}
	line := &d.lines[i]
	switch field {
	case FieldMedicineName:
		line.MedicineName = value
	case FieldDosage:
		line.Dosage = value
	case FieldFrequency:
		f, err := ParseFrequency(value)
		if err != nil {
			return err
		}
		line.Frequency = f
	case FieldDuration:
		line.Duration = value
	case FieldInstructions:
		line.Instructions = value
	default:
		return fmt.Errorf("%w %q for prescription line", ErrUnknownField, field)
	}
	return nil
}

// RemovePrescriptionLine deletes line i; later lines shift down by one.
func (d *Draft) RemovePrescriptionLine(i int) error {
	if i < 0 || i >= len(d.lines) {
		return &OutOfRangeError{List: "prescription", Index: i, Len: len(d.lines)}
	}
	d.lines = append(d.lines[:i], d.lines[i+1:]...)
	return nil
}

// ---------------------------------------------------------------------------
// Test orders
// ---------------------------------------------------------------------------

func (d *Draft) AddTestOrder() int {
	d.tests = append(d.tests, TestOrder{})
	return len(d.tests) - 1
}

func (d *Draft) UpdateTestOrder(i int, field Field, value string) error {
	if i < 0 || i >= len(d.tests) {
		return &OutOfRangeError{List: "test order", Index: i, Len: len(d.tests)}
	}
	switch field {
	case FieldTestName:
		d.tests[i].TestName = value
	case FieldInstructions:
		d.tests[i].Instructions = value
	default:
		return fmt.Errorf("%w %q for test order", ErrUnknownField, field)
	}
	return nil
}

func (d *Draft) RemoveTestOrder(i int) error {
	if i < 0 || i >= len(d.tests) {
		return &OutOfRangeError{List: "test order", Index: i, Len: len(d.tests)}
	}
	d.tests = append(d.tests[:i], d.tests[i+1:]...)
	return nil
}

// ---------------------------------------------------------------------------
// Follow-up
// ---------------------------------------------------------------------------

// SetFollowUp schedules a follow-up. A zero date keeps the notes but leaves
// the follow-up inactive.
func (d *Draft) SetFollowUp(date Date, notes string) {
	d.followUp = FollowUp{ScheduledDate: date, Notes: notes}
}

func (d *Draft) ClearFollowUp() {
	d.followUp = FollowUp{}
}

// ---------------------------------------------------------------------------
// Submission
// ---------------------------------------------------------------------------

// IsReadyToSubmit reports whether the chief complaint is filled in.
func (d *Draft) IsReadyToSubmit() bool {
	return strings.TrimSpace(d.history.ChiefComplaint) != ""
}

// ToSubmissionPayload builds the payload, dropping incomplete lines and
// orders and an inactive follow-up.
func (d *Draft) ToSubmissionPayload() (*Payload, error) {
	if !d.IsReadyToSubmit() {
		return nil, ErrNotReady
	}

	p := &Payload{
		SubjectID:           d.subjectID,
		History:             d.history,
		Medicines:           []PrescriptionLine{},
		Tests:               []TestOrder{},
		OriginalEncounterID: d.originalEncounterID,
	}
	for _, l := range d.lines {
		if l.Complete() {
			p.Medicines = append(p.Medicines, l)
		}
	}
	for _, t := range d.tests {
		if t.Complete() {
			p.Tests = append(p.Tests, t)
		}
	}
	if d.followUp.Active() {
		fu := d.followUp
		p.FollowUp = &fu
	}
	return p, nil
}
