package consultation

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a recorded visit.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// PrescriptionLine is one medicine on a prescription. A line without a
// medicine name is incomplete and left out of the payload.
type PrescriptionLine struct {
	MedicineName string    `json:"medicineName"`
	Dosage       string    `json:"dosage"`
	Frequency    Frequency `json:"frequency"`
	Duration     string    `json:"duration"`
	Instructions string    `json:"instructions"`
}

func (l PrescriptionLine) Complete() bool { return strings.TrimSpace(l.MedicineName) != "" }

// TestOrder is one diagnostic test ordered for the patient.
type TestOrder struct {
	TestName     string `json:"testName"`
	Instructions string `json:"instructions"`
}

func (o TestOrder) Complete() bool { return strings.TrimSpace(o.TestName) != "" }

// FollowUp is active only when a date is scheduled.
type FollowUp struct {
	ScheduledDate Date   `json:"scheduledDate"`
	Notes         string `json:"notes"`
}

func (f FollowUp) Active() bool { return !f.ScheduledDate.IsZero() }

// History is the clinical history captured in the first step.
type History struct {
	ChiefComplaint  string `json:"chiefComplaint"`
	PresentIllness  string `json:"presentIllness"`
	PastIllness     string `json:"pastIllness"`
	MedicalHistory  string `json:"medicalHistory"`
	SurgicalHistory string `json:"surgicalHistory"`
	ClinicalNotes   string `json:"clinicalNotes"`
}

// HistoryPatch updates the non-nil fields of a History.
type HistoryPatch struct {
	ChiefComplaint  *string `json:"chiefComplaint,omitempty"`
	PresentIllness  *string `json:"presentIllness,omitempty"`
	PastIllness     *string `json:"pastIllness,omitempty"`
	MedicalHistory  *string `json:"medicalHistory,omitempty"`
	SurgicalHistory *string `json:"surgicalHistory,omitempty"`
	ClinicalNotes   *string `json:"clinicalNotes,omitempty"`
}

func (h History) apply(p HistoryPatch) History {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&h.ChiefComplaint, p.ChiefComplaint)
	set(&h.PresentIllness, p.PresentIllness)
	set(&h.PastIllness, p.PastIllness)
	set(&h.MedicalHistory, p.MedicalHistory)
	set(&h.SurgicalHistory, p.SurgicalHistory)
	set(&h.ClinicalNotes, p.ClinicalNotes)
	return h
}

// Encounter is a previously recorded consultation as returned by the server.
type Encounter struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	History
	Medicines []PrescriptionLine `json:"medicines"`
	Tests     []TestOrder        `json:"tests"`
	FollowUp  *FollowUp          `json:"followUp"`
	DoctorID  string             `json:"doctorId,omitempty"`
	Status    Status             `json:"status,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Payload is the single submission body for a consultation. History fields
// are sent at the top level.
type Payload struct {
	SubjectID string `json:"patientId"`
	History
	Medicines []PrescriptionLine `json:"medicines"`
	Tests     []TestOrder        `json:"tests"`
	FollowUp  *FollowUp          `json:"followUp,omitempty"`
	// OriginalEncounterID is set in edit mode; the save step updates that
	// encounter instead of creating one.
	OriginalEncounterID string `json:"originalEncounterId,omitempty"`
}

// IsUpdate reports whether the payload replaces an existing encounter.
func (p *Payload) IsUpdate() bool { return p.OriginalEncounterID != "" }
