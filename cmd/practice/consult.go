package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/domain/visit"
	"github.com/bharatemr/practice/internal/platform/notify"
)

// consultScript is the JSON form of a consultation. In edit mode only the
// sections present in the script replace the visit's recorded values.
type consultScript struct {
	PatientID string                          `json:"patientId"`
	History   consultation.HistoryPatch       `json:"history"`
	Medicines []consultation.PrescriptionLine `json:"medicines"`
	Tests     []consultation.TestOrder        `json:"tests"`
	FollowUp  *struct {
		Date  string `json:"date"`
		Notes string `json:"notes"`
	} `json:"followUp"`
}

func readScript(path string, stdin io.Reader) (*consultScript, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var s consultScript
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("reading consultation script: %w", err)
	}
	return &s, nil
}

// fill walks the workflow through its steps, applying each section of the
// script on the step that owns it.
func (s *consultScript) fill(w *consultation.Workflow, out io.Writer) error {
	d := w.Draft()
	for !w.IsLast() {
		fmt.Fprintf(out, "[%d/%d] %s\n", int(w.Current())+1, len(consultation.Steps), w.Current())
		switch w.Current() {
		case consultation.StepHistory:
			d.UpdateHistory(s.History)

		case consultation.StepPrescription:
			if err := s.fillPrescription(d); err != nil {
				return err
			}

		case consultation.StepFollowUp:
			if s.FollowUp == nil {
				break
			}
			date, err := consultation.ParseDate(s.FollowUp.Date)
			if err != nil {
				return fmt.Errorf("follow-up date: %w", err)
			}
			d.SetFollowUp(date, s.FollowUp.Notes)
		}
		w.Next()
	}
	return nil
}

func (s *consultScript) fillPrescription(d *consultation.Draft) error {
	if s.Medicines != nil {
		for len(d.PrescriptionLines()) > 0 {
			if err := d.RemovePrescriptionLine(0); err != nil {
				return err
			}
		}
		for _, m := range s.Medicines {
			i := d.AddPrescriptionLine()
			for _, set := range []struct {
				field consultation.Field
				value string
			}{
				{consultation.FieldMedicineName, m.MedicineName},
				{consultation.FieldDosage, m.Dosage},
				{consultation.FieldFrequency, string(m.Frequency)},
				{consultation.FieldDuration, m.Duration},
				{consultation.FieldInstructions, m.Instructions},
			} {
				if err := d.UpdatePrescriptionLine(i, set.field, set.value); err != nil {
					return fmt.Errorf("medicine %d: %w", i+1, err)
				}
			}
		}
	}
	if s.Tests != nil {
		for len(d.TestOrders()) > 0 {
			if err := d.RemoveTestOrder(0); err != nil {
				return err
			}
		}
		for _, t := range s.Tests {
			i := d.AddTestOrder()
			if err := d.UpdateTestOrder(i, consultation.FieldTestName, t.TestName); err != nil {
				return err
			}
			if err := d.UpdateTestOrder(i, consultation.FieldInstructions, t.Instructions); err != nil {
				return err
			}
		}
	}
	return nil
}

func printReview(out io.Writer, w *consultation.Workflow) {
	d := w.Draft()
	fmt.Fprintf(out, "[%d/%d] %s (%s)\n", int(w.Current())+1, len(consultation.Steps), w.Current(), w.Mode())
	fmt.Fprintln(out, "  Chief complaint:", d.History().ChiefComplaint)
	for i, m := range d.PrescriptionLines() {
		if m.Complete() {
			fmt.Fprintf(out, "  Rx %d: %s %s %s %s\n", i+1, m.MedicineName, m.Dosage, m.Frequency.Label(), m.Duration)
		}
	}
	for _, t := range d.TestOrders() {
		if t.Complete() {
			fmt.Fprintln(out, "  Test:", t.TestName)
		}
	}
	if f := d.FollowUp(); f.Active() {
		fmt.Fprintln(out, "  Follow-up:", f.ScheduledDate, f.Notes)
	}
}

func consultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consult <script.json|->",
		Short: "Record a consultation from a JSON script",
		Long: `Record a consultation as the signed-in doctor. The script holds the
patientId, history, medicines, tests and followUp sections. With --edit the
script updates an existing visit instead of creating one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			script, err := readScript(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			visits := visit.NewService(e.client, e.identity, e.logger)
			editID, _ := cmd.Flags().GetString("edit")
			var w *consultation.Workflow
			if editID != "" {
				w, err = visits.Edit(cmd.Context(), editID)
				if err == nil && script.PatientID != "" && script.PatientID != w.Draft().SubjectID() {
					err = fmt.Errorf("visit %s belongs to patient %s", editID, w.Draft().SubjectID())
				}
			} else {
				w, err = consultation.NewWorkflow(e.identity, script.PatientID, e.logger)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := script.fill(w, out); err != nil {
				return err
			}
			printReview(out, w)

			if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
				return nil
			}
			payload, err := w.Submit()
			if err != nil {
				return err
			}
			id, err := visits.Save(cmd.Context(), payload)
			if err != nil {
				e.sink.Notify("Failed to save consultation", notify.Error)
				return err
			}
			if payload.IsUpdate() {
				e.sink.Notify("Consultation updated", notify.Success)
			} else {
				e.sink.Notify("Consultation saved", notify.Success)
			}
			fmt.Fprintln(out, id)
			return nil
		},
	}
	cmd.Flags().String("edit", "", "Visit id to update")
	cmd.Flags().Bool("dry-run", false, "Stop at review without saving")
	return cmd
}
