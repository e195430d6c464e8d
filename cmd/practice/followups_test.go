package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/domain/followup"
	"github.com/bharatemr/practice/pkg/pagination"
)

func TestPrintSchedule(t *testing.T) {
	now := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	rows := []followup.FollowUp{
		{ID: "F-1", PatientName: "Meera", PatientMobile: "+919876543210", Notes: "review BP", Status: followup.Scheduled, ScheduledDate: consultation.NewDate(2026, time.October, 10)},
		{ID: "F-2", PatientName: "Arjun", Notes: "sugar", Status: followup.Completed, ScheduledDate: consultation.NewDate(2026, time.October, 11)},
		{ID: "F-3", PatientName: "Kiran", Notes: "x-ray", Status: followup.Scheduled, ScheduledDate: consultation.NewDate(2026, time.November, 2)},
	}
	var out bytes.Buffer
	printSchedule(&out, pagination.NewPage(rows, 3, pagination.Params{Page: 1, PageSize: 10}), now)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %q", out.String())
	}
	tests := []struct {
		line    string
		want    string
		overdue bool
	}{
		{lines[1], "10 Oct 2026", true},
		{lines[2], "COMPLETED", false},
		{lines[3], "02 Nov 2026", false},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.line, tt.want) {
			t.Errorf("expected %q in %q", tt.want, tt.line)
		}
		if got := strings.Contains(tt.line, "(overdue)"); got != tt.overdue {
			t.Errorf("expected overdue %v, got %v in %q", tt.overdue, got, tt.line)
		}
	}
}

func TestFollowUpsCmd(t *testing.T) {
	cmd := followUpsCmd()
	for _, name := range []string{"list", "set-status", "export"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("expected subcommand %s, got %v (%v)", name, sub, err)
		}
	}
	set, _, _ := cmd.Find([]string{"set-status"})
	if err := set.Args(set, []string{"F-1"}); err == nil {
		t.Error("expected set-status to require an id and a status")
	}
}
