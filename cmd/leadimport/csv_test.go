package main

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

const sampleCSV = `id,name,company,created_at,last_contact_at,next_follow_up_at,score,estimated_value,source,status
lead-1,Ada,Acme,2026-01-10,2026-02-01T09:30:00Z,,85,"60,000",Referral,Contacted
lead-2,Bob,Initech,2025-11-02 08:00:00,,2026-03-05,40,1200,Website,new
,NoID,Nowhere,2026-01-01,,,10,0,Website,new
lead-4,Bad Date,Umbrella,yesterday,,,10,0,Website,new
lead-5,Bad Score,Hooli,2026-01-01,,,high,0,Website,new
`

func TestReadLeads(t *testing.T) {
	t.Run("ParsesValidRows", func(t *testing.T) {
		leads, skipped, err := readLeads(strings.NewReader(sampleCSV), 0)
		if err != nil {
			t.Fatalf("readLeads failed: %v", err)
		}
		if len(leads) != 2 {
			t.Fatalf("expected 2 leads, got %d", len(leads))
		}
		if skipped != 3 {
			t.Errorf("expected 3 skipped rows, got %d", skipped)
		}

		ada := leads[0]
		if ada.ID != "lead-1" || ada.Company != "Acme" {
			t.Errorf("unexpected lead %+v", ada)
		}
		if !ada.CreatedAt.Equal(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected created_at %v", ada.CreatedAt)
		}
		if ada.LastContactAt == nil || !ada.LastContactAt.Equal(time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)) {
			t.Errorf("unexpected last_contact_at %v", ada.LastContactAt)
		}
		if ada.NextFollowUpAt != nil {
			t.Errorf("expected no follow-up, got %v", ada.NextFollowUpAt)
		}
		if ada.EstimatedValue != 60000 {
			t.Errorf("expected value 60000, got %v", ada.EstimatedValue)
		}
		if ada.Status != domain.LeadStatusContacted {
			t.Errorf("expected status contacted, got %s", ada.Status)
		}

		bob := leads[1]
		if bob.LastContactAt != nil {
			t.Errorf("expected no contact, got %v", bob.LastContactAt)
		}
		if bob.NextFollowUpAt == nil {
			t.Error("expected a follow-up date")
		}
	})

	t.Run("Limit", func(t *testing.T) {
		leads, _, err := readLeads(strings.NewReader(sampleCSV), 1)
		if err != nil {
			t.Fatalf("readLeads failed: %v", err)
		}
		if len(leads) != 1 {
			t.Errorf("expected 1 lead, got %d", len(leads))
		}
	})

	t.Run("MissingRequiredColumn", func(t *testing.T) {
		_, _, err := readLeads(strings.NewReader("id,name\nlead-1,Ada\n"), 0)
		if err == nil {
			t.Error("expected error for missing created_at column")
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		_, _, err := readLeads(strings.NewReader(""), 0)
		if err == nil {
			t.Error("expected error for missing header")
		}
	})
}

func TestBar(t *testing.T) {
	tests := []struct {
		n, total int
		want     int
	}{
		{0, 0, 0},
		{0, 10, 0},
		{5, 10, 20},
		{10, 10, 40},
	}
	for _, tt := range tests {
		if got := len([]rune(bar(tt.n, tt.total))); got != tt.want {
			t.Errorf("bar(%d, %d) has %d cells, want %d", tt.n, tt.total, got, tt.want)
		}
	}
}
