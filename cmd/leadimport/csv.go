package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// Accepted timestamp layouts, tried in order
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// readLeads parses a CSV export with a header row. Column names are
// matched case-insensitively; id and created_at are required. Rows that
// do not parse are counted and skipped.
func readLeads(r io.Reader, limit int) ([]*domain.Lead, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"id", "created_at"} {
		if _, ok := colIndex[required]; !ok {
			return nil, 0, fmt.Errorf("missing required column %q", required)
		}
	}

	var (
		leads   []*domain.Lead
		skipped int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		lead, err := parseRecord(record, colIndex)
		if err != nil {
			skipped++
			continue
		}
		leads = append(leads, lead)

		if limit > 0 && len(leads) >= limit {
			break
		}
	}

	return leads, skipped, nil
}

func parseRecord(record []string, colIndex map[string]int) (*domain.Lead, error) {
	get := func(col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	lead := &domain.Lead{
		ID:      get("id"),
		Name:    get("name"),
		Company: get("company"),
		Owner:   get("owner"),
		Source:  get("source"),
		Status:  domain.LeadStatus(strings.ToLower(get("status"))),
	}
	if lead.ID == "" {
		return nil, errors.New("id is empty")
	}

	created, err := parseTime(get("created_at"))
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if created == nil {
		return nil, errors.New("created_at is empty")
	}
	lead.CreatedAt = *created

	if lead.LastContactAt, err = parseTime(get("last_contact_at")); err != nil {
		return nil, fmt.Errorf("last_contact_at: %w", err)
	}
	if lead.NextFollowUpAt, err = parseTime(get("next_follow_up_at")); err != nil {
		return nil, fmt.Errorf("next_follow_up_at: %w", err)
	}

	if lead.Score, err = parseFloat(get("score")); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	if lead.EstimatedValue, err = parseFloat(get("estimated_value")); err != nil {
		return nil, fmt.Errorf("estimated_value: %w", err)
	}

	return lead, nil
}

// parseTime returns nil for an empty cell.
func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", v)
}

func parseFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
}
