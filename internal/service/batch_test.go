package service

import (
	"testing"
	"time"

	"github.com/umccr/holmes-report/internal/models"
)

func TestSelectBatch(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	mar1 := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	mar5 := time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC)
	mar5early := time.Date(2024, 3, 5, 0, 10, 0, 0, time.UTC)

	fps := []models.Fingerprint{
		{URL: "s3://b/SBJ00001/L2100001.bam", LastModified: mar1},
		{URL: "s3://b/SBJ00002/L2100002.bam", LastModified: mar5},
		{URL: "s3://b/SBJ00003/L2100003.bam", LastModified: mar5early},
		{URL: "s3://b/PTC_Tsqn.bam", LastModified: mar5},
		{URL: "s3://b/NTC_Tsqn.bam", LastModified: mar5},
		{URL: "  ", LastModified: mar5},
	}

	sydney, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name        string
		days        int
		loc         *time.Location
		wantDay     string
		wantURLs    []string
		wantSkipped int
	}{
		{
			name:        "latest fingerprint day",
			loc:         time.UTC,
			wantDay:     "2024-03-05",
			wantURLs:    []string{"s3://b/SBJ00002/L2100002.bam", "s3://b/SBJ00003/L2100003.bam"},
			wantSkipped: 2,
		},
		{
			name:     "days back",
			days:     9,
			loc:      time.UTC,
			wantDay:  "2024-03-01",
			wantURLs: []string{"s3://b/SBJ00001/L2100001.bam"},
		},
		{
			name:    "days back with nothing that day",
			days:    1,
			loc:     time.UTC,
			wantDay: "2024-03-09",
		},
		{
			// 23:30 UTC on the 5th is the 6th in Sydney, 00:10 UTC is still the 5th
			name:        "timezone moves the day boundary",
			loc:         sydney,
			wantDay:     "2024-03-06",
			wantURLs:    []string{"s3://b/SBJ00002/L2100002.bam"},
			wantSkipped: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBatch(fps, tt.days, now, tt.loc, nil)

			if day := got.Day.In(tt.loc).Format(time.DateOnly); day != tt.wantDay {
				t.Errorf("Day = %s, want %s", day, tt.wantDay)
			}
			if len(got.URLs) != len(tt.wantURLs) {
				t.Fatalf("URLs = %v, want %v", got.URLs, tt.wantURLs)
			}
			for i := range got.URLs {
				if got.URLs[i] != tt.wantURLs[i] {
					t.Errorf("URLs[%d] = %s, want %s", i, got.URLs[i], tt.wantURLs[i])
				}
			}
			if len(got.Skipped) != tt.wantSkipped {
				t.Errorf("Skipped = %v, want %d entries", got.Skipped, tt.wantSkipped)
			}
		})
	}
}

func TestSelectBatchEmpty(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	got := SelectBatch(nil, 0, now, nil, nil)
	if !got.Day.Equal(now) {
		t.Errorf("Day = %v, want %v", got.Day, now)
	}
	if len(got.URLs) != 0 {
		t.Errorf("URLs = %v, want none", got.URLs)
	}
}
