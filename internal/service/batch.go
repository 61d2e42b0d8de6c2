package service

import (
	"log/slog"
	"strings"
	"time"

	"github.com/umccr/holmes-report/internal/models"
)

// Batch is the set of fingerprints produced on one day.
type Batch struct {
	Day     time.Time
	URLs    []string
	Skipped []string // control samples left out of the checks
}

// controlMarkers identify positive and negative control samples.
var controlMarkers = []string{"PTC_", "NTC_"}

// SelectBatch picks the fingerprints that finished on the batch day. With
// days > 0 the batch day is that many days before now, otherwise it is the
// day of the most recent fingerprint. Days are compared in loc.
func SelectBatch(fps []models.Fingerprint, days int, now time.Time, loc *time.Location, logger *slog.Logger) Batch {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	var batch Batch
	switch {
	case days > 0:
		batch.Day = now.AddDate(0, 0, -days)
		logger.Info("processing a day in the past as the batch", "days", days, "day", batch.Day.In(loc).Format(time.DateOnly))
	case len(fps) == 0:
		batch.Day = now
	default:
		for _, fp := range fps {
			if fp.LastModified.After(batch.Day) {
				batch.Day = fp.LastModified
			}
		}
		logger.Info("processing the day of the latest fingerprint as the batch", "day", batch.Day.In(loc).Format(time.DateOnly))
	}

	for _, fp := range fps {
		if !sameDay(fp.LastModified, batch.Day, loc) {
			continue
		}
		if strings.TrimSpace(fp.URL) == "" {
			continue
		}
		if isControl(fp.URL) {
			logger.Info("skipping control sample", "url", fp.URL)
			batch.Skipped = append(batch.Skipped, fp.URL)
			continue
		}
		batch.URLs = append(batch.URLs, fp.URL)
	}
	return batch
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func isControl(url string) bool {
	for _, m := range controlMarkers {
		if strings.Contains(url, m) {
			return true
		}
	}
	return false
}
