package report

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/umccr/holmes-report/internal/grouping"
	"github.com/umccr/holmes-report/internal/models"
)

// Header describes which batch a report is about.
func Header(bucket string, batchDay time.Time) string {
	return fmt.Sprintf("For sequencing runs that finished fingerprinting in `%s` on %s", bucket, LongDate(batchDay))
}

// NoFingerprints is the whole report for a batch with nothing to check.
func NoFingerprints(header string) string {
	return header + "\nWe found no new fingerprints and so no checks were run"
}

// Summary is the first message of a report that ran checks.
func Summary(header string, checked int, relatedness float64) string {
	return fmt.Sprintf("%s we found %d new fingerprints\nWe looked for samples with relatedness threshold > %s",
		header, checked, formatFloat(relatedness))
}

// Unrelated lists the subjects that matched nothing but themselves.
func Unrelated(subjectIDs []string) string {
	items := make([]string, len(subjectIDs))
	for i, s := range subjectIDs {
		items[i] = "`" + s + "`"
	}
	slices.Sort(items)
	return "*New Unrelated Samples (by Subject Id)*\n" + strings.Join(items, ", ") + "\n"
}

// Expected lists the subjects whose fingerprints grouped only with each other.
func Expected(matches []models.ExpectedMatch) string {
	items := make([]string, len(matches))
	for i, m := range matches {
		items[i] = fmt.Sprintf("`%s` x%d", m.SubjectID, m.Count)
	}
	slices.Sort(items)
	return "*New Related Samples with Grouping as Expected (by Subject Id and Match Count)*\n" + strings.Join(items, ", ") + "\n"
}

// Group renders one reportable group, numbered from 1.
func Group(number int, g models.MatchGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Match Group %d*\n", number)

	related := make(stats.Float64Data, 0, g.Len())
	for key, m := range g.All() {
		fmt.Fprintf(&b, "`%s` subj=%s lib=%s r=%s n=%d shared hets=%d shared hom alts=%d base=%s\n",
			key, orDash(m.Subject), orDash(m.Library), formatFloat(m.Relatedness), m.N, m.SharedHets, m.SharedHomAlts, m.Base)
		related = append(related, m.Relatedness)
	}

	lowest, errMin := related.Min()
	mean, errMean := related.Mean()
	if errMin == nil && errMean == nil {
		fmt.Fprintf(&b, "_%d fingerprints from %d subjects, relatedness min %s mean %s_\n",
			g.Len(), g.SubjectCount(), formatFloat(round(lowest)), formatFloat(round(mean)))
	}
	return b.String()
}

// Messages renders a full report in posting order.
func Messages(header string, checked int, relatedness float64, out grouping.Outcome) []string {
	msgs := []string{
		Summary(header, checked, relatedness),
		Unrelated(out.UnmatchedSubjectIDs),
		Expected(out.ExpectedMatches),
	}
	for i, g := range out.ReportableGroups {
		msgs = append(msgs, Group(i+1, g))
	}
	return msgs
}

// LongDate formats a day like "Friday, March 1st, 2024".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%s, %s %d%s, %d", t.Weekday(), t.Month(), t.Day(), ordinal(t.Day()), t.Year())
}

func ordinal(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64) float64 {
	r, err := stats.Round(v, 3)
	if err != nil {
		return v
	}
	return r
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
