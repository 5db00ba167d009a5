// Package clean converts raw scraped rows into typed applicant records.
// Every helper is total: malformed input nulls the field, it never errors.
package clean

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

// unavailable holds the lowercase sentinels that count as a missing value.
var unavailable = map[string]struct{}{
	"":     {},
	"n/a":  {},
	"na":   {},
	"none": {},
	"null": {},
	"nan":  {},
}

var numberRe = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// dateFormats are tried in order: long month name, abbreviated month name, ISO.
var dateFormats = []string{"January 2, 2006", "Jan 2, 2006", "2006-01-02"}

// mastersAbbrevs are short degree labels that classify as a masters program.
var mastersAbbrevs = map[string]struct{}{
	"ms":  {},
	"ma":  {},
	"msc": {},
	"mba": {},
}

// IsMissing reports whether a value is empty or an unavailable sentinel,
// compared case-insensitively after trimming.
func IsMissing(value string) bool {
	_, ok := unavailable[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Text normalizes a raw string field: NUL bytes are stripped and empty
// strings become nil.
func Text(value string) *string {
	cleaned := strings.ReplaceAll(value, "\x00", "")
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// Num extracts the first signed-or-unsigned decimal number found in the
// string ("GPA 3.85" -> 3.85). Returns nil when no number is present.
func Num(value string) *float64 {
	match := numberRe.FindString(value)
	if match == "" {
		return nil
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Date parses a date string against the known listing formats. Returns nil
// when every format fails.
func Date(value string) *time.Time {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return &t
		}
	}
	return nil
}

// Degree classifies a free-text degree label: PhD/doctorate -> 2.0, masters
// (by substring or known abbreviation) -> 1.0, anything else -> nil.
func Degree(value string) *float64 {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return nil
	}
	if strings.Contains(normalized, "phd") || strings.Contains(normalized, "doctor") {
		level := domain.DegreePhD
		return &level
	}
	if strings.Contains(normalized, "master") {
		level := domain.DegreeMasters
		return &level
	}
	if _, ok := mastersAbbrevs[normalized]; ok {
		level := domain.DegreeMasters
		return &level
	}
	return nil
}

// Normalize converts one raw row into an ApplicantRecord. The second return
// value is false when the row must be excluded because its program or
// university is missing.
func Normalize(raw domain.RawRecord) (domain.ApplicantRecord, bool) {
	program, ok := buildProgram(raw)
	if !ok {
		return domain.ApplicantRecord{}, false
	}

	rec := domain.ApplicantRecord{
		Program:       program,
		DegreeLevel:   Degree(raw.MastersOrPhD),
		Comments:      Text(raw.Comments),
		DateAdded:     Date(raw.DateAdded),
		URL:           Text(raw.URL),
		Status:        Text(raw.ApplicantStatus),
		DecisionDate:  Text(raw.DecisionDate),
		Term:          Text(raw.SemesterStart),
		Citizenship:   Text(raw.Citizenship),
		GPA:           Num(raw.GPA),
		GRE:           Num(raw.GRE),
		GREVerbal:     Num(raw.GREVerbal),
		GREWriting:    Num(raw.GREWriting),
		LLMProgram:    Text(raw.LLMProgram),
		LLMUniversity: Text(raw.LLMUniversity),
	}

	// Explicit ordering keys from queue payloads take precedence over any
	// key the planner would derive from the URL or date.
	if raw.LastSeen != "" {
		rec.LastSeen = Text(raw.LastSeen)
	} else if raw.LastProcessedAt != "" {
		rec.LastSeen = Text(raw.LastProcessedAt)
	}

	return rec, true
}

// NormalizeAll normalizes a batch, dropping excluded rows.
func NormalizeAll(raws []domain.RawRecord) []domain.ApplicantRecord {
	records := make([]domain.ApplicantRecord, 0, len(raws))
	for _, raw := range raws {
		if rec, ok := Normalize(raw); ok {
			records = append(records, rec)
		}
	}
	return records
}

// buildProgram combines program name and university into the display program
// field ("{program}, {university}"). Rows already carrying a combined program
// (LLM-enriched file rows) pass through unchanged.
func buildProgram(raw domain.RawRecord) (string, bool) {
	name := strings.TrimSpace(raw.ProgramName)
	university := strings.TrimSpace(raw.University)

	if !IsMissing(name) && !IsMissing(university) {
		combined := strings.TrimSpace(strings.Trim(name+", "+university, ", "))
		return combined, true
	}

	if raw.ProgramName == "" && raw.University == "" && !IsMissing(raw.Program) {
		return strings.TrimSpace(raw.Program), true
	}

	return "", false
}
