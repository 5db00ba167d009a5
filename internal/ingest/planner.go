package ingest

import (
	"regexp"
	"strings"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

var resultIDRe = regexp.MustCompile(`/result/(\d+)`)

// Plan computes which records of a batch are new inserts and the watermark
// value to persist with them. A record sorting at or below the batch's
// watermark is dropped. A record whose URL already exists in the store is
// skipped for insertion but still advances the watermark (merge-skip), so
// reruns over an already-loaded page cannot stall the watermark. Duplicate
// URLs within the batch itself keep only the first occurrence.
func Plan(batch domain.IngestionBatch, existingURLs map[string]struct{}) domain.InsertPlan {
	seen := make(map[string]struct{}, len(existingURLs))
	for u := range existingURLs {
		seen[u] = struct{}{}
	}

	var plan domain.InsertPlan
	advance := func(key *string) {
		if key == nil {
			return
		}
		if plan.NextWatermark == nil || CompareKeys(*key, *plan.NextWatermark) > 0 {
			plan.NextWatermark = key
		}
	}

	for _, rec := range batch.Records {
		key := lastSeenKey(rec)
		if !isNewer(key, batch.Since) {
			continue
		}

		if rec.URL != nil {
			if _, dup := seen[*rec.URL]; dup {
				advance(key)
				continue
			}
			seen[*rec.URL] = struct{}{}
		}

		plan.Inserts = append(plan.Inserts, rec)
		advance(key)
	}

	return plan
}

// lastSeenKey derives the ordering key for one record: an explicit last-seen
// value when present, else the numeric id from its result URL, else its
// parsed date in ISO form, else nil.
func lastSeenKey(rec domain.ApplicantRecord) *string {
	if rec.LastSeen != nil {
		return rec.LastSeen
	}
	if rec.URL != nil {
		if m := resultIDRe.FindStringSubmatch(*rec.URL); m != nil {
			return &m[1]
		}
	}
	if rec.DateAdded != nil {
		iso := rec.DateAdded.Format("2006-01-02")
		return &iso
	}
	return nil
}

// isNewer reports whether a record should be processed for the current
// watermark. Keyless records are conservatively treated as newer so unlabeled
// input is never silently dropped.
func isNewer(key, since *string) bool {
	if since == nil || key == nil {
		return true
	}
	return CompareKeys(*key, *since) > 0
}

// CompareKeys orders watermark values with numeric awareness: purely numeric
// strings compare as integers, everything else compares lexicographically,
// and numeric values always sort below non-numeric ones.
func CompareKeys(a, b string) int {
	aNum, bNum := isDigits(a), isDigits(b)
	switch {
	case aNum && bNum:
		return compareDigits(a, b)
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// compareDigits compares digit strings as integers of arbitrary size:
// strip leading zeros, then shorter means smaller, then lexicographic.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
