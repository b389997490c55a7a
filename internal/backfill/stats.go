package backfill

import "github.com/trogers1052/bwibbu-backfill/internal/models"

// ComputeDailyStats summarizes one date's fetch output per source.
// TotalCompanies counts the union of codes, so a code reported by both
// exchanges on the same date counts once.
func ComputeDailyStats(twse, tpex []models.Record) models.DailyStats {
	twseCodes := codeSet(twse)
	tpexCodes := codeSet(tpex)

	union := make(map[string]struct{}, len(twseCodes)+len(tpexCodes))
	for c := range twseCodes {
		union[c] = struct{}{}
	}
	for c := range tpexCodes {
		union[c] = struct{}{}
	}

	return models.DailyStats{
		TWSECount:      len(twse),
		TPExCount:      len(tpex),
		TWSECompanies:  len(twseCodes),
		TPExCompanies:  len(tpexCodes),
		TotalCount:     len(twse) + len(tpex),
		TotalCompanies: len(union),
	}
}

func codeSet(records []models.Record) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.Code] = struct{}{}
	}
	return set
}
