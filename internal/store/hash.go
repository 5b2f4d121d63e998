package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// contentHashLen is the truncated length of the dedup hash (32 hex chars).
const contentHashLen = 32

// ComputeContentHash derives the dedup key from a canonicalized projection
// of a vacancy: title, employer name, salary bounds, currency (uppercased,
// default RUR), experience, schedule, employment, sorted lowercased
// skills, first 500 characters of description, area — all lowercased and
// whitespace-trimmed, pipe-joined, then SHA-256 truncated to 32 hex chars.
func ComputeContentHash(v VacancyPayload) string {
	currency := strings.ToUpper(strings.TrimSpace(v.Currency))
	if currency == "" {
		currency = "RUR"
	}

	skills := make([]string, len(v.KeySkills))
	for i, sk := range v.KeySkills {
		skills[i] = strings.ToLower(strings.TrimSpace(sk))
	}
	sort.Strings(skills)

	desc := v.Description
	if r := []rune(desc); len(r) > 500 {
		desc = string(r[:500])
	}

	fields := []string{
		norm(v.Title),
		norm(v.CompanyName),
		formatIntPtr(v.SalaryFrom),
		formatIntPtr(v.SalaryTo),
		currency,
		norm(v.Experience),
		norm(v.Schedule),
		norm(v.Employment),
		strings.Join(skills, ","),
		norm(desc),
		norm(v.Area),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])[:contentHashLen]
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatIntPtr(p *int64) string {
	if p == nil {
		return "0"
	}
	return strconv.FormatInt(*p, 10)
}
