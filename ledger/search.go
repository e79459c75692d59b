package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SEARCH - Public lookup for families and contributors
// =============================================================================

// Search returns every case matching query, most recent first:
//   - case-insensitive substring of the detainee name or report number
//   - exact phone number, after normalizing both sides
//   - exact case id, ignoring case
//
// A blank query matches nothing.
func (l *Ledger) Search(query string) []Case {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	needle := strings.ToLower(q)
	phone, isPhone := NormalizePhone(q)

	var out []Case
	for _, c := range l.List() {
		if matches(c, needle, phone, isPhone) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c Case, needle, phone string, isPhone bool) bool {
	if strings.EqualFold(string(c.ID), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(c.Detainee.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(c.ReportNumber), needle) {
		return true
	}
	if !isPhone || c.Detainee.Phone == "" {
		return false
	}
	stored, ok := NormalizePhone(c.Detainee.Phone)
	return ok && stored == phone
}

// =============================================================================
// STATS - Station dashboard
// =============================================================================

type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	Target   Money          `json:"target"`
	Raised   Money          `json:"raised"`
	// Progress is Raised / Target as a percentage, one decimal place.
	Progress decimal.Decimal `json:"progress"`
}

func (l *Ledger) Stats() Stats {
	st := Stats{ByStatus: make(map[Status]int)}
	for _, c := range l.List() {
		st.Total++
		st.ByStatus[c.Status]++
		st.Target += c.Target
		st.Raised += c.Raised
	}
	st.Progress = Case{Target: st.Target, Raised: st.Raised}.Progress()
	return st
}
