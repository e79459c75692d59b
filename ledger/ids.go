package ledger

import (
	"strings"

	"github.com/google/uuid"
)

// Minted identifiers. Case ids are short enough to read out over the phone;
// Register retries if one ever collides.

func NewCaseID() CaseID {
	return CaseID("BC-" + shortToken(8))
}

func NewContributionID() ContributionID {
	return ContributionID("CX-" + shortToken(12))
}

// NewReference mints a settlement reference in the mobile-money style
// ("MP" followed by eight characters).
func NewReference() string {
	return "MP" + shortToken(8)
}

func shortToken(n int) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[:n]
}
