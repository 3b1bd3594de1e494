package session

import (
	"fmt"

	dErrors "peoplefinder/pkg/domain-errors"
)

// ErrSearchInFlight rejects a trigger while another fetch is outstanding.
// The session keeps at most one fetch in flight; callers retry after settle.
var ErrSearchInFlight = dErrors.New(dErrors.CodeConflict, "search already in progress")

// CreditsExceededError carries the ledger snapshot alongside the refusal so
// the caller can show current usage.
type CreditsExceededError struct {
	Report CreditReport
}

func (e *CreditsExceededError) Error() string {
	return fmt.Sprintf("insufficient credits: %d available of %d", e.Report.AvailableCredits, e.Report.Limit)
}

func creditsExceeded(report CreditReport) error {
	return dErrors.Wrap(&CreditsExceededError{Report: report}, dErrors.CodeCreditsExceeded, "insufficient credits")
}
