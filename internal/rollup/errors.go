package rollup

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/staybook/internal/businessday"
)

var (
	ErrIntegrity     = errors.New("rollup_integrity_violation")
	ErrInvalidChange = errors.New("invalid_rollup_change")
)

const (
	ReasonSummaryMissing = "summary_missing"
	ReasonNegativeTotal  = "negative_total"
)

// IntegrityError aborts the surrounding transaction: applying the change
// would leave summaries that cannot match the ledger.
type IntegrityError struct {
	Date   businessday.Date
	Agent  string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.Agent == "" {
		return fmt.Sprintf("%s: %s on %s", ErrIntegrity, e.Reason, e.Date)
	}
	return fmt.Sprintf("%s: %s on %s for agent %q", ErrIntegrity, e.Reason, e.Date, e.Agent)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func (e *IntegrityError) IntegrityViolation() bool { return true }
