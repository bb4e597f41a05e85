package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/financial"
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseTransactionID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, bookingdomain.ErrInvalidID
	}
	return parsed, nil
}

// parseOptionalTime accepts RFC3339 only; callers that want a day pass a
// date instead.
func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, ErrInvalidRequest
	}
	return &parsed, nil
}

// parseOptionalRange reads an inclusive date range. A single bound selects
// that one day.
func parseOptionalRange(from, to string) (*businessday.Range, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	switch {
	case from == "" && to == "":
		return nil, nil
	case from == "":
		from = to
	case to == "":
		to = from
	}
	rng, err := businessday.NewRange(from, to)
	if err != nil {
		return nil, err
	}
	return &rng, nil
}

func parseOptionalPaymentMethod(value string) (financial.PaymentMethod, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return financial.ParsePaymentMethod(value)
}

func parseLimit(value string, def int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer")
	}
	return n, nil
}
