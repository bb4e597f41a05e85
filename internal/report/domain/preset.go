package domain

import (
	"strings"
	"time"

	"github.com/smallbiznis/staybook/internal/businessday"
)

type PresetKind string

const (
	PresetDaily   PresetKind = "daily"
	PresetWeekly  PresetKind = "weekly"
	PresetMonthly PresetKind = "monthly"
	PresetCustom  PresetKind = "custom"
)

func ParsePresetKind(raw string) (PresetKind, error) {
	switch kind := PresetKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case PresetDaily, PresetWeekly, PresetMonthly, PresetCustom:
		return kind, nil
	case "":
		return PresetDaily, nil
	default:
		return "", ErrInvalidPreset
	}
}

// PresetRange expands a named period around anchor. Weeks run Monday to
// Sunday. Custom ranges carry their own bounds and are rejected here.
func PresetRange(kind PresetKind, anchor businessday.Date) (businessday.Range, error) {
	if _, err := businessday.ParseDate(string(anchor)); err != nil {
		return businessday.Range{}, err
	}
	switch kind {
	case PresetDaily:
		return businessday.SingleDay(anchor), nil
	case PresetWeekly:
		offset := (int(anchor.Time().Weekday()) + 6) % 7
		from := anchor.AddDays(-offset)
		return businessday.Range{From: from, To: from.AddDays(6)}, nil
	case PresetMonthly:
		t := anchor.Time()
		first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		return businessday.Range{
			From: businessday.Date(first.Format(businessday.Layout)),
			To:   businessday.Date(last.Format(businessday.Layout)),
		}, nil
	case PresetCustom:
		return businessday.Range{}, ErrCustomRangeRequired
	default:
		return businessday.Range{}, ErrInvalidPreset
	}
}
