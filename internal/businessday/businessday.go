// Package businessday maps instants onto reporting business days.
//
// A business day D starts at the boundary hour on calendar day D and ends
// right before the boundary hour on D+1, both in the configured zone.
package businessday

import (
	"errors"
	"fmt"
	"time"
)

const Layout = "2006-01-02"

var (
	ErrInvalidDate     = errors.New("invalid_date")
	ErrInvalidRange    = errors.New("invalid_date_range")
	ErrInvalidBoundary = errors.New("invalid_boundary_hour")
)

// Date is a business day formatted as YYYY-MM-DD.
type Date string

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(Layout, raw)
	if err != nil {
		return "", ErrInvalidDate
	}
	return Date(t.Format(Layout)), nil
}

func (d Date) String() string { return string(d) }

// Time returns midnight UTC of the calendar date.
func (d Date) Time() time.Time {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) AddDays(n int) Date {
	return Date(d.Time().AddDate(0, 0, n).Format(Layout))
}

func (d Date) Before(other Date) bool { return d < other }

func (d Date) After(other Date) bool { return d > other }

type Config struct {
	BoundaryHour int
	Location     *time.Location
}

// Resolver is stateless after construction and safe for concurrent use.
type Resolver struct {
	boundary int
	loc      *time.Location
}

func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.BoundaryHour < 0 || cfg.BoundaryHour > 23 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBoundary, cfg.BoundaryHour)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{boundary: cfg.BoundaryHour, loc: loc}, nil
}

func (r *Resolver) BoundaryHour() int { return r.boundary }

func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve returns the business day ts belongs to.
func (r *Resolver) Resolve(ts time.Time) Date {
	local := ts.In(r.loc)
	y, m, d := local.Date()
	if local.Hour() < r.boundary {
		d--
	}
	return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(Layout))
}

// Today is Resolve(now), named for readability at call sites.
func (r *Resolver) Today(now time.Time) Date {
	return r.Resolve(now)
}

// Window is the half-open interval of instants that resolve to a day.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

func (r *Resolver) Window(d Date) Window {
	y, m, day := d.Time().Date()
	return Window{
		Start: time.Date(y, m, day, r.boundary, 0, 0, 0, r.loc),
		End:   time.Date(y, m, day+1, r.boundary, 0, 0, 0, r.loc),
	}
}

// RangeWindow spans from the start of r.From to the end of r.To.
func (r *Resolver) RangeWindow(rng Range) Window {
	return Window{
		Start: r.Window(rng.From).Start,
		End:   r.Window(rng.To).End,
	}
}
