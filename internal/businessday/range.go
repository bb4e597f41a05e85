package businessday

// Range is an inclusive span of business days.
type Range struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

func NewRange(from, to string) (Range, error) {
	f, err := ParseDate(from)
	if err != nil {
		return Range{}, err
	}
	t, err := ParseDate(to)
	if err != nil {
		return Range{}, err
	}
	rng := Range{From: f, To: t}
	return rng, rng.Validate()
}

func SingleDay(d Date) Range {
	return Range{From: d, To: d}
}

func (r Range) Validate() error {
	if _, err := ParseDate(string(r.From)); err != nil {
		return err
	}
	if _, err := ParseDate(string(r.To)); err != nil {
		return err
	}
	if r.From.After(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// Len is the number of days in the range.
func (r Range) Len() int {
	return int(r.To.Time().Sub(r.From.Time()).Hours()/24) + 1
}

func (r Range) Days() []Date {
	n := r.Len()
	if n <= 0 {
		return nil
	}
	out := make([]Date, 0, n)
	for d := r.From; !d.After(r.To); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func (r Range) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

func (r Range) Overlaps(other Range) bool {
	return !r.To.Before(other.From) && !other.To.Before(r.From)
}

// Previous is the range of equal length ending the day before r.From.
func (r Range) Previous() Range {
	n := r.Len()
	return Range{From: r.From.AddDays(-n), To: r.From.AddDays(-1)}
}
