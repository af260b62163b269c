package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Period is a calendar month, formatted YYYY-MM.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod builds a period, normalising month overflow.
func NewPeriod(year int, month time.Month) Period {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: t.Year(), Month: t.Month()}
}

// PeriodOf returns the period containing the civil date of t.
func PeriodOf(t time.Time) Period {
	y, m, _ := t.Date()
	return Period{Year: y, Month: m}
}

// ParsePeriod parses a strict YYYY-MM value.
func ParsePeriod(raw string) (Period, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 7 || raw[4] != '-' {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	for i := 0; i < len(raw); i++ {
		if i != 4 && (raw[i] < '0' || raw[i] > '9') {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
	}
	year, err := strconv.Atoi(raw[:4])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	month, err := strconv.Atoi(raw[5:])
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Start returns the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Day returns the given day of the period, clamped to the month length.
func (p Period) Day(day int) time.Time {
	last := p.End().Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts the period by n months.
func (p Period) AddMonths(n int) Period {
	return NewPeriod(p.Year, p.Month+time.Month(n))
}

// Next returns the following month.
func (p Period) Next() Period { return p.AddMonths(1) }

// Prev returns the preceding month.
func (p Period) Prev() Period { return p.AddMonths(-1) }

// Contains reports whether the civil date of t falls in the period.
func (p Period) Contains(t time.Time) bool {
	return PeriodOf(t) == p
}

// Before reports whether p is strictly earlier than q.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// YearPeriods returns January to December of the year.
func YearPeriods(year int) []Period {
	periods := make([]Period, 0, 12)
	for m := time.January; m <= time.December; m++ {
		periods = append(periods, Period{Year: year, Month: m})
	}
	return periods
}

// PeriodRange returns count consecutive periods starting at from.
func PeriodRange(from Period, count int) []Period {
	if count <= 0 {
		return nil
	}
	periods := make([]Period, 0, count)
	for i := 0; i < count; i++ {
		periods = append(periods, from.AddMonths(i))
	}
	return periods
}

// Day truncates t to its civil date, expressed at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole civil days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and keeps the civil date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Day(t), nil
}

// FormatDate renders the civil date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
