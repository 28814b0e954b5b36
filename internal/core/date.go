package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateFormat is the ISO-8601 day format used on the wire and in the database.
const DateFormat = "2006-01-02"

// Date is a calendar day. The embedded time is always midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day. Out of range values are
// normalized the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today returns the current day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateFormat)
}

// AddDays returns the day n days after d.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year(), d.Month(), d.Day()+n)
}

// AddMonths moves d by n calendar months and lands on anchorDay, clamped to
// the last day of the target month. anchorDay <= 0 keeps d's own day.
func (d Date) AddMonths(n, anchorDay int) Date {
	if anchorDay <= 0 {
		anchorDay = d.Day()
	}
	// day 1 keeps time.Date from overflowing into the following month
	first := NewDate(d.Year(), d.Month()+time.Month(n), 1)
	last := DaysIn(first.Year(), first.Month())
	if anchorDay > last {
		anchorDay = last
	}
	return NewDate(first.Year(), first.Month(), anchorDay)
}

// DaysIn returns the number of days of the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OnOrBefore reports whether d is the same day as o or earlier.
func (d Date) OnOrBefore(o Date) bool {
	return !d.Time.After(o.Time)
}

// OnOrAfter reports whether d is the same day as o or later.
func (d Date) OnOrAfter(o Date) bool {
	return !d.Time.Before(o.Time)
}

// Within reports whether d lies in the closed interval [from, to].
func (d Date) Within(from, to Date) bool {
	return d.OnOrAfter(from) && d.OnOrBefore(to)
}

// Ptr returns a pointer to a copy of d.
func (d Date) Ptr() *Date {
	return &d
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer; dates are persisted as ISO strings.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner for TEXT (sqlite) and DATE (mysql) columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateFormat) {
		s = s[:len(DateFormat)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
