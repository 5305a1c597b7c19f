package auth

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date is a calendar date written as "2006-01-02" on the wire. Full RFC 3339
// timestamps are also accepted and reduced to their UTC date.
type Date struct {
	time.Time
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	return Date{Time: dateOnly(t)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(time.DateOnly))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		*d = Date{Time: t}
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	*d = DateOf(t)
	return nil
}
