// Package dates resolves spoken date and time phrases.
//
// Dates are built from local year/month/day fields, never by formatting a
// UTC instant, so date-only values do not shift a day west of UTC.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Resolver maps relative date phrases to calendar dates against an
// injected clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a resolver reading the clock from now. A nil now
// uses time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Now returns the resolver's current time.
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Today returns local midnight of the current day.
func (r *Resolver) Today() time.Time {
	return midnight(r.now())
}

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// ResolveDate returns the YYYY-MM-DD date text refers to:
//   - "tomorrow" is today plus one day
//   - "next week" is today plus seven days
//   - a weekday name is the next such day strictly after today
//   - anything else is today
func (r *Resolver) ResolveDate(text string) string {
	return r.Resolve(text).Format(dateLayout)
}

// Resolve is ResolveDate returning local midnight of the resolved day.
func (r *Resolver) Resolve(text string) time.Time {
	today := r.Today()
	lower := strings.ToLower(text)

	if strings.Contains(lower, "tomorrow") {
		return today.AddDate(0, 0, 1)
	}
	if strings.Contains(lower, "next week") {
		return today.AddDate(0, 0, 7)
	}
	for i, day := range weekdays {
		if !strings.Contains(lower, day) {
			continue
		}
		offset := i - int(today.Weekday())
		if offset <= 0 {
			offset += 7
		}
		return today.AddDate(0, 0, offset)
	}
	return today
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var timePattern = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)

// ParseTime returns the first time in text as 24-hour HH:MM. A pm hour
// below 12 gains 12 hours and 12 am becomes 00. It reports false when text
// contains no digits to read as an hour.
func ParseTime(text string) (string, bool) {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hours < 12 {
			hours += 12
		}
	case "am":
		if hours == 12 {
			hours = 0
		}
	}
	return pad2(hours) + ":" + pad2(minutes), true
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
