// Package timefmt turns raw calendar time markers into the display strings
// used on the dashboard. All output uses zero-padded "Jan 02" date tokens
// and 24-hour "15:04" time tokens.
package timefmt

import (
	"errors"
	"fmt"
	"time"

	"tinker/internal/model"
)

// ErrBadTimestamp wraps any marker whose value cannot be parsed. The caller
// is expected to drop the offending item and continue.
var ErrBadTimestamp = errors.New("timefmt: unparseable timestamp")

const (
	dateLayout = "2006-01-02"
	dayToken   = "Jan 02"
	timeToken  = "15:04"
)

// FormatRange renders a start/end marker pair into a display time string.
//
// Rules:
//   - both date-only: the upstream end date is exclusive, so one day is
//     subtracted first. A collapsed range renders as "Jan 02"; otherwise
//     "Jan 02 - Jan 03".
//   - both date-time: same calendar date renders as "Jan 02 15:04 - 16:30";
//     otherwise both endpoints carry their date token.
//   - any other combination carries no time information and renders as "".
//
// Each timestamp stays in the offset embedded in its own value; no zone
// conversion happens here.
func FormatRange(start, end model.Marker) (string, error) {
	switch {
	case start.Date != "" && end.Date != "":
		return formatAllDay(start.Date, end.Date)
	case start.DateTime != "" && end.DateTime != "":
		return formatTimed(start.DateTime, end.DateTime)
	default:
		return "", nil
	}
}

func formatAllDay(startVal, endVal string) (string, error) {
	startT, err := time.Parse(dateLayout, startVal)
	if err != nil {
		return "", fmt.Errorf("%w: start date %q: %v", ErrBadTimestamp, startVal, err)
	}
	endT, err := time.Parse(dateLayout, endVal)
	if err != nil {
		return "", fmt.Errorf("%w: end date %q: %v", ErrBadTimestamp, endVal, err)
	}

	// All-day ends are exclusive upstream.
	endT = endT.AddDate(0, 0, -1)

	if sameDate(startT, endT) {
		return endT.Format(dayToken), nil
	}
	return startT.Format(dayToken) + " - " + endT.Format(dayToken), nil
}

func formatTimed(startVal, endVal string) (string, error) {
	startT, err := parseDateTime(startVal)
	if err != nil {
		return "", fmt.Errorf("%w: start %q: %v", ErrBadTimestamp, startVal, err)
	}
	endT, err := parseDateTime(endVal)
	if err != nil {
		return "", fmt.Errorf("%w: end %q: %v", ErrBadTimestamp, endVal, err)
	}

	if sameDate(startT, endT) {
		return startT.Format(dayToken+" "+timeToken) + " - " + endT.Format(timeToken), nil
	}
	return startT.Format(dayToken+" "+timeToken) + " - " + endT.Format(dayToken+" "+timeToken), nil
}

// FormatDue renders a task due instant ("2006-01-02T15:04:05.000Z") as a
// date token.
func FormatDue(due string) (string, time.Time, error) {
	t, err := parseDateTime(due)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: due %q: %v", ErrBadTimestamp, due, err)
	}
	return t.Format(dayToken), t, nil
}

func parseDateTime(v string) (time.Time, error) {
	// RFC3339 covers both Google shapes, with and without fractional seconds.
	return time.Parse(time.RFC3339, v)
}

// sameDate compares calendar dates in each value's own location.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
