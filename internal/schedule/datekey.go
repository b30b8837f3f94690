package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateKey identifies a calendar day as "day_month_year" with no leading
// zeros, e.g. "3_9_2026". It is the map key for a doctor's booked slots and
// must be produced only through NewDateKey or ParseDateKey so producers and
// consumers can never drift on format.
type DateKey string

// TimeLabel identifies a slot within a day as "HH:MM AM/PM", e.g. "10:00 AM".
// Equality on the label is slot identity.
type TimeLabel string

const timeLabelLayout = "03:04 PM"

var (
	ErrBadDateKey   = errors.New("malformed date key")
	ErrBadTimeLabel = errors.New("malformed time label")
)

func NewDateKey(t time.Time) DateKey {
	return DateKey(fmt.Sprintf("%d_%d_%d", t.Day(), int(t.Month()), t.Year()))
}

// ParseDateKey validates a key and returns midnight of that day in loc.
func ParseDateKey(key DateKey, loc *time.Location) (time.Time, error) {
	parts := strings.Split(string(key), "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateKey, key)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || strconv.Itoa(n) != p {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateKey, key)
		}
		nums[i] = n
	}

	day, month, year := nums[0], nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateKey, key)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject that here
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateKey, key)
	}
	return t, nil
}

func NewTimeLabel(t time.Time) TimeLabel {
	return TimeLabel(t.Format(timeLabelLayout))
}

// ParseTimeLabel returns the hour and minute encoded in a label.
func ParseTimeLabel(label TimeLabel) (hour, minute int, err error) {
	t, err := time.Parse(timeLabelLayout, string(label))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTimeLabel, label)
	}
	return t.Hour(), t.Minute(), nil
}

// SlotKey is a (day, time-of-day) pair for one doctor's calendar.
type SlotKey struct {
	Date DateKey
	Time TimeLabel
}

// TimeSet is the set of booked time labels within one day.
type TimeSet map[TimeLabel]struct{}

// BookedSlots maps each day to the labels already reserved on it.
type BookedSlots map[DateKey]TimeSet

func (b BookedSlots) Has(date DateKey, label TimeLabel) bool {
	_, ok := b[date][label]
	return ok
}

func (b BookedSlots) Add(date DateKey, label TimeLabel) {
	set, ok := b[date]
	if !ok {
		set = make(TimeSet)
		b[date] = set
	}
	set[label] = struct{}{}
}

func (b BookedSlots) Remove(date DateKey, label TimeLabel) {
	set, ok := b[date]
	if !ok {
		return
	}
	delete(set, label)
	if len(set) == 0 {
		delete(b, date)
	}
}

// Keys lists every booked (date, time) pair.
func (b BookedSlots) Keys() []SlotKey {
	var keys []SlotKey
	for date, set := range b {
		for label := range set {
			keys = append(keys, SlotKey{Date: date, Time: label})
		}
	}
	return keys
}
