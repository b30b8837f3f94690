package schedule

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSlot = errors.New("slot is outside the bookable window")

// Window describes the clinic's bookable hours. OpenHour..CloseHour is a
// half-open range: a CloseHour of 21 means the last slot starts before 21:00.
type Window struct {
	Days      int
	OpenHour  int
	CloseHour int
	Interval  time.Duration
	Location  *time.Location
}

func DefaultWindow() Window {
	return Window{
		Days:      7,
		OpenHour:  10,
		CloseHour: 21,
		Interval:  30 * time.Minute,
		Location:  time.Local,
	}
}

// GenerateSlots materializes the open slots for the next w.Days days,
// one DaySlots entry per day starting today. Pure given (doctor, now):
// recomputed from scratch on every call, never cached, since the booked set
// can change between queries.
//
// Today's window starts at the next whole hour (never earlier than OpenHour)
// so slots at or before "now" are never offered; if that start already
// reaches CloseHour the day comes back empty.
func GenerateSlots(doctor *Doctor, now time.Time, w Window) []DaySlots {
	now = now.In(w.Location)

	days := make([]DaySlots, 0, w.Days)
	for i := 0; i < w.Days; i++ {
		day := now.AddDate(0, 0, i)

		startHour := w.OpenHour
		if i == 0 && now.Hour()+1 > startHour {
			startHour = now.Hour() + 1
		}

		cursor := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, w.Location)
		end := time.Date(day.Year(), day.Month(), day.Day(), w.CloseHour, 0, 0, 0, w.Location)

		entry := DaySlots{Date: NewDateKey(day)}
		for cursor.Before(end) {
			date := NewDateKey(cursor)
			label := NewTimeLabel(cursor)
			if !doctor.BookedSlots.Has(date, label) {
				entry.Slots = append(entry.Slots, Slot{Date: date, Time: label, Start: cursor})
			}
			cursor = cursor.Add(w.Interval)
		}

		days = append(days, entry)
	}

	return days
}

// SlotTime validates a candidate (dateKey, timeLabel) against the window and
// returns its start instant. A candidate is valid when the key and label
// parse, the day falls inside the rolling window, the time sits on an
// interval boundary inside open hours, and the instant is strictly after now.
func (w Window) SlotTime(date DateKey, label TimeLabel, now time.Time) (time.Time, error) {
	day, err := ParseDateKey(date, w.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	hour, minute, err := ParseTimeLabel(label)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, w.Location)

	if hour < w.OpenHour || hour >= w.CloseHour {
		return time.Time{}, fmt.Errorf("%w: %s is outside open hours", ErrInvalidSlot, label)
	}
	if w.Interval > 0 && time.Duration(minute)*time.Minute%w.Interval != 0 {
		return time.Time{}, fmt.Errorf("%w: %s is not on a %s boundary", ErrInvalidSlot, label, w.Interval)
	}

	now = now.In(w.Location)
	if !start.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s %s is in the past", ErrInvalidSlot, date, label)
	}

	lastDay := now.AddDate(0, 0, w.Days-1)
	endOfWindow := time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), w.CloseHour, 0, 0, 0, w.Location)
	if !start.Before(endOfWindow) {
		return time.Time{}, fmt.Errorf("%w: %s %s is beyond the %d-day window", ErrInvalidSlot, date, label, w.Days)
	}

	return start, nil
}
