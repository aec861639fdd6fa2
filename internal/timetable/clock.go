// Package timetable turns stored program slots into dated programs and tracks
// which program is on air.
package timetable

import (
	"fmt"
	"time"

	"github.com/voyagen/arematv/internal/models"
)

// ClockLayout is the stored time-of-day format of program start and end.
const ClockLayout = "15:04:05"

// ParseClock validates an "HH:MM:SS" clock string.
func ParseClock(s string) (hour, minute, second int, err error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("clock %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}

// FormatClock renders t as a clock string in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(ClockLayout)
}

// Materialize places clock on the calendar date of day (in loc). An end time
// of 00:00:00 means midnight at the end of that day.
func Materialize(clock string, day time.Time, loc *time.Location, isEnd bool) (time.Time, error) {
	h, m, s, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.In(loc).Date()
	t := time.Date(y, mo, d, h, m, s, 0, loc)
	if isEnd && h == 0 && m == 0 && s == 0 {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// MaterializeSlot converts a stored slot to a program dated on day. A slot
// whose end clock is not after its start wraps past midnight.
func MaterializeSlot(slot models.ProgramSlot, day time.Time, loc *time.Location) (models.Program, error) {
	start, err := Materialize(slot.StartAt, day, loc, false)
	if err != nil {
		return models.Program{}, fmt.Errorf("program %s start: %w", slot.ID, err)
	}
	end, err := Materialize(slot.EndAt, day, loc, true)
	if err != nil {
		return models.Program{}, fmt.Errorf("program %s end: %w", slot.ID, err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return models.Program{
		ID:           slot.ID,
		Title:        slot.Title,
		Description:  slot.Description,
		StartAt:      start,
		EndAt:        end,
		ThumbnailURL: slot.ThumbnailURL,
		ChannelID:    slot.ChannelID,
		EpisodeID:    slot.EpisodeID,
	}, nil
}

// MaterializeAll converts every slot, dating them on day.
func MaterializeAll(slots []models.ProgramSlot, day time.Time, loc *time.Location) ([]models.Program, error) {
	out := make([]models.Program, 0, len(slots))
	for _, s := range slots {
		p, err := MaterializeSlot(s, day, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SlotFromProgram converts a dated program back to its stored form.
func SlotFromProgram(p models.Program, loc *time.Location) models.ProgramSlot {
	return models.ProgramSlot{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		StartAt:      FormatClock(p.StartAt, loc),
		EndAt:        FormatClock(p.EndAt, loc),
		ThumbnailURL: p.ThumbnailURL,
		ChannelID:    p.ChannelID,
		EpisodeID:    p.EpisodeID,
	}
}
