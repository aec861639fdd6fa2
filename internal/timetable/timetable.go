package timetable

import (
	"sort"
	"time"

	"github.com/voyagen/arematv/internal/models"
)

// Status is where a program sits relative to the wall clock.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusArchived Status = "archived"
)

// StatusAt reports the status of p at now. A program is live on [StartAt, EndAt).
func StatusAt(p models.Program, now time.Time) Status {
	switch {
	case now.Before(p.StartAt):
		return StatusUpcoming
	case now.Before(p.EndAt):
		return StatusLive
	default:
		return StatusArchived
	}
}

// NextProgram returns the program on the same channel that starts exactly
// when current ends.
func NextProgram(programs []models.Program, current models.Program) (models.Program, bool) {
	for _, p := range programs {
		if p.ChannelID == current.ChannelID && p.ID != current.ID && p.StartAt.Equal(current.EndAt) {
			return p, true
		}
	}
	return models.Program{}, false
}

// At returns the program airing on channelID at t.
func At(programs []models.Program, channelID string, t time.Time) (models.Program, bool) {
	for _, p := range programs {
		if p.ChannelID == channelID && StatusAt(p, t) == StatusLive {
			return p, true
		}
	}
	return models.Program{}, false
}

// Window returns the programs overlapping [since, until), ordered by channel
// and start time.
func Window(programs []models.Program, since, until time.Time) []models.Program {
	out := make([]models.Program, 0, len(programs))
	for _, p := range programs {
		if p.StartAt.Before(until) && p.EndAt.After(since) {
			out = append(out, p)
		}
	}
	Sort(out)
	return out
}

// Sort orders programs by channel id, then start time.
func Sort(programs []models.Program) {
	sort.SliceStable(programs, func(i, j int) bool {
		if programs[i].ChannelID != programs[j].ChannelID {
			return programs[i].ChannelID < programs[j].ChannelID
		}
		return programs[i].StartAt.Before(programs[j].StartAt)
	})
}

// GroupByChannel buckets programs per channel, each bucket sorted by start.
func GroupByChannel(programs []models.Program) map[string][]models.Program {
	out := make(map[string][]models.Program)
	for _, p := range programs {
		out[p.ChannelID] = append(out[p.ChannelID], p)
	}
	for _, list := range out {
		Sort(list)
	}
	return out
}
