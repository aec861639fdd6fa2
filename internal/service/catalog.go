// Package service holds the application logic between the HTTP layer and
// the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voyagen/arematv/internal/hls"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/store"
	"github.com/voyagen/arematv/internal/timetable"
)

// ErrInvalidWindow is returned when a timetable window is empty or inverted.
var ErrInvalidWindow = errors.New("since must be before until")

// Catalog dates stored program slots and answers timetable, program and
// live-airing questions.
type Catalog struct {
	store store.Store
	loc   *time.Location
	now   func() time.Time
}

// NewCatalog returns a Catalog materialising program clocks in loc.
func NewCatalog(s store.Store, loc *time.Location) *Catalog {
	if loc == nil {
		loc = time.UTC
	}
	return &Catalog{store: s, loc: loc, now: time.Now}
}

// Location is the zone program clocks are read in.
func (c *Catalog) Location() *time.Location {
	return c.loc
}

// Timetable returns the airings of yesterday and today overlapping
// [since, until), ordered by channel and start. A program wrapping past
// midnight can appear once per day it airs on.
func (c *Catalog) Timetable(ctx context.Context, since, until time.Time) ([]models.Program, error) {
	if !since.Before(until) {
		return nil, ErrInvalidWindow
	}
	slots, err := c.store.ListTimetable(ctx)
	if err != nil {
		return nil, err
	}
	programs, err := c.datedAround(slots, c.now())
	if err != nil {
		return nil, err
	}
	return timetable.Window(programs, since, until), nil
}

// ListPrograms returns a page of programs, each dated on its airing nearest
// to now.
func (c *Catalog) ListPrograms(ctx context.Context, page store.Page) ([]models.Program, error) {
	slots, err := c.store.ListPrograms(ctx, page)
	if err != nil {
		return nil, err
	}
	now := c.now()
	programs := make([]models.Program, 0, len(slots))
	for _, slot := range slots {
		p, err := c.nearestAiring(slot, now)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, nil
}

// Program returns the airing of a program that covers now, or the nearest
// one, with its channel, episode, on-air status and the id of the program
// that follows it.
func (c *Catalog) Program(ctx context.Context, programID string) (*models.ProgramDetail, error) {
	slot, err := c.store.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	p, err := c.nearestAiring(*slot, now)
	if err != nil {
		return nil, err
	}
	ch, err := c.store.GetChannel(ctx, p.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("program %s channel: %w", p.ID, err)
	}
	ep, err := c.store.GetEpisode(ctx, p.EpisodeID)
	if err != nil {
		return nil, fmt.Errorf("program %s episode: %w", p.ID, err)
	}
	detail := &models.ProgramDetail{
		Program: p,
		Channel: *ch,
		Episode: *ep,
		Status:  string(timetable.StatusAt(p, now)),
	}
	next, ok, err := c.Next(ctx, p)
	if err != nil {
		return nil, err
	}
	if ok {
		detail.NextProgramID = &next.ID
	}
	return detail, nil
}

// Next finds the program starting on the same channel when current ends.
// It satisfies timetable.NextFunc so followers keep rolling over across
// midnight.
func (c *Catalog) Next(ctx context.Context, current models.Program) (models.Program, bool, error) {
	programs, err := c.channelPrograms(ctx, current.ChannelID, current.EndAt)
	if err != nil {
		return models.Program{}, false, err
	}
	next, ok := timetable.NextProgram(programs, current)
	return next, ok, nil
}

// channelPrograms dates a channel's slots around t.
func (c *Catalog) channelPrograms(ctx context.Context, channelID string, t time.Time) ([]models.Program, error) {
	slots, err := c.store.ListProgramsByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return c.datedAround(slots, t)
}

// datedAround dates slots on the day of t and the day before, so programs
// wrapping past midnight cover the small hours of t.
func (c *Catalog) datedAround(slots []models.ProgramSlot, t time.Time) ([]models.Program, error) {
	yesterday, err := timetable.MaterializeAll(slots, t.In(c.loc).AddDate(0, 0, -1), c.loc)
	if err != nil {
		return nil, err
	}
	today, err := timetable.MaterializeAll(slots, t, c.loc)
	if err != nil {
		return nil, err
	}
	return append(yesterday, today...), nil
}

// nearestAiring dates slot on yesterday or today, preferring the airing on
// air at now and otherwise the one closest to now.
func (c *Catalog) nearestAiring(slot models.ProgramSlot, now time.Time) (models.Program, error) {
	var (
		best    models.Program
		bestGap time.Duration = -1
	)
	for _, day := range []time.Time{now.In(c.loc).AddDate(0, 0, -1), now} {
		p, err := timetable.MaterializeSlot(slot, day, c.loc)
		if err != nil {
			return models.Program{}, err
		}
		if gap := airingGap(p, now); bestGap < 0 || gap < bestGap {
			best, bestGap = p, gap
		}
	}
	return best, nil
}

// airingGap is how far p is from being on air at now.
func airingGap(p models.Program, now time.Time) time.Duration {
	switch timetable.StatusAt(p, now) {
	case timetable.StatusLive:
		return 0
	case timetable.StatusUpcoming:
		return p.StartAt.Sub(now)
	default:
		// Ties go to an airing that is live or upcoming.
		return now.Sub(p.EndAt) + time.Nanosecond
	}
}

// Airings returns the live-airing source for channelID around now. Programs
// and streams are loaded once and reused for every playlist sequence.
func (c *Catalog) Airings(ctx context.Context, channelID string, now time.Time) (hls.AiringSource, error) {
	if _, err := c.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	programs, err := c.channelPrograms(ctx, channelID, now)
	if err != nil {
		return nil, err
	}
	return &channelAirings{store: c.store, programs: programs, streams: make(map[string]models.Stream)}, nil
}

// EpisodeStream returns the stream an episode plays.
func (c *Catalog) EpisodeStream(ctx context.Context, episodeID string) (*models.Stream, error) {
	ep, err := c.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return c.store.GetStream(ctx, ep.StreamID)
}

// channelAirings implements hls.AiringSource over preloaded programs.
type channelAirings struct {
	store    store.Store
	programs []models.Program
	streams  map[string]models.Stream // by episode id
}

func (a *channelAirings) AiringAt(ctx context.Context, channelID string, t time.Time) (hls.Airing, bool, error) {
	p, ok := timetable.At(a.programs, channelID, t)
	if !ok {
		return hls.Airing{}, false, nil
	}
	st, ok := a.streams[p.EpisodeID]
	if !ok {
		ep, err := a.store.GetEpisode(ctx, p.EpisodeID)
		if err != nil {
			return hls.Airing{}, false, fmt.Errorf("program %s episode: %w", p.ID, err)
		}
		s, err := a.store.GetStream(ctx, ep.StreamID)
		if err != nil {
			return hls.Airing{}, false, fmt.Errorf("episode %s stream: %w", ep.ID, err)
		}
		st = *s
		a.streams[p.EpisodeID] = st
	}
	return hls.Airing{Program: p, Stream: st}, true, nil
}
