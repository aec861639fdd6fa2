package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/arematv/internal/hls"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/store"
	"github.com/voyagen/arematv/internal/timetable"
)

func newTestCatalog(t *testing.T, now time.Time) *Catalog {
	t.Helper()
	c := NewCatalog(newSeededStore(t), jst)
	c.now = func() time.Time { return now }
	return c
}

func programIDs(ps []models.Program) []string {
	return lo.Map(ps, func(p models.Program, _ int) string { return p.ID })
}

func TestCatalog_Timetable(t *testing.T) {
	c := newTestCatalog(t, at(23, 30, 0))
	ctx := context.Background()

	day, err := c.Timetable(ctx, at(0, 0, 0), at(0, 0, 0).Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"p-anime-late", "p-anime-early", "p-anime-late", "p-news-am", "p-news-pm"}, programIDs(day))

	// Last night's late program still covers the first hour of the day.
	assert.True(t, at(23, 0, 0).Add(-24*time.Hour).Equal(day[0].StartAt))
	assert.True(t, at(1, 0, 0).Equal(day[0].EndAt))

	// End-of-day programs end at midnight of the next day.
	pm := day[4]
	assert.True(t, at(0, 0, 0).Add(24*time.Hour).Equal(pm.EndAt))
	late := day[2]
	assert.True(t, at(1, 0, 0).Add(24*time.Hour).Equal(late.EndAt))

	noon, err := c.Timetable(ctx, at(12, 0, 0), at(13, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"p-news-pm"}, programIDs(noon))
}

func TestCatalog_AfterMidnightAgreesWithLivePlaylist(t *testing.T) {
	now := at(0, 30, 0)
	c := newTestCatalog(t, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := c.Airings(ctx, "anime", now)
	require.NoError(t, err)
	live, ok, err := src.AiringAt(ctx, "anime", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-anime-late", live.Program.ID)

	d, err := c.Program(ctx, "p-anime-late")
	require.NoError(t, err)
	assert.Equal(t, string(timetable.StatusLive), d.Status)
	assert.True(t, live.Program.StartAt.Equal(d.StartAt))
	assert.True(t, at(1, 0, 0).Equal(d.EndAt))
	require.NotNil(t, d.NextProgramID)
	assert.Equal(t, "p-anime-early", *d.NextProgramID)

	early, err := c.Program(ctx, "p-anime-early")
	require.NoError(t, err)
	assert.Equal(t, string(timetable.StatusUpcoming), early.Status)
	assert.True(t, at(1, 0, 0).Equal(early.StartAt))

	hour, err := c.Timetable(ctx, at(0, 0, 0), at(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"p-anime-late", "p-news-am"}, programIDs(hour))

	var clock atomic.Int64
	clock.Store(now.UnixNano())
	f := &timetable.Follower{
		Next:     c.Next,
		Interval: time.Millisecond,
		Now:      func() time.Time { return time.Unix(0, clock.Load()).In(jst) },
	}
	events := f.Follow(ctx, d.Program)
	clock.Store(at(1, 0, 1).UnixNano())
	select {
	case ev := <-events:
		assert.Equal(t, timetable.EventRollover, ev.Kind)
		assert.Equal(t, "p-anime-early", ev.Program.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no rollover event")
	}
}

func TestCatalog_TimetableInvalidWindow(t *testing.T) {
	c := newTestCatalog(t, at(10, 0, 0))
	_, err := c.Timetable(context.Background(), at(12, 0, 0), at(12, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = c.Timetable(context.Background(), at(13, 0, 0), at(12, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestCatalog_ListPrograms(t *testing.T) {
	c := newTestCatalog(t, at(10, 0, 0))
	ps, err := c.ListPrograms(context.Background(), store.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-anime-early", "p-anime-late"}, programIDs(ps))
	assert.True(t, at(1, 0, 0).Equal(ps[0].StartAt))
}

func TestCatalog_Program(t *testing.T) {
	c := newTestCatalog(t, at(23, 30, 0))
	ctx := context.Background()

	tests := []struct {
		id     string
		status timetable.Status
		next   string
	}{
		{"p-news-am", timetable.StatusArchived, "p-news-pm"},
		{"p-news-pm", timetable.StatusLive, "p-news-am"},
		{"p-anime-late", timetable.StatusLive, "p-anime-early"},
		{"p-anime-early", timetable.StatusArchived, ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, err := c.Program(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, string(tt.status), d.Status)
			assert.Equal(t, d.ChannelID, d.Channel.ID)
			assert.Equal(t, d.EpisodeID, d.Episode.ID)
			assert.NotEmpty(t, d.Episode.Series.Episodes)
			if tt.next == "" {
				assert.Nil(t, d.NextProgramID)
				return
			}
			require.NotNil(t, d.NextProgramID)
			assert.Equal(t, tt.next, *d.NextProgramID)
		})
	}

	_, err := c.Program(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalog_NextRollsOverMidnight(t *testing.T) {
	c := newTestCatalog(t, at(23, 59, 0))
	ctx := context.Background()

	d, err := c.Program(ctx, "p-news-pm")
	require.NoError(t, err)

	next, ok, err := c.Next(ctx, d.Program)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-news-am", next.ID)
	assert.True(t, d.EndAt.Equal(next.StartAt))

	after, ok, err := c.Next(ctx, next)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-news-pm", after.ID)
	assert.True(t, next.EndAt.Equal(after.StartAt))
}

func TestCatalog_AiringsFeedChannelPlaylist(t *testing.T) {
	now := at(23, 30, 0)
	c := newTestCatalog(t, now)
	ctx := context.Background()

	src, err := c.Airings(ctx, "news", now)
	require.NoError(t, err)

	body, err := hls.ChannelPlaylist(ctx, src, "news", now, 2*time.Second, 3)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, "/streams/dailydweebs/001.ts")
	assert.Contains(t, out, "/streams/dailydweebs/002.ts")
	assert.Contains(t, out, "/streams/dailydweebs/003.ts")

	// The wrapped late-night program from the previous day covers 00:30.
	early := at(0, 30, 0)
	src, err = c.Airings(ctx, "anime", early)
	require.NoError(t, err)
	a, ok, err := src.AiringAt(ctx, "anime", early)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-anime-late", a.Program.ID)
	assert.Equal(t, "caminandes", a.Stream.ID)

	_, err = c.Airings(ctx, "missing", now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalog_EpisodeStream(t *testing.T) {
	c := newTestCatalog(t, at(10, 0, 0))
	st, err := c.EpisodeStream(context.Background(), "e2")
	require.NoError(t, err)
	assert.Equal(t, models.Stream{ID: "dailydweebs", NumberOfChunks: 4}, *st)

	_, err = c.EpisodeStream(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalog_FollowerRollsOver(t *testing.T) {
	now := at(11, 59, 59)
	c := newTestCatalog(t, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := c.Program(ctx, "p-news-am")
	require.NoError(t, err)

	var clock atomic.Int64
	clock.Store(now.UnixNano())
	f := &timetable.Follower{
		Next:     c.Next,
		Interval: time.Millisecond,
		Now:      func() time.Time { return time.Unix(0, clock.Load()).In(jst) },
	}
	events := f.Follow(ctx, d.Program)

	clock.Store(at(12, 0, 1).UnixNano())
	select {
	case ev := <-events:
		assert.Equal(t, timetable.EventRollover, ev.Kind)
		assert.Equal(t, "p-news-pm", ev.Program.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no rollover event")
	}
}
