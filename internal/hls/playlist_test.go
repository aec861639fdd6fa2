package hls

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/arematv/internal/models"
)

func decodeMedia(t *testing.T, data []byte) *m3u8.MediaPlaylist {
	t.Helper()
	pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(data), true)
	require.NoError(t, err)
	require.Equal(t, m3u8.MEDIA, kind)
	return pl.(*m3u8.MediaPlaylist)
}

func segmentURIs(p *m3u8.MediaPlaylist) []string {
	var uris []string
	for _, s := range p.Segments {
		if s != nil {
			uris = append(uris, s.URI)
		}
	}
	return uris
}

func TestSegmentURI(t *testing.T) {
	assert.Equal(t, "/streams/caminandes/000.ts", SegmentURI("caminandes", 0))
	assert.Equal(t, "/streams/caminandes/042.ts", SegmentURI("caminandes", 42))
	assert.Equal(t, "/streams/caminandes/1234.ts", SegmentURI("caminandes", 1234))
}

func TestEpisodePlaylist(t *testing.T) {
	data, err := EpisodePlaylist(models.Stream{ID: "s1", NumberOfChunks: 3}, 2*time.Second)
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "#EXTM3U"))
	assert.Contains(t, text, "#EXT-X-MEDIA-SEQUENCE:1")
	assert.Contains(t, text, "#EXT-X-ENDLIST")

	p := decodeMedia(t, data)
	want := []string{"/streams/s1/000.ts", "/streams/s1/001.ts", "/streams/s1/002.ts"}
	if diff := cmp.Diff(want, segmentURIs(p)); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.Closed)
	assert.InDelta(t, 2.0, p.Segments[0].Duration, 0.001)
}

func TestEpisodePlaylist_EmptyStream(t *testing.T) {
	_, err := EpisodePlaylist(models.Stream{ID: "s1"}, 2*time.Second)
	assert.ErrorIs(t, err, ErrEmptyStream)
}

type fakeSource struct {
	airings []Airing
	err     error
}

func (f fakeSource) AiringAt(_ context.Context, channelID string, t time.Time) (Airing, bool, error) {
	if f.err != nil {
		return Airing{}, false, f.err
	}
	for _, a := range f.airings {
		if a.Program.ChannelID == channelID && !t.Before(a.Program.StartAt) && t.Before(a.Program.EndAt) {
			return a, true, nil
		}
	}
	return Airing{}, false, nil
}

func TestChannelPlaylist_LoopsChunksAndRollsOver(t *testing.T) {
	seg := 2 * time.Second
	now := time.Unix(1_000_000, 0) // divisible by 2s
	firstSeq := now.UnixMilli()/seg.Milliseconds() - 4
	start := time.UnixMilli(firstSeq * seg.Milliseconds())

	src := fakeSource{airings: []Airing{
		{
			Program: models.Program{ID: "p1", ChannelID: "news", StartAt: start.Add(-2 * seg), EndAt: start.Add(2 * seg)},
			Stream:  models.Stream{ID: "a", NumberOfChunks: 3},
		},
		{
			Program: models.Program{ID: "p2", ChannelID: "news", StartAt: start.Add(2 * seg), EndAt: start.Add(time.Hour)},
			Stream:  models.Stream{ID: "b", NumberOfChunks: 10},
		},
	}}

	data, err := ChannelPlaylist(context.Background(), src, "news", now, seg, 4)
	require.NoError(t, err)

	p := decodeMedia(t, data)
	assert.Equal(t, uint64(firstSeq), p.SeqNo)
	assert.False(t, p.Closed)
	// p1 started two segments before the window: chunks 2, then 3%3=0.
	want := []string{"/streams/a/002.ts", "/streams/a/000.ts", "/streams/b/000.ts", "/streams/b/001.ts"}
	if diff := cmp.Diff(want, segmentURIs(p)); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, start.Equal(p.Segments[0].ProgramDateTime))
}

func TestChannelPlaylist_StopsAtGap(t *testing.T) {
	seg := 2 * time.Second
	now := time.Unix(2_000_000, 0)
	firstSeq := now.UnixMilli()/seg.Milliseconds() - 5
	start := time.UnixMilli(firstSeq * seg.Milliseconds())

	src := fakeSource{airings: []Airing{{
		Program: models.Program{ChannelID: "c", StartAt: start, EndAt: start.Add(2 * seg)},
		Stream:  models.Stream{ID: "s", NumberOfChunks: 5},
	}}}

	data, err := ChannelPlaylist(context.Background(), src, "c", now, seg, 5)
	require.NoError(t, err)
	assert.Len(t, segmentURIs(decodeMedia(t, data)), 2)
}

func TestChannelPlaylist_SubMillisecondSegments(t *testing.T) {
	seg := 500 * time.Microsecond
	now := time.Unix(2_000_000, 0)
	start := now.Add(-time.Second)

	src := fakeSource{airings: []Airing{{
		Program: models.Program{ChannelID: "c", StartAt: start, EndAt: now.Add(time.Second)},
		Stream:  models.Stream{ID: "s", NumberOfChunks: 3},
	}}}

	data, err := ChannelPlaylist(context.Background(), src, "c", now, seg, 4)
	require.NoError(t, err)
	p := decodeMedia(t, data)
	assert.Equal(t, uint64(now.UnixNano()/int64(seg)-4), p.SeqNo)
	assert.Len(t, segmentURIs(p), 4)
}

func TestChannelPlaylist_Errors(t *testing.T) {
	_, err := ChannelPlaylist(context.Background(), fakeSource{}, "c", time.Now(), 0, 5)
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = ChannelPlaylist(context.Background(), fakeSource{err: boom}, "c", time.Now(), time.Second, 5)
	assert.ErrorIs(t, err, boom)
}

func TestCountSegments(t *testing.T) {
	data, err := EpisodePlaylist(models.Stream{ID: "s", NumberOfChunks: 7}, 2*time.Second)
	require.NoError(t, err)

	n, err := CountSegments(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = CountSegments(strings.NewReader("not a playlist"))
	assert.Error(t, err)
}
