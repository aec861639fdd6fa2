// Package hls builds the HLS media playlists served for episodes and live
// channels.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/grafov/m3u8"

	"github.com/voyagen/arematv/internal/models"
)

// ContentType is the MIME type of an encoded playlist.
const ContentType = "application/vnd.apple.mpegurl"

// ErrEmptyStream is returned for streams without chunks.
var ErrEmptyStream = errors.New("hls: stream has no chunks")

// SegmentURI is the path of chunk index of a stream.
func SegmentURI(streamID string, index int) string {
	return fmt.Sprintf("/streams/%s/%03d.ts", streamID, index)
}

// EpisodePlaylist renders the VOD playlist for a stream: every chunk in
// order, starting at media sequence 1, closed with EXT-X-ENDLIST.
func EpisodePlaylist(stream models.Stream, segment time.Duration) ([]byte, error) {
	if stream.NumberOfChunks <= 0 {
		return nil, fmt.Errorf("stream %s: %w", stream.ID, ErrEmptyStream)
	}
	p, err := m3u8.NewMediaPlaylist(0, uint(stream.NumberOfChunks))
	if err != nil {
		return nil, fmt.Errorf("new playlist: %w", err)
	}
	p.SeqNo = 1
	p.MediaType = m3u8.VOD
	for i := 0; i < stream.NumberOfChunks; i++ {
		if err := p.Append(SegmentURI(stream.ID, i), segment.Seconds(), ""); err != nil {
			return nil, fmt.Errorf("append segment %d: %w", i, err)
		}
	}
	p.Close()
	return p.Encode().Bytes(), nil
}

// Airing is a program on air together with the stream its episode plays.
type Airing struct {
	Program models.Program
	Stream  models.Stream
}

// AiringSource finds what a channel broadcasts at a given instant.
type AiringSource interface {
	AiringAt(ctx context.Context, channelID string, t time.Time) (Airing, bool, error)
}

// ChannelPlaylist renders the sliding live playlist of a channel at now.
//
// Sequence numbers count segments since the Unix epoch. The playlist starts
// window segments before now and stops early at the first instant with
// nothing on air. Each program loops its episode's chunks from its start.
func ChannelPlaylist(ctx context.Context, src AiringSource, channelID string, now time.Time, segment time.Duration, window int) ([]byte, error) {
	if segment <= 0 || window <= 0 {
		return nil, fmt.Errorf("hls: invalid segment %s or window %d", segment, window)
	}
	first := now.UnixNano()/int64(segment) - int64(window)

	p, err := m3u8.NewMediaPlaylist(0, uint(window))
	if err != nil {
		return nil, fmt.Errorf("new playlist: %w", err)
	}
	p.SeqNo = uint64(first)

	for i := 0; i < window; i++ {
		seq := first + int64(i)
		seqStart := time.Unix(0, seq*int64(segment))

		airing, ok, err := src.AiringAt(ctx, channelID, seqStart)
		if err != nil {
			return nil, fmt.Errorf("airing at %s: %w", seqStart.Format(time.RFC3339), err)
		}
		if !ok {
			break
		}
		if airing.Stream.NumberOfChunks <= 0 {
			return nil, fmt.Errorf("stream %s: %w", airing.Stream.ID, ErrEmptyStream)
		}
		inProgram := int(seqStart.Sub(airing.Program.StartAt) / segment)
		chunk := inProgram % airing.Stream.NumberOfChunks

		if err := p.Append(SegmentURI(airing.Stream.ID, chunk), segment.Seconds(), ""); err != nil {
			return nil, fmt.Errorf("append sequence %d: %w", seq, err)
		}
		if i == 0 {
			if err := p.SetProgramDateTime(seqStart.UTC()); err != nil {
				return nil, fmt.Errorf("program date time: %w", err)
			}
		}
	}
	return p.Encode().Bytes(), nil
}

// CountSegments decodes a media playlist and returns how many segments it
// lists.
func CountSegments(r io.Reader) (int, error) {
	pl, kind, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return 0, fmt.Errorf("decode playlist: %w", err)
	}
	if kind != m3u8.MEDIA {
		return 0, errors.New("hls: expected a media playlist, got a master playlist")
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return 0, errors.New("hls: unexpected playlist type")
	}
	return int(media.Count()), nil
}
