package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/voyagen/arematv/internal/hls"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/store"
)

// segmentFile matches the chunk names SegmentURI produces.
var segmentFile = regexp.MustCompile(`^\d{3}\.ts$`)

// ImportStreams registers every stream directory under dir. A directory's
// chunk count comes from its playlist.m3u8 when present, otherwise from the
// number of NNN.ts files it holds. Directories without chunks are skipped.
func ImportStreams(ctx context.Context, s store.Store, dir string) ([]models.Stream, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read streams dir: %w", err)
	}
	logger := log.WithComponentFromContext(ctx, "streams")

	var imported []models.Stream
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return imported, fmt.Errorf("import cancelled: %w", err)
		}
		if !e.IsDir() {
			continue
		}
		n, err := countChunks(filepath.Join(dir, e.Name()))
		if err != nil {
			return imported, fmt.Errorf("stream %s: %w", e.Name(), err)
		}
		if n == 0 {
			logger.Warn().Str(log.FieldStreamID, e.Name()).Msg("no chunks, skipping")
			continue
		}
		st := models.Stream{ID: e.Name(), NumberOfChunks: n}
		if err := s.UpsertStream(ctx, st); err != nil {
			return imported, err
		}
		logger.Debug().Str(log.FieldStreamID, st.ID).Int("chunks", n).Msg("imported stream")
		imported = append(imported, st)
	}
	logger.Info().Int("streams", len(imported)).Msg("stream import complete")
	return imported, nil
}

func countChunks(dir string) (int, error) {
	f, err := os.Open(filepath.Join(dir, "playlist.m3u8"))
	if err == nil {
		defer f.Close()
		return hls.CountSegments(f)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && segmentFile.MatchString(e.Name()) {
			n++
		}
	}
	return n, nil
}
