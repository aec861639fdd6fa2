package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voyagen/arematv/internal/store"
)

var jst = time.FixedZone("JST", 9*60*60)

// newSeededStore returns an SQLite store loaded with testdata/fixture.yaml.
func newSeededStore(t *testing.T) *store.SQLite {
	t.Helper()
	s := newEmptyStore(t)
	f, err := LoadFixture(filepath.Join("testdata", "fixture.yaml"))
	require.NoError(t, err)
	_, err = Seed(context.Background(), s, f, nil)
	require.NoError(t, err)
	return s
}

func newEmptyStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, store.RunSQLiteMigrations(s))
	return s
}

// at returns 2025-03-20 hh:mm:ss in JST.
func at(hh, mm, ss int) time.Time {
	return time.Date(2025, 3, 20, hh, mm, ss, 0, jst)
}
