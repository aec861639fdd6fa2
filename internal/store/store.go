package store

import (
	"context"
	"errors"

	"github.com/voyagen/arematv/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrUnsupported is returned by backends that lack a capability (vector
	// search on SQLite).
	ErrUnsupported = errors.New("not supported by this store")
)

// Store defines persistence for the catalog, the timetable, recommendations
// and users.
type Store interface {
	// ListSeries returns series ordered by id.
	ListSeries(ctx context.Context, page Page) ([]models.Series, error)
	// GetSeries returns a series with its episodes ordered by episode order.
	GetSeries(ctx context.Context, seriesID string) (*models.SeriesDetail, error)
	// ListEpisodes returns episodes ordered by id.
	ListEpisodes(ctx context.Context, page Page) ([]models.Episode, error)
	// GetEpisode returns an episode with its series and sibling episodes.
	GetEpisode(ctx context.Context, episodeID string) (*models.EpisodeDetail, error)
	// GetStream returns the chunk set of a stream.
	GetStream(ctx context.Context, streamID string) (*models.Stream, error)

	// ListChannels returns all channels ordered by id.
	ListChannels(ctx context.Context) ([]models.Channel, error)
	// GetChannel returns a single channel.
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)

	// ListPrograms returns stored program slots ordered by id.
	ListPrograms(ctx context.Context, page Page) ([]models.ProgramSlot, error)
	// GetProgram returns a single stored program slot.
	GetProgram(ctx context.Context, programID string) (*models.ProgramSlot, error)
	// ListProgramsByChannel returns a channel's slots ordered by start clock.
	ListProgramsByChannel(ctx context.Context, channelID string) ([]models.ProgramSlot, error)
	// ListTimetable returns every slot ordered by channel and start clock.
	ListTimetable(ctx context.Context) ([]models.ProgramSlot, error)

	// ListRecommendedModules returns, per reference id, its modules ordered by
	// module order with items ordered by item order. Reference ids without
	// modules are absent from the map.
	ListRecommendedModules(ctx context.Context, referenceIDs []string) (map[string][]models.RecommendedModule, error)

	// CreateUser inserts a user. A duplicate email yields ErrConflict.
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	// GetUserByEmail looks a user up by email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserByID looks a user up by id.
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)

	UpsertStream(ctx context.Context, s models.Stream) error
	UpsertSeries(ctx context.Context, s models.Series) error
	UpsertEpisode(ctx context.Context, e models.Episode) error
	UpsertChannel(ctx context.Context, c models.Channel) error
	UpsertProgram(ctx context.Context, p models.ProgramSlot) error
	// UpsertRecommendedModule writes the module row; Items are ignored.
	UpsertRecommendedModule(ctx context.Context, m models.RecommendedModule) error
	UpsertRecommendedItem(ctx context.Context, item models.RecommendedItem) error

	// ListSeriesWithoutEmbeddings returns up to limit series lacking a vector.
	ListSeriesWithoutEmbeddings(ctx context.Context, limit int) ([]models.Series, error)
	// StoreSeriesEmbeddings saves one vector per series id.
	StoreSeriesEmbeddings(ctx context.Context, seriesIDs []string, embeddings [][]float32) error
	// SearchSeries returns series nearest to the query vector.
	SearchSeries(ctx context.Context, query []float32, limit int) ([]SeriesMatch, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Page bounds a list query. A non-positive Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// SeriesMatch is a semantic search hit.
type SeriesMatch struct {
	models.Series
	Distance float64 `json:"distance"`
}
