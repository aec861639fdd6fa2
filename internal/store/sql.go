package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/voyagen/arematv/internal/models"
)

// rowScanner is the single-row result shared by pgx and database/sql.
// Scan reports ErrNotFound when no row matched.
type rowScanner interface {
	Scan(dest ...any) error
}

// rowsIter is the multi-row result shared by pgx and database/sql.
type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// querier hides the driver behind the queries below. Queries are written with
// '?' placeholders; drivers that need another style rebind them.
type querier interface {
	query(ctx context.Context, q string, args ...any) (rowsIter, error)
	queryRow(ctx context.Context, q string, args ...any) rowScanner
	exec(ctx context.Context, q string, args ...any) (int64, error)
}

// sqlStore implements the dialect-neutral part of Store.
type sqlStore struct {
	db querier
}

const (
	seriesColumns   = `s.id, s.title, s.description, s.thumbnail_url`
	episodeColumns  = `e.id, e.title, e.description, e.thumbnail_url, e.sort_order, e.series_id, e.stream_id, e.premium`
	channelColumns  = `c.id, c.name, c.logo_url`
	programColumns  = `p.id, p.title, p.description, p.start_at, p.end_at, p.thumbnail_url, p.channel_id, p.episode_id`
	moduleColumns   = `m.id, m.sort_order, m.title, m.reference_id, m.type`
	itemColumns     = `i.id, i.sort_order, i.module_id, i.series_id, i.episode_id`
	userColumns     = `u.id, u.email, u.password_hash`
	programOrdering = ` ORDER BY p.channel_id, p.start_at, p.id`
)

func scanSeries(r rowScanner) (models.Series, error) {
	var s models.Series
	err := r.Scan(&s.ID, &s.Title, &s.Description, &s.ThumbnailURL)
	return s, err
}

func scanEpisode(r rowScanner) (models.Episode, error) {
	var e models.Episode
	err := r.Scan(&e.ID, &e.Title, &e.Description, &e.ThumbnailURL, &e.Order, &e.SeriesID, &e.StreamID, &e.Premium)
	return e, err
}

func scanChannel(r rowScanner) (models.Channel, error) {
	var c models.Channel
	err := r.Scan(&c.ID, &c.Name, &c.LogoURL)
	return c, err
}

func scanProgram(r rowScanner) (models.ProgramSlot, error) {
	var p models.ProgramSlot
	err := r.Scan(&p.ID, &p.Title, &p.Description, &p.StartAt, &p.EndAt, &p.ThumbnailURL, &p.ChannelID, &p.EpisodeID)
	return p, err
}

func scanUser(r rowScanner) (*models.User, error) {
	var u models.User
	if err := r.Scan(&u.ID, &u.Email, &u.PasswordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

// collect drains rows through scan.
func collect[T any](rows rowsIter, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// pageClause appends LIMIT/OFFSET for a positive limit.
func pageClause(q string, args []any, page Page) (string, []any) {
	if page.Limit <= 0 {
		return q, args
	}
	return q + ` LIMIT ? OFFSET ?`, append(args, page.Limit, max(page.Offset, 0))
}

// inClause renders "?, ?, ?" for ids and returns them as arguments.
func inClause(ids []string) (string, []any) {
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "),
		lo.Map(ids, func(id string, _ int) any { return id })
}

func (s *sqlStore) ListSeries(ctx context.Context, page Page) ([]models.Series, error) {
	q, args := pageClause(`SELECT `+seriesColumns+` FROM series s ORDER BY s.id`, nil, page)
	rows, err := s.db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSeries: %w", err)
	}
	series, err := collect(rows, scanSeries)
	if err != nil {
		return nil, fmt.Errorf("ListSeries: %w", err)
	}
	return series, nil
}

func (s *sqlStore) GetSeries(ctx context.Context, seriesID string) (*models.SeriesDetail, error) {
	details, err := s.seriesDetails(ctx, []string{seriesID})
	if err != nil {
		return nil, fmt.Errorf("GetSeries: %w", err)
	}
	d, ok := details[seriesID]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// seriesDetails loads the given series with their episodes ordered by episode
// order. Unknown ids are absent from the result.
func (s *sqlStore) seriesDetails(ctx context.Context, ids []string) (map[string]*models.SeriesDetail, error) {
	out := make(map[string]*models.SeriesDetail, len(ids))
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)

	rows, err := s.db.query(ctx, `SELECT `+seriesColumns+` FROM series s WHERE s.id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	series, err := collect(rows, scanSeries)
	if err != nil {
		return nil, err
	}
	for _, sr := range series {
		out[sr.ID] = &models.SeriesDetail{Series: sr, Episodes: []models.Episode{}}
	}

	rows, err = s.db.query(ctx,
		`SELECT `+episodeColumns+` FROM episode e WHERE e.series_id IN (`+in+`) ORDER BY e.series_id, e.sort_order, e.id`,
		args...)
	if err != nil {
		return nil, err
	}
	episodes, err := collect(rows, scanEpisode)
	if err != nil {
		return nil, err
	}
	for _, e := range episodes {
		if d, ok := out[e.SeriesID]; ok {
			d.Episodes = append(d.Episodes, e)
		}
	}
	return out, nil
}

func (s *sqlStore) ListEpisodes(ctx context.Context, page Page) ([]models.Episode, error) {
	q, args := pageClause(`SELECT `+episodeColumns+` FROM episode e ORDER BY e.id`, nil, page)
	rows, err := s.db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEpisodes: %w", err)
	}
	episodes, err := collect(rows, scanEpisode)
	if err != nil {
		return nil, fmt.Errorf("ListEpisodes: %w", err)
	}
	return episodes, nil
}

func (s *sqlStore) GetEpisode(ctx context.Context, episodeID string) (*models.EpisodeDetail, error) {
	details, err := s.episodeDetails(ctx, []string{episodeID})
	if err != nil {
		return nil, fmt.Errorf("GetEpisode: %w", err)
	}
	d, ok := details[episodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// episodeDetails loads the given episodes with their series. Unknown ids are
// absent from the result.
func (s *sqlStore) episodeDetails(ctx context.Context, ids []string) (map[string]*models.EpisodeDetail, error) {
	out := make(map[string]*models.EpisodeDetail, len(ids))
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	rows, err := s.db.query(ctx, `SELECT `+episodeColumns+` FROM episode e WHERE e.id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	episodes, err := collect(rows, scanEpisode)
	if err != nil {
		return nil, err
	}
	series, err := s.seriesDetails(ctx, lo.Map(episodes, func(e models.Episode, _ int) string { return e.SeriesID }))
	if err != nil {
		return nil, err
	}
	for _, e := range episodes {
		d := &models.EpisodeDetail{Episode: e}
		if sr, ok := series[e.SeriesID]; ok {
			d.Series = *sr
		}
		out[e.ID] = d
	}
	return out, nil
}

func (s *sqlStore) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	var st models.Stream
	err := s.db.queryRow(ctx, `SELECT id, number_of_chunks FROM stream WHERE id = ?`, streamID).
		Scan(&st.ID, &st.NumberOfChunks)
	if err != nil {
		return nil, wrapRead("GetStream", err)
	}
	return &st, nil
}

func (s *sqlStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := s.db.query(ctx, `SELECT `+channelColumns+` FROM channel c ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	channels, err := collect(rows, scanChannel)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	return channels, nil
}

func (s *sqlStore) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	c, err := scanChannel(s.db.queryRow(ctx, `SELECT `+channelColumns+` FROM channel c WHERE c.id = ?`, channelID))
	if err != nil {
		return nil, wrapRead("GetChannel", err)
	}
	return &c, nil
}

func (s *sqlStore) ListPrograms(ctx context.Context, page Page) ([]models.ProgramSlot, error) {
	q, args := pageClause(`SELECT `+programColumns+` FROM program p ORDER BY p.id`, nil, page)
	return s.listPrograms(ctx, "ListPrograms", q, args...)
}

func (s *sqlStore) ListProgramsByChannel(ctx context.Context, channelID string) ([]models.ProgramSlot, error) {
	return s.listPrograms(ctx, "ListProgramsByChannel",
		`SELECT `+programColumns+` FROM program p WHERE p.channel_id = ?`+programOrdering, channelID)
}

func (s *sqlStore) ListTimetable(ctx context.Context) ([]models.ProgramSlot, error) {
	return s.listPrograms(ctx, "ListTimetable", `SELECT `+programColumns+` FROM program p`+programOrdering)
}

func (s *sqlStore) listPrograms(ctx context.Context, op, q string, args ...any) ([]models.ProgramSlot, error) {
	rows, err := s.db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	programs, err := collect(rows, scanProgram)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return programs, nil
}

func (s *sqlStore) GetProgram(ctx context.Context, programID string) (*models.ProgramSlot, error) {
	p, err := scanProgram(s.db.queryRow(ctx, `SELECT `+programColumns+` FROM program p WHERE p.id = ?`, programID))
	if err != nil {
		return nil, wrapRead("GetProgram", err)
	}
	return &p, nil
}

func (s *sqlStore) ListRecommendedModules(ctx context.Context, referenceIDs []string) (map[string][]models.RecommendedModule, error) {
	out := make(map[string][]models.RecommendedModule, len(referenceIDs))
	referenceIDs = lo.Uniq(referenceIDs)
	if len(referenceIDs) == 0 {
		return out, nil
	}

	in, args := inClause(referenceIDs)
	rows, err := s.db.query(ctx,
		`SELECT `+moduleColumns+` FROM recommended_module m WHERE m.reference_id IN (`+in+`) ORDER BY m.reference_id, m.sort_order, m.id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("ListRecommendedModules: %w", err)
	}
	modules, err := collect(rows, func(r rowScanner) (models.RecommendedModule, error) {
		var m models.RecommendedModule
		err := r.Scan(&m.ID, &m.Order, &m.Title, &m.ReferenceID, &m.Type)
		m.Items = []models.RecommendedItem{}
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListRecommendedModules: %w", err)
	}
	if len(modules) == 0 {
		return out, nil
	}

	in, args = inClause(lo.Map(modules, func(m models.RecommendedModule, _ int) string { return m.ID }))
	rows, err = s.db.query(ctx,
		`SELECT `+itemColumns+` FROM recommended_item i WHERE i.module_id IN (`+in+`) ORDER BY i.module_id, i.sort_order, i.id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("ListRecommendedModules: items: %w", err)
	}
	items, err := collect(rows, func(r rowScanner) (models.RecommendedItem, error) {
		var (
			it                  models.RecommendedItem
			seriesID, episodeID sql.NullString
		)
		err := r.Scan(&it.ID, &it.Order, &it.ModuleID, &seriesID, &episodeID)
		if seriesID.Valid {
			it.SeriesID = lo.ToPtr(seriesID.String)
		}
		if episodeID.Valid {
			it.EpisodeID = lo.ToPtr(episodeID.String)
		}
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListRecommendedModules: items: %w", err)
	}

	var seriesIDs, episodeIDs []string
	for _, it := range items {
		if it.SeriesID != nil {
			seriesIDs = append(seriesIDs, *it.SeriesID)
		}
		if it.EpisodeID != nil {
			episodeIDs = append(episodeIDs, *it.EpisodeID)
		}
	}
	series, err := s.seriesDetails(ctx, seriesIDs)
	if err != nil {
		return nil, fmt.Errorf("ListRecommendedModules: series: %w", err)
	}
	episodes, err := s.episodeDetails(ctx, episodeIDs)
	if err != nil {
		return nil, fmt.Errorf("ListRecommendedModules: episodes: %w", err)
	}

	byModule := lo.GroupBy(items, func(it models.RecommendedItem) string { return it.ModuleID })
	for _, m := range modules {
		for _, it := range byModule[m.ID] {
			if it.SeriesID != nil {
				it.Series = series[*it.SeriesID]
			}
			if it.EpisodeID != nil {
				it.Episode = episodes[*it.EpisodeID]
			}
			m.Items = append(m.Items, it)
		}
		out[m.ReferenceID] = append(out[m.ReferenceID], m)
	}
	return out, nil
}

func (s *sqlStore) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	var id int64
	err := s.db.queryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}
	return &models.User{ID: id, Email: email, PasswordHash: passwordHash}, nil
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = ?`, email))
	if err != nil {
		return nil, wrapRead("GetUserByEmail", err)
	}
	return u, nil
}

func (s *sqlStore) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, userID))
	if err != nil {
		return nil, wrapRead("GetUserByID", err)
	}
	return u, nil
}

func (s *sqlStore) UpsertStream(ctx context.Context, st models.Stream) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO stream (id, number_of_chunks) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET number_of_chunks = excluded.number_of_chunks`,
		st.ID, st.NumberOfChunks)
	if err != nil {
		return fmt.Errorf("UpsertStream: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertSeries(ctx context.Context, sr models.Series) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO series (id, title, description, thumbnail_url) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, thumbnail_url = excluded.thumbnail_url`,
		sr.ID, sr.Title, sr.Description, sr.ThumbnailURL)
	if err != nil {
		return fmt.Errorf("UpsertSeries: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertEpisode(ctx context.Context, e models.Episode) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO episode (id, title, description, thumbnail_url, sort_order, series_id, stream_id, premium)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, thumbnail_url = excluded.thumbnail_url,
		   sort_order = excluded.sort_order, series_id = excluded.series_id, stream_id = excluded.stream_id,
		   premium = excluded.premium`,
		e.ID, e.Title, e.Description, e.ThumbnailURL, e.Order, e.SeriesID, e.StreamID, e.Premium)
	if err != nil {
		return fmt.Errorf("UpsertEpisode: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertChannel(ctx context.Context, c models.Channel) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO channel (id, name, logo_url) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, logo_url = excluded.logo_url`,
		c.ID, c.Name, c.LogoURL)
	if err != nil {
		return fmt.Errorf("UpsertChannel: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertProgram(ctx context.Context, p models.ProgramSlot) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO program (id, title, description, start_at, end_at, thumbnail_url, channel_id, episode_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, start_at = excluded.start_at,
		   end_at = excluded.end_at, thumbnail_url = excluded.thumbnail_url, channel_id = excluded.channel_id,
		   episode_id = excluded.episode_id`,
		p.ID, p.Title, p.Description, p.StartAt, p.EndAt, p.ThumbnailURL, p.ChannelID, p.EpisodeID)
	if err != nil {
		return fmt.Errorf("UpsertProgram: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertRecommendedModule(ctx context.Context, m models.RecommendedModule) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO recommended_module (id, sort_order, title, reference_id, type) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   sort_order = excluded.sort_order, title = excluded.title,
		   reference_id = excluded.reference_id, type = excluded.type`,
		m.ID, m.Order, m.Title, m.ReferenceID, m.Type)
	if err != nil {
		return fmt.Errorf("UpsertRecommendedModule: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertRecommendedItem(ctx context.Context, it models.RecommendedItem) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO recommended_item (id, sort_order, module_id, series_id, episode_id) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   sort_order = excluded.sort_order, module_id = excluded.module_id,
		   series_id = excluded.series_id, episode_id = excluded.episode_id`,
		it.ID, it.Order, it.ModuleID, nullable(it.SeriesID), nullable(it.EpisodeID))
	if err != nil {
		return fmt.Errorf("UpsertRecommendedItem: %w", err)
	}
	return nil
}

func (s *sqlStore) ListSeriesWithoutEmbeddings(context.Context, int) ([]models.Series, error) {
	return nil, ErrUnsupported
}

func (s *sqlStore) StoreSeriesEmbeddings(context.Context, []string, [][]float32) error {
	return ErrUnsupported
}

func (s *sqlStore) SearchSeries(context.Context, []float32, int) ([]SeriesMatch, error) {
	return nil, ErrUnsupported
}

// nullable turns a nil pointer into a SQL NULL.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// wrapRead prefixes err with op while keeping ErrNotFound bare so callers
// can compare it directly.
func wrapRead(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
