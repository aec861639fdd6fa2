package models

// Recommended module layouts.
const (
	ModuleTypeCarousel  = "carousel"
	ModuleTypeJumbotron = "jumbotron"
)

// RecommendedModule is a named, ordered group of items shown for a reference
// id (a series, episode or program id, or a page key such as "entrance").
type RecommendedModule struct {
	ID          string            `json:"id"`
	Order       int               `json:"order"`
	Title       string            `json:"title"`
	ReferenceID string            `json:"referenceId"`
	Type        string            `json:"type"`
	Items       []RecommendedItem `json:"items"`
}

// RecommendedItem points at exactly one of a series or an episode.
type RecommendedItem struct {
	ID        string         `json:"id"`
	Order     int            `json:"order"`
	ModuleID  string         `json:"moduleId"`
	SeriesID  *string        `json:"seriesId"`
	EpisodeID *string        `json:"episodeId"`
	Series    *SeriesDetail  `json:"series"`
	Episode   *EpisodeDetail `json:"episode"`
}
