package models

// Episode is a single on-demand video belonging to a series.
type Episode struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Order        int    `json:"order"`
	SeriesID     string `json:"seriesId"`
	StreamID     string `json:"streamId"`
	Premium      bool   `json:"premium"`
}

// EpisodeDetail is an episode together with its series and the series' episodes.
type EpisodeDetail struct {
	Episode
	Series SeriesDetail `json:"series"`
}

// Stream is the HLS chunk set an episode plays from.
type Stream struct {
	ID             string `json:"id"`
	NumberOfChunks int    `json:"numberOfChunks"`
}
