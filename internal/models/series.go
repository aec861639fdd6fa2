package models

// Series groups episodes that share a title and thumbnail.
type Series struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// SeriesDetail is a series with its episodes ordered by Episode.Order.
type SeriesDetail struct {
	Series
	Episodes []Episode `json:"episodes"`
}
