package models

// Channel is a live broadcast lane in the timetable.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl"`
}
