package models

import "time"

// Program is a scheduled airing of an episode on a channel.
//
// StartAt and EndAt are materialised onto a concrete date when read; the
// stores persist only the time of day.
type Program struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	StartAt      time.Time `json:"startAt"`
	EndAt        time.Time `json:"endAt"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	ChannelID    string    `json:"channelId"`
	EpisodeID    string    `json:"episodeId"`
}

// ProgramSlot is the stored form of a program: times are "HH:MM:SS" clock
// strings without a date.
type ProgramSlot struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Description  string `json:"description" yaml:"description"`
	StartAt      string `json:"startAt" yaml:"startAt"`
	EndAt        string `json:"endAt" yaml:"endAt"`
	ThumbnailURL string `json:"thumbnailUrl" yaml:"thumbnailUrl"`
	ChannelID    string `json:"channelId" yaml:"channelId"`
	EpisodeID    string `json:"episodeId" yaml:"episodeId"`
}

// ProgramDetail is a program with its channel and episode (including the
// episode's series and sibling episodes).
type ProgramDetail struct {
	Program
	Channel       Channel       `json:"channel"`
	Episode       EpisodeDetail `json:"episode"`
	Status        string        `json:"status,omitempty"`
	NextProgramID *string       `json:"nextProgramId,omitempty"`
}
