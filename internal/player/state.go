// Package player holds the authoritative player state pushed by the host and
// the reduced view served to companions.
package player

import "encoding/json"

// Track states reported by the host.
const (
	TrackUnknown   = -1
	TrackPaused    = 0
	TrackPlaying   = 1
	TrackBuffering = 2
)

// Thumbnail is one artwork rendition.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// QueueItem is one entry of the play queue.
type QueueItem struct {
	VideoID    string      `json:"videoId"`
	Title      string      `json:"title"`
	Author     string      `json:"author"`
	Duration   string      `json:"duration"`
	Selected   bool        `json:"selected"`
	Thumbnails []Thumbnail `json:"thumbnails,omitempty"`
}

// Queue is the host's play queue.
type Queue struct {
	Autoplay          bool        `json:"autoplay"`
	Items             []QueueItem `json:"items"`
	AutomixItems      []QueueItem `json:"automixItems"`
	IsGenerating      bool        `json:"isGenerating"`
	IsInfinite        bool        `json:"isInfinite"`
	RepeatMode        int         `json:"repeatMode"`
	SelectedItemIndex int         `json:"selectedItemIndex"`
}

// Video is the currently loaded track.
type Video struct {
	Author          string      `json:"author"`
	ChannelID       string      `json:"channelId"`
	Title           string      `json:"title"`
	Album           *string     `json:"album"`
	AlbumID         *string     `json:"albumId"`
	LikeStatus      int         `json:"likeStatus"`
	Thumbnails      []Thumbnail `json:"thumbnails"`
	DurationSeconds float64     `json:"durationSeconds"`
	ID              string      `json:"id"`
	IsLive          bool        `json:"isLive"`
	MusicVideoType  string      `json:"musicVideoType"`
}

// State is the authoritative snapshot as pushed by the host. Fields the
// view does not expose are kept so the host can round-trip them.
type State struct {
	TrackState        int             `json:"trackState"`
	VideoProgress     float64         `json:"videoProgress"`
	Volume            int             `json:"volume"`
	Muted             bool            `json:"muted"`
	AdPlaying         bool            `json:"adPlaying"`
	Queue             *Queue          `json:"queue"`
	Video             *Video          `json:"video"`
	PlaylistID        string          `json:"playlistId"`
	FullscreenEnabled bool            `json:"fullscreenEnabled,omitempty"`
	Lyrics            json.RawMessage `json:"lyrics,omitempty"`
}

// Playlist is a library playlist as reported by the host.
type Playlist struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
