package player

// View is the projection served by GET /state and the state-update event.
type View struct {
	Player     PlayerView `json:"player"`
	Video      *VideoView `json:"video"`
	PlaylistID string     `json:"playlistId"`
}

// PlayerView is the playback part of View.
type PlayerView struct {
	TrackState    int        `json:"trackState"`
	VideoProgress float64    `json:"videoProgress"`
	Volume        int        `json:"volume"`
	Muted         bool       `json:"muted"`
	AdPlaying     bool       `json:"adPlaying"`
	Queue         *QueueView `json:"queue"`
}

// QueueView mirrors Queue.
type QueueView struct {
	Autoplay          bool        `json:"autoplay"`
	Items             []QueueItem `json:"items"`
	AutomixItems      []QueueItem `json:"automixItems"`
	IsGenerating      bool        `json:"isGenerating"`
	IsInfinite        bool        `json:"isInfinite"`
	RepeatMode        int         `json:"repeatMode"`
	SelectedItemIndex int         `json:"selectedItemIndex"`
}

// VideoView is the track metadata part of View.
type VideoView struct {
	Author          string      `json:"author"`
	ChannelID       string      `json:"channelId"`
	Title           string      `json:"title"`
	Album           *string     `json:"album"`
	AlbumID         *string     `json:"albumId"`
	LikeStatus      int         `json:"likeStatus"`
	Thumbnails      []Thumbnail `json:"thumbnails"`
	DurationSeconds float64     `json:"durationSeconds"`
	ID              string      `json:"id"`
}

// Project derives the companion view from s. Slices are copied so the view
// stays valid after the store moves on.
func Project(s State) View {
	v := View{
		Player: PlayerView{
			TrackState:    s.TrackState,
			VideoProgress: s.VideoProgress,
			Volume:        s.Volume,
			Muted:         s.Muted,
			AdPlaying:     s.AdPlaying,
		},
		PlaylistID: s.PlaylistID,
	}

	if q := s.Queue; q != nil {
		v.Player.Queue = &QueueView{
			Autoplay:          q.Autoplay,
			Items:             cloneItems(q.Items),
			AutomixItems:      cloneItems(q.AutomixItems),
			IsGenerating:      q.IsGenerating,
			IsInfinite:        q.IsInfinite,
			RepeatMode:        q.RepeatMode,
			SelectedItemIndex: q.SelectedItemIndex,
		}
	}

	if vid := s.Video; vid != nil {
		v.Video = &VideoView{
			Author:          vid.Author,
			ChannelID:       vid.ChannelID,
			Title:           vid.Title,
			Album:           vid.Album,
			AlbumID:         vid.AlbumID,
			LikeStatus:      vid.LikeStatus,
			Thumbnails:      append([]Thumbnail(nil), vid.Thumbnails...),
			DurationSeconds: vid.DurationSeconds,
			ID:              vid.ID,
		}
	}
	return v
}

func cloneItems(items []QueueItem) []QueueItem {
	if items == nil {
		return []QueueItem{}
	}
	out := make([]QueueItem, len(items))
	for i, it := range items {
		it.Thumbnails = append([]Thumbnail(nil), it.Thumbnails...)
		out[i] = it
	}
	return out
}
