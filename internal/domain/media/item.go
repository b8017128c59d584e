package media

import (
	"sort"
	"strings"
	"time"
)

// Item types the engine treats specially.
const (
	TypeMovie     = "Movie"
	TypeEpisode   = "Episode"
	TypeAudio     = "Audio"
	TypeTvChannel = "TvChannel"
	TypeProgram   = "Program"

	MediaTypeAudio = "Audio"
	MediaTypeVideo = "Video"
)

// Item is a catalog item as fetched from the media server. It is treated as
// immutable for the duration of a playback or download operation.
type Item struct {
	ID           string                           `json:"id"`
	Name         string                           `json:"name"`
	Type         string                           `json:"type"`
	MediaType    string                           `json:"media_type,omitempty"`
	SeriesName   string                           `json:"series_name,omitempty"`
	ChannelID    string                           `json:"channel_id,omitempty"`
	RunTimeTicks int64                            `json:"run_time_ticks"`
	MediaSources []Source                         `json:"media_sources,omitempty"`
	Trickplay    map[string]map[int]TrickplayInfo `json:"trickplay,omitempty"`
}

// Validate checks the fields every engine operation relies on.
func (i *Item) Validate() error {
	if i == nil {
		return NewValidationError("item", "is nil")
	}
	if strings.TrimSpace(i.ID) == "" {
		return NewValidationError("id", "is required")
	}
	if i.RunTimeTicks < 0 {
		return NewValidationError("run_time_ticks", "must not be negative")
	}
	return nil
}

// IsLive reports whether the item is a live channel or a program airing on one.
func (i *Item) IsLive() bool {
	return i.Type == TypeTvChannel || i.Type == TypeProgram
}

// LiveChannelID returns the channel to negotiate a live stream against.
func (i *Item) LiveChannelID() string {
	if i.Type == TypeProgram && i.ChannelID != "" {
		return i.ChannelID
	}
	return i.ID
}

// IsAudio reports whether the item is audio-only.
func (i *Item) IsAudio() bool {
	return i.Type == TypeAudio || i.MediaType == MediaTypeAudio
}

// RunTime returns the item's length.
func (i *Item) RunTime() time.Duration {
	return TicksToDuration(i.RunTimeTicks)
}

// Source returns the media source with the given id, or the first source
// when id is empty.
func (i *Item) Source(id string) (*Source, bool) {
	if len(i.MediaSources) == 0 {
		return nil, false
	}
	if id == "" {
		return &i.MediaSources[0], true
	}
	for idx := range i.MediaSources {
		if i.MediaSources[idx].ID == id {
			return &i.MediaSources[idx], true
		}
	}
	return nil, false
}

// TrickplayResolution picks the trickplay grid to use for seek previews:
// the first media source's grids (falling back to any source in id order)
// and, within it, the smallest width.
func (i *Item) TrickplayResolution() (sourceID string, info TrickplayInfo, ok bool) {
	if len(i.Trickplay) == 0 {
		return "", TrickplayInfo{}, false
	}

	candidates := make([]string, 0, len(i.Trickplay))
	if len(i.MediaSources) > 0 {
		if _, exists := i.Trickplay[i.MediaSources[0].ID]; exists {
			candidates = append(candidates, i.MediaSources[0].ID)
		}
	}
	if len(candidates) == 0 {
		for id := range i.Trickplay {
			candidates = append(candidates, id)
		}
		sort.Strings(candidates)
	}

	for _, id := range candidates {
		widths := make([]int, 0, len(i.Trickplay[id]))
		for w := range i.Trickplay[id] {
			widths = append(widths, w)
		}
		if len(widths) == 0 {
			continue
		}
		sort.Ints(widths)
		return id, i.Trickplay[id][widths[0]], true
	}
	return "", TrickplayInfo{}, false
}
