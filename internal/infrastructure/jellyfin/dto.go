package jellyfin

import (
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

// Wire shapes of the server API. Only the fields the engine consumes are
// declared.

type baseItemDto struct {
	ID           string                              `json:"Id"`
	Name         string                              `json:"Name"`
	Type         string                              `json:"Type"`
	MediaType    string                              `json:"MediaType,omitempty"`
	SeriesName   string                              `json:"SeriesName,omitempty"`
	ChannelID    string                              `json:"ChannelId,omitempty"`
	RunTimeTicks int64                               `json:"RunTimeTicks,omitempty"`
	MediaSources []mediaSourceInfo                   `json:"MediaSources,omitempty"`
	Trickplay    map[string]map[int]trickplayInfoDto `json:"Trickplay,omitempty"`
}

type trickplayInfoDto struct {
	Width          int   `json:"Width"`
	Height         int   `json:"Height"`
	TileWidth      int   `json:"TileWidth"`
	TileHeight     int   `json:"TileHeight"`
	ThumbnailCount int   `json:"ThumbnailCount"`
	Interval       int64 `json:"Interval"`
	Bandwidth      int   `json:"Bandwidth"`
}

type mediaSourceInfo struct {
	ID                   string            `json:"Id"`
	Name                 string            `json:"Name,omitempty"`
	Path                 string            `json:"Path,omitempty"`
	Protocol             string            `json:"Protocol,omitempty"`
	Container            string            `json:"Container,omitempty"`
	Size                 int64             `json:"Size,omitempty"`
	Bitrate              int               `json:"Bitrate,omitempty"`
	RunTimeTicks         int64             `json:"RunTimeTicks,omitempty"`
	ETag                 string            `json:"ETag,omitempty"`
	LiveStreamID         string            `json:"LiveStreamId,omitempty"`
	SupportsDirectPlay   bool              `json:"SupportsDirectPlay"`
	SupportsDirectStream bool              `json:"SupportsDirectStream"`
	SupportsTranscoding  bool              `json:"SupportsTranscoding"`
	TranscodingURL       string            `json:"TranscodingUrl,omitempty"`
	TranscodingContainer string            `json:"TranscodingContainer,omitempty"`
	MediaStreams         []mediaStreamInfo `json:"MediaStreams,omitempty"`
}

type mediaStreamInfo struct {
	Index         int     `json:"Index"`
	Type          string  `json:"Type"`
	Codec         string  `json:"Codec,omitempty"`
	Language      string  `json:"Language,omitempty"`
	Title         string  `json:"DisplayTitle,omitempty"`
	IsDefault     bool    `json:"IsDefault"`
	IsExternal    bool    `json:"IsExternal"`
	Width         int     `json:"Width,omitempty"`
	Height        int     `json:"Height,omitempty"`
	RealFrameRate float64 `json:"RealFrameRate,omitempty"`
	Channels      int     `json:"Channels,omitempty"`
}

type playbackInfoRequestDto struct {
	UserID              string                 `json:"UserId"`
	MaxStreamingBitrate int                    `json:"MaxStreamingBitrate,omitempty"`
	StartTimeTicks      int64                  `json:"StartTimeTicks,omitempty"`
	AudioStreamIndex    *int                   `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int                   `json:"SubtitleStreamIndex,omitempty"`
	MediaSourceID       string                 `json:"MediaSourceId,omitempty"`
	DeviceProfile       playback.DeviceProfile `json:"DeviceProfile"`
	EnableDirectPlay    bool                   `json:"EnableDirectPlay"`
	EnableDirectStream  bool                   `json:"EnableDirectStream"`
	EnableTranscoding   bool                   `json:"EnableTranscoding"`
	AutoOpenLiveStream  bool                   `json:"AutoOpenLiveStream"`
}

type playbackInfoResponseDto struct {
	MediaSources  []mediaSourceInfo `json:"MediaSources"`
	PlaySessionID string            `json:"PlaySessionId,omitempty"`
	ErrorCode     string            `json:"ErrorCode,omitempty"`
}

type openLiveStreamRequestDto struct {
	DeviceProfile playback.DeviceProfile `json:"DeviceProfile"`
}

type liveStreamResponseDto struct {
	MediaSource mediaSourceInfo `json:"MediaSource"`
}

type playbackReportDto struct {
	ItemID              string `json:"ItemId"`
	MediaSourceID       string `json:"MediaSourceId,omitempty"`
	PlaySessionID       string `json:"PlaySessionId,omitempty"`
	LiveStreamID        string `json:"LiveStreamId,omitempty"`
	PositionTicks       int64  `json:"PositionTicks"`
	IsPaused            bool   `json:"IsPaused"`
	CanSeek             bool   `json:"CanSeek"`
	PlayMethod          string `json:"PlayMethod,omitempty"`
	AudioStreamIndex    *int   `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int   `json:"SubtitleStreamIndex,omitempty"`
	EventName           string `json:"EventName,omitempty"`
}

func (d *baseItemDto) toDomain() media.Item {
	item := media.Item{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		MediaType:    d.MediaType,
		SeriesName:   d.SeriesName,
		ChannelID:    d.ChannelID,
		RunTimeTicks: d.RunTimeTicks,
	}
	for _, s := range d.MediaSources {
		item.MediaSources = append(item.MediaSources, s.toDomain())
	}
	if len(d.Trickplay) > 0 {
		item.Trickplay = make(map[string]map[int]media.TrickplayInfo, len(d.Trickplay))
		for sourceID, byWidth := range d.Trickplay {
			grids := make(map[int]media.TrickplayInfo, len(byWidth))
			for width, info := range byWidth {
				grids[width] = media.TrickplayInfo{
					Width:          info.Width,
					Height:         info.Height,
					TileWidth:      info.TileWidth,
					TileHeight:     info.TileHeight,
					ThumbnailCount: info.ThumbnailCount,
					Interval:       info.Interval,
					Bandwidth:      info.Bandwidth,
				}
			}
			item.Trickplay[sourceID] = grids
		}
	}
	return item
}

func (s *mediaSourceInfo) toDomain() media.Source {
	src := media.Source{
		ID:                   s.ID,
		Name:                 s.Name,
		Path:                 s.Path,
		Container:            s.Container,
		Protocol:             s.Protocol,
		Size:                 s.Size,
		Bitrate:              s.Bitrate,
		RunTimeTicks:         s.RunTimeTicks,
		SupportsDirectPlay:   s.SupportsDirectPlay,
		SupportsDirectStream: s.SupportsDirectStream,
		SupportsTranscoding:  s.SupportsTranscoding,
		TranscodingURL:       s.TranscodingURL,
		TranscodingContainer: s.TranscodingContainer,
		ETag:                 s.ETag,
	}
	for _, st := range s.MediaStreams {
		src.Streams = append(src.Streams, media.Stream{
			Index:         st.Index,
			Type:          st.Type,
			Codec:         st.Codec,
			Language:      st.Language,
			Title:         st.Title,
			IsDefault:     st.IsDefault,
			IsExternal:    st.IsExternal,
			Width:         st.Width,
			Height:        st.Height,
			RealFrameRate: st.RealFrameRate,
			Channels:      st.Channels,
		})
	}
	return src
}

func reportFromDomain(r playback.SessionReport) playbackReportDto {
	return playbackReportDto{
		ItemID:              r.ItemID,
		MediaSourceID:       r.MediaSourceID,
		PlaySessionID:       r.PlaySessionID,
		LiveStreamID:        r.LiveStreamID,
		PositionTicks:       r.PositionTicks,
		IsPaused:            r.IsPaused,
		CanSeek:             true,
		PlayMethod:          r.PlayMethod,
		AudioStreamIndex:    r.AudioStreamIndex,
		SubtitleStreamIndex: r.SubtitleStreamIndex,
		EventName:           r.EventName,
	}
}
