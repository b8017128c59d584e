package playback

import (
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// Kind tags a Resolution
type Kind string

const (
	KindDirectPlay     Kind = "DirectPlay"
	KindTranscode      Kind = "Transcode"
	KindUniversalAudio Kind = "UniversalAudio"
)

// Play methods as reported to the server.
const (
	PlayMethodDirectPlay   = "DirectPlay"
	PlayMethodDirectStream = "DirectStream"
	PlayMethodTranscode    = "Transcode"
)

// Resolution is the outcome of resolving an item for playback. It is
// never persisted: a new attempt always resolves again.
type Resolution struct {
	Kind                Kind          `json:"kind"`
	URL                 string        `json:"url"`
	ItemID              string        `json:"item_id"`
	SessionID           string        `json:"session_id,omitempty"`
	MediaSource         *media.Source `json:"media_source,omitempty"`
	LiveStreamID        string        `json:"live_stream_id,omitempty"`
	AudioStreamIndex    *int          `json:"audio_stream_index,omitempty"`
	SubtitleStreamIndex *int          `json:"subtitle_stream_index,omitempty"`
}

// PlayMethod returns the play method to report for this resolution
func (r *Resolution) PlayMethod() string {
	switch r.Kind {
	case KindDirectPlay:
		return PlayMethodDirectPlay
	case KindUniversalAudio:
		return PlayMethodDirectStream
	default:
		return PlayMethodTranscode
	}
}

// MediaSourceID returns the chosen source id, if any
func (r *Resolution) MediaSourceID() string {
	if r.MediaSource == nil {
		return ""
	}
	return r.MediaSource.ID
}
