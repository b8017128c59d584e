package media

import (
	"strings"
	"time"
)

// Stream types reported by the server.
const (
	StreamVideo    = "Video"
	StreamAudio    = "Audio"
	StreamSubtitle = "Subtitle"
)

// Source is one playable rendition of an item. Owned by its parent Item.
type Source struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name,omitempty"`
	Path                 string   `json:"path,omitempty"`
	Container            string   `json:"container,omitempty"`
	Protocol             string   `json:"protocol,omitempty"`
	Size                 int64    `json:"size,omitempty"`
	Bitrate              int      `json:"bitrate,omitempty"`
	RunTimeTicks         int64    `json:"run_time_ticks,omitempty"`
	SupportsDirectPlay   bool     `json:"supports_direct_play"`
	SupportsDirectStream bool     `json:"supports_direct_stream"`
	SupportsTranscoding  bool     `json:"supports_transcoding"`
	TranscodingURL       string   `json:"transcoding_url,omitempty"`
	TranscodingContainer string   `json:"transcoding_container,omitempty"`
	ETag                 string   `json:"etag,omitempty"`
	Streams              []Stream `json:"streams,omitempty"`
}

// Stream describes a single elementary stream inside a source.
type Stream struct {
	Index         int     `json:"index"`
	Type          string  `json:"type"`
	Codec         string  `json:"codec,omitempty"`
	Language      string  `json:"language,omitempty"`
	Title         string  `json:"title,omitempty"`
	IsDefault     bool    `json:"is_default,omitempty"`
	IsExternal    bool    `json:"is_external,omitempty"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	RealFrameRate float64 `json:"real_frame_rate,omitempty"`
	Channels      int     `json:"channels,omitempty"`
}

// VideoStream returns the first video stream.
func (s *Source) VideoStream() (Stream, bool) {
	return s.firstOf(StreamVideo)
}

// AudioStream returns the default audio stream, or the first one.
func (s *Source) AudioStream() (Stream, bool) {
	for _, st := range s.Streams {
		if st.Type == StreamAudio && st.IsDefault {
			return st, true
		}
	}
	return s.firstOf(StreamAudio)
}

// VideoCodec returns the lower-cased codec of the first video stream.
func (s *Source) VideoCodec() string {
	if st, ok := s.VideoStream(); ok {
		return strings.ToLower(st.Codec)
	}
	return ""
}

// AudioCodec returns the lower-cased codec of the default audio stream.
func (s *Source) AudioCodec() string {
	if st, ok := s.AudioStream(); ok {
		return strings.ToLower(st.Codec)
	}
	return ""
}

// RealFrameRate returns the video frame rate, 0 when unknown.
func (s *Source) RealFrameRate() float64 {
	if st, ok := s.VideoStream(); ok {
		return st.RealFrameRate
	}
	return 0
}

// RunTime returns the source duration.
func (s *Source) RunTime() time.Duration {
	return TicksToDuration(s.RunTimeTicks)
}

// TotalFrames estimates the frame count from runtime and frame rate.
func (s *Source) TotalFrames() float64 {
	return s.RunTime().Seconds() * s.RealFrameRate()
}

func (s *Source) firstOf(streamType string) (Stream, bool) {
	for _, st := range s.Streams {
		if st.Type == streamType {
			return st, true
		}
	}
	return Stream{}, false
}
