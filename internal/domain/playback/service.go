package playback

import (
	"context"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// Credentials identify this client to the media server
type Credentials struct {
	ServerURL   string
	AccessToken string
	UserID      string
	DeviceID    string
}

// PlaybackInfoRequest is sent when negotiating a concrete item
type PlaybackInfoRequest struct {
	ItemID              string
	UserID              string
	Profile             CapabilityProfile
	MaxStreamingBitrate int
	StartTimeTicks      int64
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	MediaSourceID       string
}

// PlaybackInfo is the server's negotiation answer
type PlaybackInfo struct {
	MediaSources  []media.Source
	PlaySessionID string
}

// LiveStreamRequest opens a live channel stream
type LiveStreamRequest struct {
	ItemID              string
	UserID              string
	Profile             CapabilityProfile
	MaxStreamingBitrate int
	StartTimeTicks      int64
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	PlaySessionID       string
}

// LiveStream is an opened live stream
type LiveStream struct {
	MediaSource   media.Source
	PlaySessionID string
	LiveStreamID  string
}

// Negotiator negotiates playback with the media server
type Negotiator interface {
	PlaybackInfo(ctx context.Context, req PlaybackInfoRequest) (*PlaybackInfo, error)
	OpenLiveStream(ctx context.Context, req LiveStreamRequest) (*LiveStream, error)
}

// SessionReport carries one playback-session notification
type SessionReport struct {
	ItemID              string
	MediaSourceID       string
	PlaySessionID       string
	LiveStreamID        string
	PositionTicks       int64
	IsPaused            bool
	PlayMethod          string
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	EventName           string
}

// SessionAPI receives playback-session reports
type SessionAPI interface {
	ReportStart(ctx context.Context, report SessionReport) error
	ReportProgress(ctx context.Context, report SessionReport) error
	ReportStopped(ctx context.Context, report SessionReport) error
}
