package playback

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	"github.com/narwhalmedia/narwhal-player/internal/metrics"
)

// universalAudioContainers is the container list offered to the universal
// audio endpoint regardless of target.
const universalAudioContainers = "opus,webm|opus,mp3,aac,m4a|aac,m4b|aac,flac,webma,webm|webma,wav,ogg"

// Subtitle delivery methods understood by the server.
const (
	subtitleMethodHls    = "Hls"
	subtitleMethodEncode = "Encode"
)

// ResolveRequest holds the inputs of one resolution
type ResolveRequest struct {
	Item                media.Item
	UserID              string
	Profile             playback.CapabilityProfile
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	MaxBitrate          int
	StartPositionTicks  int64
	MediaSourceID       string
}

func (r ResolveRequest) subtitleRequested() bool {
	return r.SubtitleStreamIndex != nil && *r.SubtitleStreamIndex >= 0
}

// Resolver decides how an item is played and produces its URL
type Resolver struct {
	negotiator playback.Negotiator
	creds      playback.Credentials
	timeout    time.Duration
	logger     *zap.Logger
	newID      func() string
}

// NewResolver creates a new stream resolver. Each server round trip is
// bounded by timeout and never retried.
func NewResolver(negotiator playback.Negotiator, creds playback.Credentials, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		negotiator: negotiator,
		creds:      creds,
		timeout:    timeout,
		logger:     logger.Named("resolver"),
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Resolve turns an item and a capability profile into a playable URL
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*playback.Resolution, error) {
	item := req.Item
	if err := item.Validate(); err != nil {
		return nil, &playback.ResolutionFailedError{ItemID: item.ID, Err: err}
	}
	if req.UserID == "" {
		req.UserID = r.creds.UserID
	}
	bitrate := req.Profile.EffectiveBitrate(req.MaxBitrate)

	if item.IsLive() {
		res, err := r.resolveLive(ctx, req, bitrate)
		if err != nil {
			metrics.RecordResolveFailure("live")
			return nil, err
		}
		if res != nil {
			r.record(req, res)
			return res, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	info, err := r.negotiator.PlaybackInfo(callCtx, playback.PlaybackInfoRequest{
		ItemID:              item.ID,
		UserID:              req.UserID,
		Profile:             req.Profile,
		MaxStreamingBitrate: bitrate,
		StartTimeTicks:      req.StartPositionTicks,
		AudioStreamIndex:    req.AudioStreamIndex,
		SubtitleStreamIndex: req.SubtitleStreamIndex,
		MediaSourceID:       req.MediaSourceID,
	})
	if err != nil {
		metrics.RecordResolveFailure("negotiation")
		return nil, &playback.ResolutionFailedError{ItemID: item.ID, Err: err}
	}

	source, err := pickSource(item.ID, req, info.MediaSources)
	if err != nil {
		metrics.RecordResolveFailure("unsupported")
		return nil, err
	}

	res := &playback.Resolution{
		ItemID:              item.ID,
		SessionID:           info.PlaySessionID,
		MediaSource:         source,
		AudioStreamIndex:    req.AudioStreamIndex,
		SubtitleStreamIndex: req.SubtitleStreamIndex,
	}

	switch {
	case source.TranscodingURL != "":
		res.Kind = playback.KindTranscode
		res.URL, err = r.transcodeURL(source.TranscodingURL, req, source)
	case source.SupportsDirectPlay && req.Profile.CanDirectPlay(source):
		res.Kind = playback.KindDirectPlay
		res.URL, err = r.directPlayURL(item.ID, source.ID, bitrate, req, info.PlaySessionID)
	case item.IsAudio():
		res.Kind = playback.KindUniversalAudio
		res.URL, err = r.universalAudioURL(item.ID, source.ID, bitrate, req, info.PlaySessionID)
	default:
		metrics.RecordResolveFailure("unsupported")
		return nil, &playback.UnsupportedMediaError{
			ItemID:  item.ID,
			Profile: req.Profile.Name,
			Reason:  fmt.Sprintf("source %s offers neither a transcode nor direct play", source.ID),
		}
	}
	if err != nil {
		metrics.RecordResolveFailure("negotiation")
		return nil, &playback.ResolutionFailedError{ItemID: item.ID, Err: err}
	}

	r.record(req, res)
	return res, nil
}

func (r *Resolver) resolveLive(ctx context.Context, req ResolveRequest, bitrate int) (*playback.Resolution, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ls, err := r.negotiator.OpenLiveStream(callCtx, playback.LiveStreamRequest{
		ItemID:              req.Item.LiveChannelID(),
		UserID:              req.UserID,
		Profile:             req.Profile,
		MaxStreamingBitrate: bitrate,
		StartTimeTicks:      req.StartPositionTicks,
		AudioStreamIndex:    req.AudioStreamIndex,
		SubtitleStreamIndex: req.SubtitleStreamIndex,
		PlaySessionID:       r.newID(),
	})
	if err != nil {
		return nil, &playback.ResolutionFailedError{ItemID: req.Item.ID, Err: fmt.Errorf("failed to open live stream: %w", err)}
	}
	if ls.MediaSource.TranscodingURL == "" {
		r.logger.Debug("live stream has no transcode url, negotiating item",
			zap.String("item_id", req.Item.ID))
		return nil, nil
	}

	source := ls.MediaSource
	u, err := r.transcodeURL(source.TranscodingURL, req, &source)
	if err != nil {
		return nil, &playback.ResolutionFailedError{ItemID: req.Item.ID, Err: err}
	}
	return &playback.Resolution{
		Kind:                playback.KindTranscode,
		URL:                 u,
		ItemID:              req.Item.ID,
		SessionID:           ls.PlaySessionID,
		MediaSource:         &source,
		LiveStreamID:        ls.LiveStreamID,
		AudioStreamIndex:    req.AudioStreamIndex,
		SubtitleStreamIndex: req.SubtitleStreamIndex,
	}, nil
}

func pickSource(itemID string, req ResolveRequest, sources []media.Source) (*media.Source, error) {
	if len(sources) == 0 {
		return nil, &playback.UnsupportedMediaError{ItemID: itemID, Profile: req.Profile.Name, Reason: "server returned no media sources"}
	}
	if req.MediaSourceID == "" {
		return &sources[0], nil
	}
	for i := range sources {
		if sources[i].ID == req.MediaSourceID {
			return &sources[i], nil
		}
	}
	return nil, &playback.UnsupportedMediaError{
		ItemID:  itemID,
		Profile: req.Profile.Name,
		Reason:  fmt.Sprintf("media source %s was not offered", req.MediaSourceID),
	}
}

// transcodeURL makes a server transcode URL absolute and guarantees a
// subtitle delivery method. Without a requested subtitle the method is
// forced to HLS so no subtitle is burned in.
func (r *Resolver) transcodeURL(raw string, req ResolveRequest, source *media.Source) (string, error) {
	u, err := r.absolute(raw)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if !req.subtitleRequested() {
		q.Set("SubtitleMethod", subtitleMethodHls)
	} else if q.Get("SubtitleMethod") == "" {
		q.Set("SubtitleMethod", r.subtitleMethod(req, source))
	}
	if q.Get("api_key") == "" && q.Get("ApiKey") == "" && r.creds.AccessToken != "" {
		q.Set("api_key", r.creds.AccessToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Resolver) subtitleMethod(req ResolveRequest, source *media.Source) string {
	for _, st := range source.Streams {
		if st.Type != media.StreamSubtitle || st.Index != *req.SubtitleStreamIndex {
			continue
		}
		if method, ok := req.Profile.SubtitleMethod(st.Codec); ok {
			return method
		}
	}
	return subtitleMethodEncode
}

func (r *Resolver) directPlayURL(itemID, sourceID string, bitrate int, req ResolveRequest, sessionID string) (string, error) {
	q := url.Values{
		"static":        {"true"},
		"mediaSourceId": {sourceID},
		"deviceId":      {r.creds.DeviceID},
		"api_key":       {r.creds.AccessToken},
	}
	r.addStreamParams(q, bitrate, req, sessionID)
	return r.build(fmt.Sprintf("/Videos/%s/stream", url.PathEscape(itemID)), q)
}

func (r *Resolver) universalAudioURL(itemID, sourceID string, bitrate int, req ResolveRequest, sessionID string) (string, error) {
	q := url.Values{
		"UserId":               {req.UserID},
		"DeviceId":             {r.creds.DeviceID},
		"api_key":              {r.creds.AccessToken},
		"MediaSourceId":        {sourceID},
		"Container":            {universalAudioContainers},
		"TranscodingContainer": {"ts"},
		"TranscodingProtocol":  {"hls"},
		"AudioCodec":           {"aac"},
		"EnableRedirection":    {"true"},
		"EnableRemoteMedia":    {"false"},
	}
	r.addStreamParams(q, bitrate, req, sessionID)
	return r.build(fmt.Sprintf("/Audio/%s/universal", url.PathEscape(itemID)), q)
}

func (r *Resolver) addStreamParams(q url.Values, bitrate int, req ResolveRequest, sessionID string) {
	if bitrate > 0 {
		q.Set("MaxStreamingBitrate", strconv.Itoa(bitrate))
	}
	if req.AudioStreamIndex != nil {
		q.Set("AudioStreamIndex", strconv.Itoa(*req.AudioStreamIndex))
	}
	if req.SubtitleStreamIndex != nil {
		q.Set("SubtitleStreamIndex", strconv.Itoa(*req.SubtitleStreamIndex))
	}
	if req.StartPositionTicks > 0 {
		q.Set("StartTimeTicks", strconv.FormatInt(req.StartPositionTicks, 10))
	}
	if sessionID != "" {
		q.Set("PlaySessionId", sessionID)
	}
}

func (r *Resolver) build(path string, q url.Values) (string, error) {
	u, err := r.absolute(path)
	if err != nil {
		return "", err
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Resolver) absolute(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	base, err := url.Parse(strings.TrimRight(r.creds.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	out := base.JoinPath(u.EscapedPath())
	out.RawQuery = u.RawQuery
	return out, nil
}

func (r *Resolver) record(req ResolveRequest, res *playback.Resolution) {
	metrics.RecordResolveDecision(string(res.Kind), string(req.Profile.Target))
	r.logger.Info("resolved playback",
		zap.String("item_id", res.ItemID),
		zap.String("decision", string(res.Kind)),
		zap.String("media_source_id", res.MediaSourceID()),
		zap.String("play_session_id", res.SessionID),
		zap.String("profile", req.Profile.Name))
}
