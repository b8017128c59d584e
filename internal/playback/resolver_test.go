package playback

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

// MockNegotiator is a mock implementation of playback.Negotiator
type MockNegotiator struct {
	mock.Mock
}

func (m *MockNegotiator) PlaybackInfo(ctx context.Context, req playback.PlaybackInfoRequest) (*playback.PlaybackInfo, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*playback.PlaybackInfo), args.Error(1)
}

func (m *MockNegotiator) OpenLiveStream(ctx context.Context, req playback.LiveStreamRequest) (*playback.LiveStream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*playback.LiveStream), args.Error(1)
}

var testCreds = playback.Credentials{
	ServerURL:   "https://media.example.com",
	AccessToken: "tok-123",
	UserID:      "user-1",
	DeviceID:    "dev-1",
}

func intPtr(v int) *int { return &v }

func mp4Source(directPlay bool) media.Source {
	return media.Source{
		ID:                 "src-1",
		Container:          "mp4",
		SupportsDirectPlay: directPlay,
		Streams: []media.Stream{
			{Index: 0, Type: media.StreamVideo, Codec: "h264", RealFrameRate: 24},
			{Index: 1, Type: media.StreamAudio, Codec: "aac", IsDefault: true},
			{Index: 2, Type: media.StreamSubtitle, Codec: "subrip"},
		},
	}
}

func movie() media.Item {
	return media.Item{ID: "item-1", Name: "Film", Type: media.TypeMovie, RunTimeTicks: 3600 * media.TicksPerSecond}
}

func profile(t *testing.T, target playback.Target) playback.CapabilityProfile {
	t.Helper()
	p, err := playback.ProfileFor(target)
	require.NoError(t, err)
	return p
}

func newTestResolver(t *testing.T, n playback.Negotiator) *Resolver {
	r := NewResolver(n, testCreds, time.Second, zaptest.NewLogger(t))
	r.newID = func() string { return "generated-session" }
	return r
}

func TestResolveDirectPlay(t *testing.T) {
	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.MatchedBy(func(req playback.PlaybackInfoRequest) bool {
		return req.ItemID == "item-1" && req.MaxStreamingBitrate == 8_000_000 && req.UserID == "user-1"
	})).Return(&playback.PlaybackInfo{
		MediaSources:  []media.Source{mp4Source(true)},
		PlaySessionID: "play-1",
	}, nil)

	res, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item:             movie(),
		Profile:          profile(t, playback.TargetLocalIOS),
		MaxBitrate:       8_000_000,
		AudioStreamIndex: intPtr(1),
	})
	require.NoError(t, err)

	assert.Equal(t, playback.KindDirectPlay, res.Kind)
	assert.Equal(t, "play-1", res.SessionID)
	assert.Equal(t, playback.PlayMethodDirectPlay, res.PlayMethod())

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "/Videos/item-1/stream", u.Path)
	assert.Equal(t, "tok-123", u.Query().Get("api_key"))
	assert.Equal(t, "8000000", u.Query().Get("MaxStreamingBitrate"))
	assert.Equal(t, "dev-1", u.Query().Get("deviceId"))
	assert.Equal(t, "1", u.Query().Get("AudioStreamIndex"))
	assert.Equal(t, "play-1", u.Query().Get("PlaySessionId"))
	n.AssertExpectations(t)
}

func TestResolveTranscode(t *testing.T) {
	src := mp4Source(false)
	src.Container = "mkv"
	src.TranscodingURL = "/videos/item-1/master.m3u8?MediaSourceId=src-1&ApiKey=tok-123"

	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources:  []media.Source{src},
		PlaySessionID: "play-2",
	}, nil)

	res, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item:    movie(),
		Profile: profile(t, playback.TargetCast),
	})
	require.NoError(t, err)

	assert.Equal(t, playback.KindTranscode, res.Kind)
	assert.NotEmpty(t, res.SessionID)
	require.NotNil(t, res.MediaSource)
	assert.Equal(t, "src-1", res.MediaSource.ID)

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "media.example.com", u.Host)
	assert.Equal(t, "/videos/item-1/master.m3u8", u.Path)
	assert.Equal(t, "Hls", u.Query().Get("SubtitleMethod"))
	assert.Empty(t, u.Query().Get("api_key"), "existing ApiKey is kept")
}

func TestResolveTranscodeWithSubtitle(t *testing.T) {
	src := mp4Source(false)
	src.TranscodingURL = "/videos/item-1/master.m3u8?SubtitleMethod=External"
	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources: []media.Source{src}, PlaySessionID: "p",
	}, nil)
	r := newTestResolver(t, n)

	res, err := r.Resolve(context.Background(), ResolveRequest{
		Item: movie(), Profile: profile(t, playback.TargetCast), SubtitleStreamIndex: intPtr(2),
	})
	require.NoError(t, err)
	u, _ := url.Parse(res.URL)
	assert.Equal(t, "External", u.Query().Get("SubtitleMethod"), "server choice is kept when a subtitle is requested")
	assert.Equal(t, "tok-123", u.Query().Get("api_key"))

	src.TranscodingURL = "/videos/item-1/master.m3u8"
	n2 := new(MockNegotiator)
	n2.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources: []media.Source{src}, PlaySessionID: "p",
	}, nil)
	res, err = newTestResolver(t, n2).Resolve(context.Background(), ResolveRequest{
		Item: movie(), Profile: profile(t, playback.TargetCast), SubtitleStreamIndex: intPtr(2),
	})
	require.NoError(t, err)
	u, _ = url.Parse(res.URL)
	assert.Equal(t, "Encode", u.Query().Get("SubtitleMethod"))

	res, err = newTestResolver(t, n2).Resolve(context.Background(), ResolveRequest{
		Item: movie(), Profile: profile(t, playback.TargetCast), SubtitleStreamIndex: intPtr(-1),
	})
	require.NoError(t, err)
	u, _ = url.Parse(res.URL)
	assert.Equal(t, "Hls", u.Query().Get("SubtitleMethod"))
}

func TestResolveNeverDirectPlaysWhatProfileRejects(t *testing.T) {
	// Server claims direct play but the low-power profile cannot decode hevc.
	src := mp4Source(true)
	src.Streams[0].Codec = "hevc"

	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources: []media.Source{src}, PlaySessionID: "p",
	}, nil)

	_, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item: movie(), Profile: profile(t, playback.TargetLowPower),
	})
	var unsupported *playback.UnsupportedMediaError
	require.ErrorAs(t, err, &unsupported)
	assert.False(t, playback.IsRetryable(err))
}

func TestResolveUniversalAudio(t *testing.T) {
	item := media.Item{ID: "song-1", Type: media.TypeAudio, MediaType: media.MediaTypeAudio, RunTimeTicks: 100}
	src := media.Source{ID: "a-src", Container: "ape", Streams: []media.Stream{{Type: media.StreamAudio, Codec: "ape"}}}

	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources: []media.Source{src}, PlaySessionID: "play-a",
	}, nil)

	res, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item: item, Profile: profile(t, playback.TargetLocalIOS),
	})
	require.NoError(t, err)
	assert.Equal(t, playback.KindUniversalAudio, res.Kind)

	u, _ := url.Parse(res.URL)
	assert.Equal(t, "/Audio/song-1/universal", u.Path)
	assert.Equal(t, "opus,webm|opus,mp3,aac,m4a|aac,m4b|aac,flac,webma,webm|webma,wav,ogg", u.Query().Get("Container"))
	assert.Equal(t, "play-a", u.Query().Get("PlaySessionId"))
}

func TestResolveNegotiationFailure(t *testing.T) {
	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item: movie(), Profile: profile(t, playback.TargetCast),
	})
	var failed *playback.ResolutionFailedError
	require.ErrorAs(t, err, &failed)
	assert.True(t, playback.IsRetryable(err))
	n.AssertNumberOfCalls(t, "PlaybackInfo", 1)
}

func TestResolveAppliesTimeout(t *testing.T) {
	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
	}).Return(nil, context.DeadlineExceeded)

	_, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item: movie(), Profile: profile(t, playback.TargetCast),
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveMediaSourceSelection(t *testing.T) {
	first := mp4Source(true)
	second := mp4Source(true)
	second.ID = "src-2"

	n := new(MockNegotiator)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources: []media.Source{first, second}, PlaySessionID: "p",
	}, nil)
	r := newTestResolver(t, n)

	res, err := r.Resolve(context.Background(), ResolveRequest{Item: movie(), Profile: profile(t, playback.TargetLocalIOS), MediaSourceID: "src-2"})
	require.NoError(t, err)
	assert.Equal(t, "src-2", res.MediaSourceID())

	res, err = r.Resolve(context.Background(), ResolveRequest{Item: movie(), Profile: profile(t, playback.TargetLocalIOS)})
	require.NoError(t, err)
	assert.Equal(t, "src-1", res.MediaSourceID())

	_, err = r.Resolve(context.Background(), ResolveRequest{Item: movie(), Profile: profile(t, playback.TargetLocalIOS), MediaSourceID: "nope"})
	var unsupported *playback.UnsupportedMediaError
	assert.ErrorAs(t, err, &unsupported)
}

func TestResolveLiveChannel(t *testing.T) {
	channel := media.Item{ID: "chan-1", Type: media.TypeTvChannel}

	n := new(MockNegotiator)
	n.On("OpenLiveStream", mock.Anything, mock.MatchedBy(func(req playback.LiveStreamRequest) bool {
		return req.ItemID == "chan-1" && req.PlaySessionID == "generated-session"
	})).Return(&playback.LiveStream{
		MediaSource:   media.Source{ID: "live", TranscodingURL: "/videos/chan-1/live.m3u8"},
		PlaySessionID: "generated-session",
		LiveStreamID:  "ls-1",
	}, nil)

	res, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item: channel, Profile: profile(t, playback.TargetCast),
	})
	require.NoError(t, err)
	assert.Equal(t, playback.KindTranscode, res.Kind)
	assert.Equal(t, "generated-session", res.SessionID)
	assert.Equal(t, "ls-1", res.LiveStreamID)
	n.AssertNotCalled(t, "PlaybackInfo", mock.Anything, mock.Anything)
}

func TestResolveLiveProgramFallsBackToPlaybackInfo(t *testing.T) {
	program := media.Item{ID: "prog-1", Type: media.TypeProgram, ChannelID: "chan-9"}

	n := new(MockNegotiator)
	n.On("OpenLiveStream", mock.Anything, mock.MatchedBy(func(req playback.LiveStreamRequest) bool {
		return req.ItemID == "chan-9"
	})).Return(&playback.LiveStream{MediaSource: media.Source{ID: "live"}}, nil)
	n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
		MediaSources: []media.Source{mp4Source(true)}, PlaySessionID: "p",
	}, nil)

	res, err := newTestResolver(t, n).Resolve(context.Background(), ResolveRequest{
		Item: program, Profile: profile(t, playback.TargetLocalIOS),
	})
	require.NoError(t, err)
	assert.Equal(t, playback.KindDirectPlay, res.Kind)
}

func TestResolveIsIdempotentPerDecisionBranch(t *testing.T) {
	transcodeSrc := mp4Source(false)
	transcodeSrc.TranscodingURL = "/videos/item-1/master.m3u8"

	cases := map[string]media.Source{
		"direct":    mp4Source(true),
		"transcode": transcodeSrc,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			n := new(MockNegotiator)
			n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
				MediaSources: []media.Source{src}, PlaySessionID: "p",
			}, nil).Once()
			n.On("PlaybackInfo", mock.Anything, mock.Anything).Return(&playback.PlaybackInfo{
				MediaSources: []media.Source{src}, PlaySessionID: "q",
			}, nil).Once()

			r := newTestResolver(t, n)
			req := ResolveRequest{Item: movie(), Profile: profile(t, playback.TargetLocalIOS), MaxBitrate: 4_000_000}
			first, err := r.Resolve(context.Background(), req)
			require.NoError(t, err)
			second, err := r.Resolve(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, first.Kind, second.Kind)
			assert.NotEqual(t, first.SessionID, second.SessionID)
		})
	}
}
