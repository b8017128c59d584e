package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

func videoSource(container, video, audio string) *media.Source {
	return &media.Source{
		ID:        "src",
		Container: container,
		Streams: []media.Stream{
			{Index: 0, Type: media.StreamVideo, Codec: video, RealFrameRate: 24},
			{Index: 1, Type: media.StreamAudio, Codec: audio, IsDefault: true},
		},
	}
}

func TestProfileForReturnsIndependentValues(t *testing.T) {
	a, err := ProfileFor(TargetLocalIOS)
	require.NoError(t, err)
	a.DirectPlay[0].Container = "mkv"

	b, err := ProfileFor(TargetLocalIOS)
	require.NoError(t, err)
	assert.Equal(t, "mp4,m4v,mov", b.DirectPlay[0].Container)

	_, err = ProfileFor(Target("toaster"))
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget(" Cast ")
	require.NoError(t, err)
	assert.Equal(t, TargetCast, target)

	_, err = ParseTarget("desktop")
	assert.Error(t, err)
}

func TestCanDirectPlay(t *testing.T) {
	ios, err := ProfileFor(TargetLocalIOS)
	require.NoError(t, err)
	low, err := ProfileFor(TargetLowPower)
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile CapabilityProfile
		source  *media.Source
		want    bool
	}{
		{"matching mp4", ios, videoSource("mp4", "h264", "aac"), true},
		{"container list", ios, videoSource("mov,mp4,m4a", "hevc", "ac3"), true},
		{"unsupported container", ios, videoSource("mkv", "h264", "aac"), false},
		{"unsupported video codec", low, videoSource("mp4", "hevc", "aac"), false},
		{"unknown audio codec", ios, videoSource("mp4", "h264", ""), false},
		{"unknown container", ios, videoSource("", "h264", "aac"), false},
		{"nil source", ios, nil, false},
		{"audio only", ios, &media.Source{Container: "flac", Streams: []media.Stream{{Type: media.StreamAudio, Codec: "flac"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.CanDirectPlay(tt.source))
		})
	}
}

func TestCanDirectPlayRespectsStaticBitrate(t *testing.T) {
	low, err := ProfileFor(TargetLowPower)
	require.NoError(t, err)

	src := videoSource("mp4", "h264", "aac")
	src.Bitrate = low.MaxStaticBitrate + 1
	assert.False(t, low.CanDirectPlay(src))
}

func TestDeviceProfileAndHelpers(t *testing.T) {
	cast, err := ProfileFor(TargetCast)
	require.NoError(t, err)

	dp := cast.DeviceProfile()
	assert.Equal(t, "narwhal-cast/v2", dp.Name)
	assert.Equal(t, cast.MaxStreamingBitrate, dp.MaxStreamingBitrate)
	assert.Len(t, dp.DirectPlayProfiles, len(cast.DirectPlay))

	method, ok := cast.SubtitleMethod("VTT")
	assert.True(t, ok)
	assert.Equal(t, "Hls", method)

	assert.Equal(t, cast.MaxStreamingBitrate, cast.EffectiveBitrate(0))
	assert.Equal(t, 1_000_000, cast.EffectiveBitrate(1_000_000))
	assert.Equal(t, cast.MaxStreamingBitrate, cast.EffectiveBitrate(cast.MaxStreamingBitrate*2))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&ResolutionFailedError{ItemID: "x"}))
	assert.False(t, IsRetryable(&UnsupportedMediaError{ItemID: "x"}))
	assert.False(t, IsRetryable(assert.AnError))
}
