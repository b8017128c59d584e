package playback

import (
	"fmt"
	"strings"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// Target is the class of device a stream is resolved for
type Target string

const (
	TargetLocalIOS Target = "local-ios"
	TargetCast     Target = "cast"
	TargetLowPower Target = "low-power"
)

// ParseTarget validates a target name
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetLocalIOS, TargetCast, TargetLowPower:
		return t, nil
	default:
		return "", fmt.Errorf("unknown playback target %q", s)
	}
}

// Profile types.
const (
	ProfileTypeVideo = "Video"
	ProfileTypeAudio = "Audio"
)

// DirectPlayProfile lists containers and codecs a target decodes natively.
// Lists are comma separated.
type DirectPlayProfile struct {
	Type       string `json:"Type"`
	Container  string `json:"Container,omitempty"`
	VideoCodec string `json:"VideoCodec,omitempty"`
	AudioCodec string `json:"AudioCodec,omitempty"`
}

// TranscodingProfile is the format the server transcodes into for a target
type TranscodingProfile struct {
	Type                string `json:"Type"`
	Container           string `json:"Container"`
	VideoCodec          string `json:"VideoCodec,omitempty"`
	AudioCodec          string `json:"AudioCodec,omitempty"`
	Protocol            string `json:"Protocol,omitempty"`
	Context             string `json:"Context"`
	MaxAudioChannels    string `json:"MaxAudioChannels,omitempty"`
	MinSegments         int    `json:"MinSegments,omitempty"`
	BreakOnNonKeyFrames bool   `json:"BreakOnNonKeyFrames,omitempty"`
}

// SubtitleProfile says how a subtitle format is delivered
type SubtitleProfile struct {
	Format string `json:"Format"`
	Method string `json:"Method"`
}

// CapabilityProfile describes what a playback target accepts. Values
// returned by ProfileFor are never shared, so callers cannot mutate the
// built-in definitions.
type CapabilityProfile struct {
	Target              Target
	Name                string
	Version             int
	MaxStreamingBitrate int
	MaxStaticBitrate    int
	MusicBitrate        int
	DirectPlay          []DirectPlayProfile
	Transcoding         []TranscodingProfile
	Subtitles           []SubtitleProfile
}

// ProfileFor returns the capability profile of a target
func ProfileFor(target Target) (CapabilityProfile, error) {
	switch target {
	case TargetLocalIOS:
		return CapabilityProfile{
			Target:              TargetLocalIOS,
			Name:                "narwhal-local-ios",
			Version:             3,
			MaxStreamingBitrate: 120_000_000,
			MaxStaticBitrate:    100_000_000,
			MusicBitrate:        384_000,
			DirectPlay: []DirectPlayProfile{
				{Type: ProfileTypeVideo, Container: "mp4,m4v,mov", VideoCodec: "h264,hevc", AudioCodec: "aac,ac3,eac3,mp3,alac,flac"},
				{Type: ProfileTypeAudio, Container: "mp3,aac,m4a,m4b,flac,alac,wav", AudioCodec: "mp3,aac,flac,alac,pcm_s16le"},
			},
			Transcoding: []TranscodingProfile{
				{Type: ProfileTypeVideo, Container: "ts", VideoCodec: "h264,hevc", AudioCodec: "aac,ac3,eac3", Protocol: "hls", Context: "Streaming", MaxAudioChannels: "6", MinSegments: 2, BreakOnNonKeyFrames: true},
				{Type: ProfileTypeAudio, Container: "aac", AudioCodec: "aac", Protocol: "hls", Context: "Streaming", MaxAudioChannels: "2"},
			},
			Subtitles: []SubtitleProfile{
				{Format: "vtt", Method: "Hls"},
				{Format: "srt", Method: "External"},
				{Format: "ass", Method: "Encode"},
				{Format: "pgssub", Method: "Encode"},
			},
		}, nil
	case TargetCast:
		return CapabilityProfile{
			Target:              TargetCast,
			Name:                "narwhal-cast",
			Version:             2,
			MaxStreamingBitrate: 20_000_000,
			MaxStaticBitrate:    20_000_000,
			MusicBitrate:        320_000,
			DirectPlay: []DirectPlayProfile{
				{Type: ProfileTypeVideo, Container: "mp4,webm", VideoCodec: "h264,vp8,vp9", AudioCodec: "aac,mp3,opus,vorbis"},
				{Type: ProfileTypeAudio, Container: "mp3,aac,flac,webm", AudioCodec: "mp3,aac,flac,opus,vorbis"},
			},
			Transcoding: []TranscodingProfile{
				{Type: ProfileTypeVideo, Container: "ts", VideoCodec: "h264", AudioCodec: "aac,mp3", Protocol: "hls", Context: "Streaming", MaxAudioChannels: "2", MinSegments: 1, BreakOnNonKeyFrames: true},
				{Type: ProfileTypeAudio, Container: "mp3", AudioCodec: "mp3", Context: "Streaming", MaxAudioChannels: "2"},
			},
			Subtitles: []SubtitleProfile{
				{Format: "vtt", Method: "Hls"},
				{Format: "srt", Method: "Encode"},
				{Format: "ass", Method: "Encode"},
			},
		}, nil
	case TargetLowPower:
		return CapabilityProfile{
			Target:              TargetLowPower,
			Name:                "narwhal-low-power",
			Version:             1,
			MaxStreamingBitrate: 8_000_000,
			MaxStaticBitrate:    8_000_000,
			MusicBitrate:        192_000,
			DirectPlay: []DirectPlayProfile{
				{Type: ProfileTypeVideo, Container: "mp4", VideoCodec: "h264", AudioCodec: "aac"},
				{Type: ProfileTypeAudio, Container: "mp3,aac", AudioCodec: "mp3,aac"},
			},
			Transcoding: []TranscodingProfile{
				{Type: ProfileTypeVideo, Container: "ts", VideoCodec: "h264", AudioCodec: "aac", Protocol: "hls", Context: "Streaming", MaxAudioChannels: "2", MinSegments: 1},
				{Type: ProfileTypeAudio, Container: "mp3", AudioCodec: "mp3", Context: "Streaming", MaxAudioChannels: "2"},
			},
			Subtitles: []SubtitleProfile{
				{Format: "vtt", Method: "Hls"},
				{Format: "srt", Method: "Encode"},
			},
		}, nil
	default:
		return CapabilityProfile{}, fmt.Errorf("unknown playback target %q", target)
	}
}

// CanDirectPlay decides direct-play eligibility locally. Unknown
// container or codecs never qualify.
func (p CapabilityProfile) CanDirectPlay(source *media.Source) bool {
	if source == nil {
		return false
	}
	if p.MaxStaticBitrate > 0 && source.Bitrate > p.MaxStaticBitrate {
		return false
	}

	container := norm(source.Container)
	video := source.VideoCodec()
	audio := source.AudioCodec()
	if container == "" || audio == "" {
		return false
	}

	for _, dp := range p.DirectPlay {
		if !containsAnyToken(dp.Container, container) {
			continue
		}
		switch dp.Type {
		case ProfileTypeVideo:
			if video == "" || !containsToken(dp.VideoCodec, video) {
				continue
			}
		case ProfileTypeAudio:
			if video != "" {
				continue
			}
		default:
			continue
		}
		if containsToken(dp.AudioCodec, audio) {
			return true
		}
	}
	return false
}

// SubtitleMethod returns how the target wants a subtitle format delivered.
func (p CapabilityProfile) SubtitleMethod(format string) (string, bool) {
	format = norm(format)
	for _, sp := range p.Subtitles {
		if norm(sp.Format) == format {
			return sp.Method, true
		}
	}
	return "", false
}

// DeviceProfile is the acceptance contract sent with playback negotiation
type DeviceProfile struct {
	Name                             string               `json:"Name"`
	MaxStreamingBitrate              int                  `json:"MaxStreamingBitrate"`
	MaxStaticBitrate                 int                  `json:"MaxStaticBitrate"`
	MusicStreamingTranscodingBitrate int                  `json:"MusicStreamingTranscodingBitrate"`
	DirectPlayProfiles               []DirectPlayProfile  `json:"DirectPlayProfiles"`
	TranscodingProfiles              []TranscodingProfile `json:"TranscodingProfiles"`
	SubtitleProfiles                 []SubtitleProfile    `json:"SubtitleProfiles"`
}

// DeviceProfile renders the profile in the server's wire shape
func (p CapabilityProfile) DeviceProfile() DeviceProfile {
	return DeviceProfile{
		Name:                             fmt.Sprintf("%s/v%d", p.Name, p.Version),
		MaxStreamingBitrate:              p.MaxStreamingBitrate,
		MaxStaticBitrate:                 p.MaxStaticBitrate,
		MusicStreamingTranscodingBitrate: p.MusicBitrate,
		DirectPlayProfiles:               append([]DirectPlayProfile(nil), p.DirectPlay...),
		TranscodingProfiles:              append([]TranscodingProfile(nil), p.Transcoding...),
		SubtitleProfiles:                 append([]SubtitleProfile(nil), p.Subtitles...),
	}
}

// EffectiveBitrate caps a requested bitrate at the profile ceiling.
// Zero means no request.
func (p CapabilityProfile) EffectiveBitrate(requested int) int {
	if requested <= 0 || (p.MaxStreamingBitrate > 0 && requested > p.MaxStreamingBitrate) {
		return p.MaxStreamingBitrate
	}
	return requested
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// containsToken checks if a comma separated list contains want.
// An empty list never matches.
func containsToken(list, want string) bool {
	list = strings.TrimSpace(list)
	if list == "" || want == "" {
		return false
	}
	for _, part := range strings.Split(list, ",") {
		if norm(part) == want {
			return true
		}
	}
	return false
}

// containsAnyToken handles sources whose container is itself a list,
// e.g. "mov,mp4,m4a".
func containsAnyToken(list, wants string) bool {
	for _, w := range strings.Split(wants, ",") {
		if containsToken(list, norm(w)) {
			return true
		}
	}
	return false
}
