package jellyfin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		ServerURL:   srv.URL,
		AccessToken: "secret",
		UserID:      "user-1",
		DeviceID:    "device-1",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient(Config{ServerURL: "media.local"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestPlaybackInfo(t *testing.T) {
	var gotBody playbackInfoRequestDto
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Items/item-1/PlaybackInfo", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("UserId"))
		assert.Equal(t, "secret", r.Header.Get("X-Emby-Token"))
		assert.Contains(t, r.Header.Get("Authorization"), `DeviceId="device-1"`)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = io.WriteString(w, `{
			"PlaySessionId": "play-1",
			"MediaSources": [{
				"Id": "src-1", "Container": "mkv", "RunTimeTicks": 100,
				"SupportsDirectPlay": false, "SupportsTranscoding": true,
				"TranscodingUrl": "/videos/item-1/master.m3u8?MediaSourceId=src-1",
				"MediaStreams": [{"Index": 0, "Type": "Video", "Codec": "hevc", "RealFrameRate": 23.976}]
			}]
		}`)
	}))

	profile, err := playback.ProfileFor(playback.TargetCast)
	require.NoError(t, err)
	audio := 1

	info, err := c.PlaybackInfo(context.Background(), playback.PlaybackInfoRequest{
		ItemID:              "item-1",
		Profile:             profile,
		MaxStreamingBitrate: 4_000_000,
		AudioStreamIndex:    &audio,
	})
	require.NoError(t, err)

	assert.Equal(t, "play-1", info.PlaySessionID)
	require.Len(t, info.MediaSources, 1)
	assert.Equal(t, "src-1", info.MediaSources[0].ID)
	assert.InDelta(t, 23.976, info.MediaSources[0].RealFrameRate(), 0.0001)
	assert.Equal(t, 4_000_000, gotBody.MaxStreamingBitrate)
	assert.Equal(t, "narwhal-cast/v2", gotBody.DeviceProfile.Name)
	require.NotNil(t, gotBody.AudioStreamIndex)
	assert.Equal(t, 1, *gotBody.AudioStreamIndex)
}

func TestPlaybackInfoStatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.PlaybackInfo(context.Background(), playback.PlaybackInfoRequest{ItemID: "x"})
	require.Error(t, err)
	var se *StatusError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestOpenLiveStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/LiveStreams/Open", r.URL.Path)
		assert.Equal(t, "chan-1", r.URL.Query().Get("ItemId"))
		assert.Equal(t, "sess-1", r.URL.Query().Get("PlaySessionId"))
		_, _ = io.WriteString(w, `{"MediaSource": {"Id": "live-src", "LiveStreamId": "ls-1", "TranscodingUrl": "/videos/chan-1/live.m3u8"}}`)
	}))

	ls, err := c.OpenLiveStream(context.Background(), playback.LiveStreamRequest{ItemID: "chan-1", PlaySessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "ls-1", ls.LiveStreamID)
	assert.Equal(t, "sess-1", ls.PlaySessionID)
	assert.Equal(t, "/videos/chan-1/live.m3u8", ls.MediaSource.TranscodingURL)
}

func TestGetItem(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Users/user-1/Items/item-1":
			_, _ = io.WriteString(w, `{
				"Id": "item-1", "Name": "Film", "Type": "Movie", "RunTimeTicks": 72000000000,
				"MediaSources": [{"Id": "src-1"}],
				"Trickplay": {"src-1": {"320": {"Width": 320, "Height": 180, "TileWidth": 10, "TileHeight": 10, "ThumbnailCount": 720, "Interval": 10000}}}
			}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	item, err := c.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Film", item.Name)
	require.Contains(t, item.Trickplay, "src-1")
	assert.Equal(t, 10, item.Trickplay["src-1"][320].TileWidth)

	_, err = c.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, media.ErrItemNotFound)
}

func TestSessionReports(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body playbackReportDto
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "item-1", body.ItemID)
		w.WriteHeader(http.StatusNoContent)
	}))

	report := playback.SessionReport{ItemID: "item-1", PlaySessionID: "p"}
	ctx := context.Background()
	require.NoError(t, c.ReportStart(ctx, report))
	require.NoError(t, c.ReportProgress(ctx, report))
	require.NoError(t, c.ReportStopped(ctx, report))

	assert.Equal(t, []string{"/Sessions/Playing", "/Sessions/Playing/Progress", "/Sessions/Playing/Stopped"}, paths)
}

func TestURLHelpers(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	u := c.URL("/videos/1/master.m3u8?SubtitleMethod=Encode", nil)
	assert.True(t, strings.HasSuffix(u, "/videos/1/master.m3u8?SubtitleMethod=Encode"))

	assert.Equal(t, "http://other/x", c.URL("http://other/x", nil))
	assert.Contains(t, c.DownloadURL("item-1", "src-1"), "/Items/item-1/Download?")
	assert.Contains(t, c.TrickplayURL("item-1", "", 320, 3), "/Videos/item-1/Trickplay/320/3.jpg")
}

func TestFetch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "#EXTM3U\n")
	}))

	resp, err := c.Fetch(context.Background(), "/videos/1/main.m3u8")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(body))
}
