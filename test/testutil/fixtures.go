// Package testutil holds media fixtures shared by package tests.
package testutil

import (
	"time"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// TestTrickplay is a 10x10 grid of 320x180 tiles, one every 10 seconds.
var TestTrickplay = media.TrickplayInfo{
	Width:          320,
	Height:         180,
	TileWidth:      10,
	TileHeight:     10,
	ThumbnailCount: 360,
	Interval:       10_000,
}

// CreateTestSource creates a direct-playable hevc/aac Matroska source.
func CreateTestSource(id string) media.Source {
	return media.Source{
		ID:                  id,
		Container:           "mkv",
		Size:                4 << 30,
		Bitrate:             8_000_000,
		RunTimeTicks:        90 * 60 * media.TicksPerSecond,
		SupportsDirectPlay:  true,
		SupportsTranscoding: true,
		Streams: []media.Stream{
			{Index: 0, Type: media.StreamVideo, Codec: "hevc", Width: 1920, Height: 1080, RealFrameRate: 23.976},
			{Index: 1, Type: media.StreamAudio, Codec: "aac", Language: "eng", IsDefault: true, Channels: 6},
		},
	}
}

// CreateTestMovie creates a 90 minute movie with one source and trickplay.
func CreateTestMovie(id string) media.Item {
	sourceID := id + "-src"
	return media.Item{
		ID:           id,
		Name:         "Movie " + id,
		Type:         media.TypeMovie,
		MediaType:    media.MediaTypeVideo,
		RunTimeTicks: 90 * 60 * media.TicksPerSecond,
		MediaSources: []media.Source{CreateTestSource(sourceID)},
		Trickplay: map[string]map[int]media.TrickplayInfo{
			sourceID: {TestTrickplay.Width: TestTrickplay},
		},
	}
}

// CreateTestTrack creates an audio item with a single flac source.
func CreateTestTrack(id string) media.Item {
	return media.Item{
		ID:           id,
		Name:         "Track " + id,
		Type:         media.TypeAudio,
		MediaType:    media.MediaTypeAudio,
		RunTimeTicks: 4 * 60 * media.TicksPerSecond,
		MediaSources: []media.Source{{
			ID:                 id + "-src",
			Container:          "flac",
			SupportsDirectPlay: true,
			Streams:            []media.Stream{{Type: media.StreamAudio, Codec: "flac", Channels: 2}},
		}},
	}
}

// CreateTestChannel creates a live TV channel.
func CreateTestChannel(id string) media.Item {
	return media.Item{
		ID:        id,
		Name:      "Channel " + id,
		Type:      media.TypeTvChannel,
		MediaType: media.MediaTypeVideo,
		MediaSources: []media.Source{{
			ID:                  id + "-live",
			Container:           "ts",
			SupportsTranscoding: true,
		}},
	}
}

// CreateTestOfflineEntry creates a remuxed catalog entry for a movie.
func CreateTestOfflineEntry(itemID, path string, storedAt time.Time) *download.OfflineEntry {
	item := CreateTestMovie(itemID)
	return &download.OfflineEntry{
		ItemID:   itemID,
		Item:     item,
		Source:   item.MediaSources[0],
		Path:     path,
		Size:     4096,
		Kind:     download.KindRemux,
		StoredAt: storedAt,
	}
}
