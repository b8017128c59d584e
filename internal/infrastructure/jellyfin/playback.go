package jellyfin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

// PlaybackInfo negotiates playback of an item
func (c *Client) PlaybackInfo(ctx context.Context, req playback.PlaybackInfoRequest) (*playback.PlaybackInfo, error) {
	userID := req.UserID
	if userID == "" {
		userID = c.cfg.UserID
	}

	body := playbackInfoRequestDto{
		UserID:              userID,
		MaxStreamingBitrate: req.MaxStreamingBitrate,
		StartTimeTicks:      req.StartTimeTicks,
		AudioStreamIndex:    req.AudioStreamIndex,
		SubtitleStreamIndex: req.SubtitleStreamIndex,
		MediaSourceID:       req.MediaSourceID,
		DeviceProfile:       req.Profile.DeviceProfile(),
		EnableDirectPlay:    true,
		EnableDirectStream:  true,
		EnableTranscoding:   true,
	}

	query := url.Values{"UserId": {userID}}
	var resp playbackInfoResponseDto
	path := fmt.Sprintf("/Items/%s/PlaybackInfo", url.PathEscape(req.ItemID))
	if err := c.doJSON(ctx, http.MethodPost, path, query, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to get playback info: %w", err)
	}
	if resp.ErrorCode != "" {
		return nil, fmt.Errorf("failed to get playback info: server error %s", resp.ErrorCode)
	}

	info := &playback.PlaybackInfo{PlaySessionID: resp.PlaySessionID}
	for i := range resp.MediaSources {
		info.MediaSources = append(info.MediaSources, resp.MediaSources[i].toDomain())
	}
	return info, nil
}

// OpenLiveStream opens a live channel stream
func (c *Client) OpenLiveStream(ctx context.Context, req playback.LiveStreamRequest) (*playback.LiveStream, error) {
	userID := req.UserID
	if userID == "" {
		userID = c.cfg.UserID
	}

	query := url.Values{
		"UserId":        {userID},
		"ItemId":        {req.ItemID},
		"PlaySessionId": {req.PlaySessionID},
	}
	if req.MaxStreamingBitrate > 0 {
		query.Set("MaxStreamingBitrate", strconv.Itoa(req.MaxStreamingBitrate))
	}
	if req.StartTimeTicks > 0 {
		query.Set("StartTimeTicks", strconv.FormatInt(req.StartTimeTicks, 10))
	}
	if req.AudioStreamIndex != nil {
		query.Set("AudioStreamIndex", strconv.Itoa(*req.AudioStreamIndex))
	}
	if req.SubtitleStreamIndex != nil {
		query.Set("SubtitleStreamIndex", strconv.Itoa(*req.SubtitleStreamIndex))
	}

	var resp liveStreamResponseDto
	body := openLiveStreamRequestDto{DeviceProfile: req.Profile.DeviceProfile()}
	if err := c.doJSON(ctx, http.MethodPost, "/LiveStreams/Open", query, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to open live stream: %w", err)
	}

	return &playback.LiveStream{
		MediaSource:   resp.MediaSource.toDomain(),
		PlaySessionID: req.PlaySessionID,
		LiveStreamID:  resp.MediaSource.LiveStreamID,
	}, nil
}

// GetItem fetches an item including its media sources and trickplay metadata
func (c *Client) GetItem(ctx context.Context, itemID string) (*media.Item, error) {
	var dto baseItemDto
	path := fmt.Sprintf("/Users/%s/Items/%s", url.PathEscape(c.cfg.UserID), url.PathEscape(itemID))
	query := url.Values{"Fields": {"MediaSources,Trickplay"}}
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &dto); err != nil {
		if IsNotFound(err) {
			return nil, media.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	item := dto.toDomain()
	return &item, nil
}

// DownloadURL returns the original-file download URL of an item
func (c *Client) DownloadURL(itemID, mediaSourceID string) string {
	query := url.Values{"api_key": {c.cfg.AccessToken}}
	if mediaSourceID != "" {
		query.Set("mediaSourceId", mediaSourceID)
	}
	return c.URL(fmt.Sprintf("/Items/%s/Download", url.PathEscape(itemID)), query)
}

// TrickplayURL returns the URL of one trickplay sprite sheet
func (c *Client) TrickplayURL(itemID, mediaSourceID string, width, sheet int) string {
	query := url.Values{"api_key": {c.cfg.AccessToken}}
	if mediaSourceID != "" {
		query.Set("MediaSourceId", mediaSourceID)
	}
	return c.URL(fmt.Sprintf("/Videos/%s/Trickplay/%d/%d.jpg", url.PathEscape(itemID), width, sheet), query)
}
