package jellyfin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

// ReportStart notifies the server that playback started
func (c *Client) ReportStart(ctx context.Context, report playback.SessionReport) error {
	if err := c.doJSON(ctx, http.MethodPost, "/Sessions/Playing", nil, reportFromDomain(report), nil); err != nil {
		return fmt.Errorf("failed to report playback start: %w", err)
	}
	return nil
}

// ReportProgress sends a playback progress report
func (c *Client) ReportProgress(ctx context.Context, report playback.SessionReport) error {
	if err := c.doJSON(ctx, http.MethodPost, "/Sessions/Playing/Progress", nil, reportFromDomain(report), nil); err != nil {
		return fmt.Errorf("failed to report playback progress: %w", err)
	}
	return nil
}

// ReportStopped notifies the server that playback stopped
func (c *Client) ReportStopped(ctx context.Context, report playback.SessionReport) error {
	if err := c.doJSON(ctx, http.MethodPost, "/Sessions/Playing/Stopped", nil, reportFromDomain(report), nil); err != nil {
		return fmt.Errorf("failed to report playback stop: %w", err)
	}
	return nil
}
