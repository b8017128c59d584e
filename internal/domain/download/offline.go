package download

import (
	"strings"
	"time"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// OfflineEntry is a completed download recorded in the offline catalog.
// There is at most one entry per item id.
type OfflineEntry struct {
	ItemID   string       `json:"item_id"`
	Item     media.Item   `json:"item"`
	Source   media.Source `json:"source"`
	Path     string       `json:"path"`
	Size     int64        `json:"size"`
	Kind     Kind         `json:"kind"`
	StoredAt time.Time    `json:"stored_at"`
}

// NewOfflineEntry builds the catalog entry for a completed job
func NewOfflineEntry(job *Job, size int64) *OfflineEntry {
	entry := &OfflineEntry{
		ItemID:   job.ItemID(),
		Item:     job.Item(),
		Path:     job.OutputPath(),
		Size:     size,
		Kind:     job.Kind(),
		StoredAt: time.Now(),
	}
	if src := job.Source(); src != nil {
		entry.Source = *src
	}
	return entry
}

// Validate checks that a stored entry can be used for offline playback
func (e *OfflineEntry) Validate() error {
	if strings.TrimSpace(e.ItemID) == "" {
		return media.NewValidationError("item_id", "is required")
	}
	if e.Item.ID != e.ItemID {
		return media.NewValidationError("item", "snapshot does not match item id")
	}
	if strings.TrimSpace(e.Path) == "" {
		return media.NewValidationError("path", "is required")
	}
	return nil
}
