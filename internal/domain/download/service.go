package download

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// Service defines the download job manager interface
type Service interface {
	// Enqueue queues a download of the item and returns its job id
	Enqueue(ctx context.Context, item media.Item, kind Kind) (uuid.UUID, error)

	// Cancel asks the job to stop. Queued jobs are cancelled immediately.
	Cancel(ctx context.Context, id uuid.UUID) error

	// List returns a snapshot of all known jobs in enqueue order
	List(ctx context.Context) ([]JobSnapshot, error)

	// Remove forgets a job that reached a terminal state
	Remove(ctx context.Context, id uuid.UUID) error

	// Subscribe streams job changes until ctx is done
	Subscribe(ctx context.Context) (<-chan JobSnapshot, error)

	// ListOffline lists the offline catalog
	ListOffline(ctx context.Context) ([]*OfflineEntry, error)

	// DeleteOffline removes an item from the offline catalog and deletes its file
	DeleteOffline(ctx context.Context, itemID string) error
}

// CatalogRepository persists the offline catalog
type CatalogRepository interface {
	// Save inserts or replaces the entry for entry.ItemID
	Save(ctx context.Context, entry *OfflineEntry) error

	// FindByItemID finds the entry for an item
	FindByItemID(ctx context.Context, itemID string) (*OfflineEntry, error)

	// LoadAll returns every decodable entry plus the item ids of rows
	// that could not be decoded
	LoadAll(ctx context.Context) (entries []*OfflineEntry, corrupt []string, err error)

	// Delete deletes the entry for an item
	Delete(ctx context.Context, itemID string) error
}

// Downloader performs a resumable byte download to a file
type Downloader interface {
	// Download fetches source into destination, resuming from any partial
	// file, and returns the final size
	Download(ctx context.Context, source string, destination string, progress chan<- Progress) (int64, error)
}

// RemuxStats is one telemetry sample from the remux process
type RemuxStats struct {
	Frame   int64
	FPS     float64
	OutTime time.Duration
	Speed   float64
	Done    bool
}

// Remuxer runs the external stream-copy process
type Remuxer interface {
	// Remux copies the streams of the local playlist at input into output.
	// It returns ErrCancelled when ctx is cancelled.
	Remux(ctx context.Context, input, output string, stats chan<- RemuxStats) error
}

// Mirror copies completed offline files to secondary storage
type Mirror interface {
	Mirror(ctx context.Context, localPath, key string) error
	Remove(ctx context.Context, key string) error
}
