package download

import (
	"time"

	"github.com/google/uuid"

	domainevents "github.com/narwhalmedia/narwhal-player/internal/domain/events"
)

const aggregateType = "DownloadJob"

// DownloadQueued is emitted when a job is enqueued
type DownloadQueued struct {
	domainevents.BaseEvent
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"`
}

// NewDownloadQueued creates a new DownloadQueued event
func NewDownloadQueued(job *Job) *DownloadQueued {
	return &DownloadQueued{
		BaseEvent: domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadQueued", 1),
		ItemID:    job.ItemID(),
		Kind:      string(job.Kind()),
	}
}

// DownloadStarted is emitted when a job is promoted to the active slot
type DownloadStarted struct {
	domainevents.BaseEvent
	ItemID     string `json:"item_id"`
	OutputPath string `json:"output_path"`
}

// NewDownloadStarted creates a new DownloadStarted event
func NewDownloadStarted(job *Job) *DownloadStarted {
	return &DownloadStarted{
		BaseEvent:  domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadStarted", 1),
		ItemID:     job.ItemID(),
		OutputPath: job.OutputPath(),
	}
}

// DownloadRemuxing is emitted when every segment is local and the remux process starts
type DownloadRemuxing struct {
	domainevents.BaseEvent
	ItemID   string `json:"item_id"`
	Segments int    `json:"segments"`
}

// NewDownloadRemuxing creates a new DownloadRemuxing event
func NewDownloadRemuxing(job *Job) *DownloadRemuxing {
	return &DownloadRemuxing{
		BaseEvent: domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadRemuxing", 1),
		ItemID:    job.ItemID(),
		Segments:  job.Progress().SegmentsTotal,
	}
}

// DownloadProgress is emitted periodically with job progress
type DownloadProgress struct {
	domainevents.BaseEvent
	Status          string  `json:"status"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           float64 `json:"speed"`
	PercentComplete float64 `json:"percent_complete"`
}

// NewDownloadProgress creates a new DownloadProgress event
func NewDownloadProgress(job *Job) *DownloadProgress {
	progress := job.Progress()
	return &DownloadProgress{
		BaseEvent:       domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadProgress", 1),
		Status:          string(job.Status()),
		BytesDownloaded: progress.BytesDownloaded,
		TotalBytes:      progress.TotalBytes,
		Speed:           progress.Speed,
		PercentComplete: progress.Percent,
	}
}

// DownloadCompleted is emitted when a job completes
type DownloadCompleted struct {
	domainevents.BaseEvent
	ItemID        string        `json:"item_id"`
	MediaSourceID string        `json:"media_source_id"`
	FilePath      string        `json:"file_path"`
	FileSize      int64         `json:"file_size"`
	Duration      time.Duration `json:"duration"`
}

// NewDownloadCompleted creates a new DownloadCompleted event
func NewDownloadCompleted(job *Job, size int64) *DownloadCompleted {
	var duration time.Duration
	if job.StartedAt() != nil && job.CompletedAt() != nil {
		duration = job.CompletedAt().Sub(*job.StartedAt())
	}

	e := &DownloadCompleted{
		BaseEvent: domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadCompleted", 1),
		ItemID:    job.ItemID(),
		FilePath:  job.OutputPath(),
		FileSize:  size,
		Duration:  duration,
	}
	if job.Source() != nil {
		e.MediaSourceID = job.Source().ID
	}
	return e
}

// DownloadFailed is emitted when a job fails
type DownloadFailed struct {
	domainevents.BaseEvent
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(job *Job) *DownloadFailed {
	return &DownloadFailed{
		BaseEvent: domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadFailed", 1),
		ItemID:    job.ItemID(),
		Error:     job.Error(),
	}
}

// DownloadCancelled is emitted when a job is cancelled
type DownloadCancelled struct {
	domainevents.BaseEvent
	ItemID string `json:"item_id"`
	Forced bool   `json:"forced"`
}

// NewDownloadCancelled creates a new DownloadCancelled event. forced is set
// when the worker did not acknowledge within the grace period.
func NewDownloadCancelled(job *Job, forced bool) *DownloadCancelled {
	return &DownloadCancelled{
		BaseEvent: domainevents.NewBaseEvent(job.ID(), aggregateType, "DownloadCancelled", 1),
		ItemID:    job.ItemID(),
		Forced:    forced,
	}
}

// OfflineEntryRemoved is emitted when an item leaves the offline catalog
type OfflineEntryRemoved struct {
	domainevents.BaseEvent
	ItemID string `json:"item_id"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// NewOfflineEntryRemoved creates a new OfflineEntryRemoved event
func NewOfflineEntryRemoved(entry *OfflineEntry, reason string) *OfflineEntryRemoved {
	return &OfflineEntryRemoved{
		BaseEvent: domainevents.NewBaseEvent(uuid.NewSHA1(jobNamespace, []byte(entry.ItemID)), "OfflineEntry", "OfflineEntryRemoved", 1),
		ItemID:    entry.ItemID,
		Path:      entry.Path,
		Reason:    reason,
	}
}
