package download

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

// Status represents the status of a download job
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusRemuxing    Status = "remuxing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the job holds the single active slot.
func (s Status) IsActive() bool {
	return s == StatusDownloading || s == StatusRemuxing
}

// Kind selects the execution strategy of a job
type Kind string

const (
	KindRaw   Kind = "raw"
	KindRemux Kind = "remux"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRaw, KindRemux:
		return Kind(s), nil
	case "":
		return KindRaw, nil
	default:
		return "", fmt.Errorf("unknown download kind %q", s)
	}
}

// jobNamespace scopes job ids so they stay stable across restarts.
var jobNamespace = uuid.MustParse("8f5e3d1c-6b0a-4c1e-9a52-3f7d2b8e4a61")

// JobID derives the job id for an item.
func JobID(itemID string) uuid.UUID {
	return uuid.NewSHA1(jobNamespace, []byte(itemID))
}

// Job represents one offline download of a media item
type Job struct {
	id          uuid.UUID
	item        media.Item
	kind        Kind
	status      Status
	progress    Progress
	source      *media.Source
	outputPath  string
	workDir     string
	error       string
	startedAt   *time.Time
	completedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// Progress tracks job progress
type Progress struct {
	Percent         float64 `json:"percent"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	TotalBytes      int64   `json:"total_bytes"`
	SegmentsFetched int     `json:"segments_fetched,omitempty"`
	SegmentsTotal   int     `json:"segments_total,omitempty"`
	// Speed is bytes per second for raw downloads and the remux
	// process's realtime multiplier while remuxing.
	Speed float64 `json:"speed"`
}

// NewJob creates a queued job for the item
func NewJob(item media.Item, kind Kind) (*Job, error) {
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if item.IsLive() {
		return nil, media.NewValidationError("type", "live items cannot be downloaded")
	}
	if kind != KindRaw && kind != KindRemux {
		return nil, fmt.Errorf("unknown download kind %q", kind)
	}

	now := time.Now()
	return &Job{
		id:        JobID(item.ID),
		item:      item,
		kind:      kind,
		status:    StatusQueued,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Getters
func (j *Job) ID() uuid.UUID           { return j.id }
func (j *Job) Item() media.Item        { return j.item }
func (j *Job) ItemID() string          { return j.item.ID }
func (j *Job) Kind() Kind              { return j.kind }
func (j *Job) Status() Status          { return j.status }
func (j *Job) Progress() Progress      { return j.progress }
func (j *Job) Source() *media.Source   { return j.source }
func (j *Job) OutputPath() string      { return j.outputPath }
func (j *Job) WorkDir() string         { return j.workDir }
func (j *Job) Error() string           { return j.error }
func (j *Job) StartedAt() *time.Time   { return j.startedAt }
func (j *Job) CompletedAt() *time.Time { return j.completedAt }
func (j *Job) CreatedAt() time.Time    { return j.createdAt }
func (j *Job) UpdatedAt() time.Time    { return j.updatedAt }

// Start promotes the job to the active slot
func (j *Job) Start(outputPath, workDir string) error {
	if j.status != StatusQueued {
		return fmt.Errorf("%w: cannot start job in status %s", ErrInvalidTransition, j.status)
	}

	now := time.Now()
	j.status = StatusDownloading
	j.outputPath = outputPath
	j.workDir = workDir
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// StartRemuxing marks that all segments are local and the remux process runs
func (j *Job) StartRemuxing() error {
	if j.status != StatusDownloading {
		return fmt.Errorf("%w: cannot remux job in status %s", ErrInvalidTransition, j.status)
	}

	j.status = StatusRemuxing
	j.updatedAt = time.Now()
	return nil
}

// SetSource records the media source the job resolved to
func (j *Job) SetSource(source media.Source) {
	j.source = &source
	j.updatedAt = time.Now()
}

// SetOutputPath records where the finished file is written
func (j *Job) SetOutputPath(path string) {
	j.outputPath = path
	j.updatedAt = time.Now()
}

// UpdateProgress updates job progress. Percent never decreases and is
// clamped to [0,100].
func (j *Job) UpdateProgress(progress Progress) {
	if !j.status.IsActive() {
		return
	}
	progress.Percent = clampPercent(progress.Percent)
	if progress.Percent < j.progress.Percent {
		progress.Percent = j.progress.Percent
	}
	j.progress = progress
	j.updatedAt = time.Now()
}

// Complete marks the job as completed
func (j *Job) Complete() error {
	if !j.status.IsActive() {
		return fmt.Errorf("%w: cannot complete job in status %s", ErrInvalidTransition, j.status)
	}

	now := time.Now()
	j.status = StatusCompleted
	j.progress.Percent = 100
	j.completedAt = &now
	j.updatedAt = now
	return nil
}

// Fail marks the job as failed
func (j *Job) Fail(reason string) error {
	if j.status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail job in status %s", ErrInvalidTransition, j.status)
	}

	now := time.Now()
	j.status = StatusFailed
	j.error = reason
	j.completedAt = &now
	j.updatedAt = now
	return nil
}

// Cancel marks the job as cancelled
func (j *Job) Cancel() error {
	if j.status.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel job in status %s", ErrInvalidTransition, j.status)
	}

	now := time.Now()
	j.status = StatusCancelled
	j.completedAt = &now
	j.updatedAt = now
	return nil
}

// Snapshot returns a read-only copy for observers
func (j *Job) Snapshot() JobSnapshot {
	s := JobSnapshot{
		ID:          j.id,
		ItemID:      j.item.ID,
		ItemName:    j.item.Name,
		Kind:        j.kind,
		Status:      j.status,
		Progress:    j.progress,
		OutputPath:  j.outputPath,
		Error:       j.error,
		CreatedAt:   j.createdAt,
		UpdatedAt:   j.updatedAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
	if j.source != nil {
		s.MediaSourceID = j.source.ID
	}
	return s
}

// JobSnapshot is an immutable view of a job handed to readers
type JobSnapshot struct {
	ID            uuid.UUID  `json:"id"`
	ItemID        string     `json:"item_id"`
	ItemName      string     `json:"item_name"`
	Kind          Kind       `json:"kind"`
	Status        Status     `json:"status"`
	Progress      Progress   `json:"progress"`
	MediaSourceID string     `json:"media_source_id,omitempty"`
	OutputPath    string     `json:"output_path,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CalculateETA calculates estimated time of arrival for byte transfers
func (p *Progress) CalculateETA() time.Duration {
	if p.Speed <= 0 || p.BytesDownloaded >= p.TotalBytes {
		return 0
	}

	remainingBytes := float64(p.TotalBytes - p.BytesDownloaded)
	return time.Duration(remainingBytes / p.Speed * float64(time.Second))
}

// BytePercent returns the completion percentage by bytes
func (p *Progress) BytePercent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return clampPercent(float64(p.BytesDownloaded) / float64(p.TotalBytes) * 100)
}

func clampPercent(v float64) float64 {
	switch {
	case v != v || v < 0: // NaN
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
