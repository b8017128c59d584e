// Package trickplay maps playback positions to seek-preview tiles.
package trickplay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/metrics"
)

// Tile locates one thumbnail inside a sprite sheet
type Tile struct {
	MediaSourceID string `json:"media_source_id"`
	TileOrdinal   int    `json:"tile_ordinal"`
	SheetIndex    int    `json:"sheet_index"`
	TileX         int    `json:"tile_x"`
	TileY         int    `json:"tile_y"`
	// Pixel offset and size of the tile within the sheet image
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ImageURL string `json:"image_url,omitempty"`
}

// Locate computes the tile for a position. It reports false when the
// grid cannot be used.
func Locate(info media.TrickplayInfo, positionTicks int64) (Tile, bool) {
	if !info.Valid() {
		return Tile{}, false
	}
	if positionTicks < 0 {
		positionTicks = 0
	}

	currentMs := media.TicksToMilliseconds(positionTicks)
	ordinal := int(currentMs / info.Interval)
	sheetSize := info.TilesPerSheet()
	sheet := ordinal / sheetSize
	offset := ordinal % sheetSize
	x := offset % info.TileWidth
	y := offset / info.TileWidth

	return Tile{
		TileOrdinal: ordinal,
		SheetIndex:  sheet,
		TileX:       x,
		TileY:       y,
		X:           x * info.Width,
		Y:           y * info.Height,
		Width:       info.Width,
		Height:      info.Height,
	}, true
}

// SheetsFor returns how many sheets cover the item's whole duration
func SheetsFor(info media.TrickplayInfo, runTimeTicks int64) int {
	if !info.Valid() {
		return 0
	}
	if runTimeTicks <= 0 {
		return info.SheetCount()
	}
	tiles := (media.TicksToMilliseconds(runTimeTicks) + info.Interval - 1) / info.Interval
	per := int64(info.TilesPerSheet())
	return int((tiles + per - 1) / per)
}

// URLBuilder builds sprite sheet URLs
type URLBuilder interface {
	TrickplayURL(itemID, mediaSourceID string, width, sheet int) string
}

// Prefetcher warms one sheet image
type Prefetcher interface {
	Prefetch(ctx context.Context, url string) error
}

// resolution is cached per item; each item scrubs against its own limiter
type resolution struct {
	sourceID string
	info     media.TrickplayInfo
	limiter  *rate.Limiter
}

// Index answers seek-preview queries while scrubbing
type Index struct {
	urls        URLBuilder
	prefetcher  Prefetcher
	throttle    time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]resolution
}

// NewIndex creates a trickplay index. Lookups for the same item closer
// together than throttle are dropped.
func NewIndex(urls URLBuilder, prefetcher Prefetcher, throttle time.Duration, concurrency int, logger *zap.Logger) *Index {
	if throttle <= 0 {
		throttle = 200 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Index{
		urls:        urls,
		prefetcher:  prefetcher,
		throttle:    throttle,
		concurrency: concurrency,
		logger:      logger.Named("trickplay"),
		now:         time.Now,
		cache:       make(map[string]resolution),
	}
}

// Resolve returns the tile for a position, or nil when the item has no
// trickplay metadata or the call is throttled.
func (x *Index) Resolve(item *media.Item, positionTicks int64) *Tile {
	res, ok := x.resolutionFor(item)
	if !ok {
		return nil
	}
	if !res.limiter.AllowN(x.now(), 1) {
		metrics.RecordTrickplayThrottled()
		return nil
	}

	tile, ok := Locate(res.info, positionTicks)
	if !ok {
		return nil
	}
	tile.MediaSourceID = res.sourceID
	if x.urls != nil {
		tile.ImageURL = x.urls.TrickplayURL(item.ID, res.sourceID, res.info.Width, tile.SheetIndex)
	}
	return &tile
}

// PrefetchAll requests every sheet image of the item. Used once when
// playback begins, not while scrubbing.
func (x *Index) PrefetchAll(ctx context.Context, item *media.Item) error {
	res, ok := x.resolutionFor(item)
	if !ok {
		return media.ErrNoTrickplay
	}
	if x.prefetcher == nil || x.urls == nil {
		return nil
	}

	sheets := SheetsFor(res.info, item.RunTimeTicks)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for sheet := 0; sheet < sheets; sheet++ {
		u := x.urls.TrickplayURL(item.ID, res.sourceID, res.info.Width, sheet)
		g.Go(func() error {
			if err := x.prefetcher.Prefetch(gctx, u); err != nil {
				return fmt.Errorf("failed to prefetch sheet %s: %w", u, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		x.logger.Warn("Trickplay prefetch incomplete",
			zap.String("item_id", item.ID),
			zap.Error(err))
		return err
	}

	x.logger.Debug("trickplay prefetched",
		zap.String("item_id", item.ID),
		zap.Int("sheets", sheets),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Forget drops the cached resolution and throttle state of an item at session end
func (x *Index) Forget(itemID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.cache, itemID)
}

func (x *Index) resolutionFor(item *media.Item) (resolution, bool) {
	if item == nil {
		return resolution{}, false
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if res, ok := x.cache[item.ID]; ok {
		return res, true
	}
	sourceID, info, ok := item.TrickplayResolution()
	if !ok || !info.Valid() {
		return resolution{}, false
	}
	res := resolution{
		sourceID: sourceID,
		info:     info,
		limiter:  rate.NewLimiter(rate.Every(x.throttle), 1),
	}
	x.cache[item.ID] = res
	return res, true
}
