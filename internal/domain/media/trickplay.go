package media

// TrickplayInfo describes one resolution of an item's seek-preview sprite
// sheets. TileWidth and TileHeight count tiles per sheet row/column;
// Width and Height are the pixel size of a single tile.
type TrickplayInfo struct {
	Width          int   `json:"width"`
	Height         int   `json:"height"`
	TileWidth      int   `json:"tile_width"`
	TileHeight     int   `json:"tile_height"`
	ThumbnailCount int   `json:"thumbnail_count"`
	Interval       int64 `json:"interval"` // milliseconds between tiles
	Bandwidth      int   `json:"bandwidth,omitempty"`
}

// TilesPerSheet returns how many tiles one sheet holds.
func (t TrickplayInfo) TilesPerSheet() int {
	return t.TileWidth * t.TileHeight
}

// Valid reports whether the grid can be used for tile math.
func (t TrickplayInfo) Valid() bool {
	return t.TileWidth > 0 && t.TileHeight > 0 && t.Interval > 0
}

// SheetCount returns the number of sprite sheets for the thumbnail count.
func (t TrickplayInfo) SheetCount() int {
	per := t.TilesPerSheet()
	if per <= 0 || t.ThumbnailCount <= 0 {
		return 0
	}
	return (t.ThumbnailCount + per - 1) / per
}
