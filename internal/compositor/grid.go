package compositor

import (
	"hash/fnv"
	"strings"
)

// Tile is the state of a single grid cell.
type Tile uint8

const (
	// TileDark is background state A (stream bit 0).
	TileDark Tile = iota

	// TileLight is background state B (stream bit 1).
	TileLight

	// TileTarget marks a tile carrying the target signal.
	TileTarget
)

// String returns the single-character rendering used by the CLI.
func (t Tile) String() string {
	switch t {
	case TileDark:
		return "."
	case TileLight:
		return "#"
	case TileTarget:
		return "*"
	default:
		return "?"
	}
}

// Dims are grid dimensions in tiles.
type Dims struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Size returns the tile count, or 0 when either dimension is not positive.
func (d Dims) Size() int {
	if d.Rows <= 0 || d.Cols <= 0 {
		return 0
	}
	return d.Rows * d.Cols
}

// Grid is one composed frame. Tiles are stored row-major.
// A Grid handed to consumers must be treated as read-only; use Clone for a
// private copy.
type Grid struct {
	Dims     Dims
	Tiles    []Tile
	Eligible int // target-eligible tiles under the mask (0 without overlay)
}

// At returns the tile at row r, column c.
func (g Grid) At(r, c int) Tile {
	return g.Tiles[r*g.Dims.Cols+c]
}

// Count returns how many tiles are in state t.
func (g Grid) Count(t Tile) int {
	n := 0
	for _, tile := range g.Tiles {
		if tile == t {
			n++
		}
	}
	return n
}

// Empty reports whether the grid has no tiles.
func (g Grid) Empty() bool {
	return len(g.Tiles) == 0
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	tiles := make([]Tile, len(g.Tiles))
	copy(tiles, g.Tiles)
	return Grid{Dims: g.Dims, Tiles: tiles, Eligible: g.Eligible}
}

// Checksum is FNV-1a 64 over the row-major tile bytes (0 dark, 1 light,
// 2 target). Offline tools compute the same value to verify reconstruction.
func (g Grid) Checksum() uint64 {
	h := fnv.New64a()
	buf := make([]byte, len(g.Tiles))
	for i, t := range g.Tiles {
		buf[i] = byte(t)
	}
	h.Write(buf)
	return h.Sum64()
}

// String renders the grid one row per line.
func (g Grid) String() string {
	var b strings.Builder
	for r := 0; r < g.Dims.Rows; r++ {
		for c := 0; c < g.Dims.Cols; c++ {
			b.WriteString(g.At(r, c).String())
		}
		b.WriteByte('\n')
	}
	return b.String()
}
