package topology

import (
	"fmt"
	"strings"

	"github.com/sarchlab/netsim/network"
)

// GridLayout decides whether a grid is filled row by row or column by column.
type GridLayout int

// The supported grid layouts.
const (
	RowFirst GridLayout = iota
	ColumnFirst
)

func (l GridLayout) String() string {
	if l == ColumnFirst {
		return "ColumnFirst"
	}

	return "RowFirst"
}

// ParseGridLayout converts "RowFirst" or "ColumnFirst", in any case, into a
// GridLayout.
func ParseGridLayout(s string) (GridLayout, error) {
	switch strings.ToLower(s) {
	case "", "rowfirst":
		return RowFirst, nil
	case "columnfirst":
		return ColumnFirst, nil
	default:
		return RowFirst, fmt.Errorf("unknown grid layout %q", s)
	}
}

// A GridPositionAllocator places nodes on a rectangular grid. GridWidth is
// the number of nodes in a row (RowFirst) or in a column (ColumnFirst).
type GridPositionAllocator struct {
	MinX, MinY     float64
	DeltaX, DeltaY float64
	GridWidth      int
	Layout         GridLayout

	current int
}

// Next returns the next position on the grid.
func (a *GridPositionAllocator) Next() network.Position {
	width := a.GridWidth
	if width <= 0 {
		panic("grid width must be positive")
	}

	i := a.current
	a.current++

	major, minor := i/width, i%width

	if a.Layout == ColumnFirst {
		return network.Position{
			X: a.MinX + a.DeltaX*float64(major),
			Y: a.MinY + a.DeltaY*float64(minor),
		}
	}

	return network.Position{
		X: a.MinX + a.DeltaX*float64(minor),
		Y: a.MinY + a.DeltaY*float64(major),
	}
}

// Install places the nodes in order. A node installed twice takes the later
// position.
func (a *GridPositionAllocator) Install(nodes ...*network.Node) {
	for _, n := range nodes {
		n.SetPosition(a.Next())
	}
}
