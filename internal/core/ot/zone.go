package ot

import (
	"slices"

	"github.com/zeusync/sheetsync/internal/core/command"
)

// TransformZone moves zone on the axis touched by a structural command.
// The boolean is false when a removal consumed the whole zone. Commands that
// are not structural leave the zone unchanged.
func TransformZone(zone command.Zone, executed command.Command) (command.Zone, bool) {
	switch c := executed.(type) {
	case command.AddColumnsRows:
		start, end := axis(&zone, c.Dimension)
		insertAt := c.InsertAt()
		if *start >= insertAt {
			*start += c.Quantity
		}
		if *end >= insertAt {
			*end += c.Quantity
		}
		return zone, true
	case command.RemoveColumnsRows:
		start, end := axis(&zone, c.Dimension)
		left, right := *start, *end
		for _, e := range dedup(c.Elements) {
			if e < left {
				*start--
			}
			if e <= right {
				*end--
			}
		}
		return zone, *end >= *start
	default:
		return zone, true
	}
}

// TransformIndex follows a single column or row index through a structural
// command. The boolean is false when the element was removed.
func TransformIndex(index int, dimension command.Dimension, executed command.Command) (int, bool) {
	switch c := executed.(type) {
	case command.AddColumnsRows:
		if c.Dimension == dimension && index >= c.InsertAt() {
			return index + c.Quantity, true
		}
	case command.RemoveColumnsRows:
		if c.Dimension != dimension {
			return index, true
		}
		shift := 0
		for _, e := range dedup(c.Elements) {
			if e == index {
				return 0, false
			}
			if e < index {
				shift++
			}
		}
		return index - shift, true
	}
	return index, true
}

// TransformZones maps every zone and drops the consumed ones.
func TransformZones(zones []command.Zone, executed command.Command) []command.Zone {
	out := make([]command.Zone, 0, len(zones))
	for _, z := range zones {
		if moved, ok := TransformZone(z, executed); ok {
			out = append(out, moved)
		}
	}
	return out
}

func axis(zone *command.Zone, dimension command.Dimension) (start, end *int) {
	if dimension == command.DimensionRow {
		return &zone.Top, &zone.Bottom
	}
	return &zone.Left, &zone.Right
}

func dedup(elements []int) []int {
	out := slices.Clone(elements)
	slices.Sort(out)
	return slices.Compact(out)
}
