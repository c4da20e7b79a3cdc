package model

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/zeusync/sheetsync/internal/core/command"
	"github.com/zeusync/sheetsync/internal/core/ot"
)

// Dispatch applies cmd. A refused command leaves the state untouched.
func (w *Workbook) Dispatch(cmd command.Command) command.Result {
	if result := w.allow(cmd); result != command.Success {
		return result
	}
	switch c := cmd.(type) {
	case command.CreateSheet:
		w.set(c.SheetID, map[string]any{"name": c.Name, "position": float64(c.Position)})
	case command.DeleteSheet:
		w.set(c.SheetID, nil)
	case command.UpdateCell:
		var content any
		if c.Content != "" {
			content = c.Content
		}
		w.set(c.SheetID, content, "cells", cellKey(c.Col, c.Row))
	case command.AddColumnsRows, command.RemoveColumnsRows:
		w.applyStructural(cmd.(command.SheetScoped).Sheet(), cmd)
	case command.ResizeColumnsRows:
		for _, e := range c.Elements {
			w.set(c.SheetID, c.Size, "sizes", string(c.Dimension), strconv.Itoa(e))
		}
	case command.AddMerge:
		for _, z := range c.Target {
			w.set(c.SheetID, toValue(z), "merges", z.String())
		}
	case command.RemoveMerge:
		for _, z := range c.Target {
			w.set(c.SheetID, nil, "merges", z.String())
		}
	case command.SetFormatting:
		w.eachCell(c.Target, func(col, row int) {
			w.set(c.SheetID, toValue(c.Style), "formats", cellKey(col, row))
		})
	case command.ClearFormatting:
		w.eachCell(c.Target, func(col, row int) {
			w.set(c.SheetID, nil, "formats", cellKey(col, row))
		})
	case command.DeleteContent:
		w.eachCell(c.Target, func(col, row int) {
			w.set(c.SheetID, nil, "cells", cellKey(col, row))
		})
	case command.SortCells:
		w.sort(c)
	case command.CreateFigure:
		w.set(c.SheetID, toValue(c.Figure), "figures", c.Figure.ID)
	case command.UpdateFigure:
		w.set(c.SheetID, float64(c.X), "figures", c.ID, "x")
		w.set(c.SheetID, float64(c.Y), "figures", c.ID, "y")
		w.set(c.SheetID, float64(c.Width), "figures", c.ID, "width")
		w.set(c.SheetID, float64(c.Height), "figures", c.ID, "height")
	case command.DeleteFigure:
		w.set(c.SheetID, nil, "figures", c.ID)
		w.set(c.SheetID, nil, "charts", c.ID)
	case command.CreateChart:
		figure := c.Position
		figure.ID, figure.Tag = c.ID, "chart"
		w.set(c.SheetID, toValue(figure), "figures", c.ID)
		w.set(c.SheetID, toValue(c.Definition), "charts", c.ID)
	case command.UpdateChart:
		w.set(c.SheetID, toValue(c.Definition), "charts", c.ID)
	}
	return command.Success
}

func (w *Workbook) allow(cmd command.Command) command.Result {
	sheetID, scoped := command.SheetOf(cmd)
	if !scoped {
		return command.Success
	}
	_, exists := w.sheet(sheetID)
	if create, ok := cmd.(command.CreateSheet); ok {
		if exists || create.SheetID == "" {
			return command.InvalidSheetID
		}
		return command.Success
	}
	if !exists {
		return command.InvalidSheetID
	}

	switch c := cmd.(type) {
	case command.UpdateCell:
		if c.Col < 0 || c.Row < 0 {
			return command.TargetOutOfSheet
		}
	case command.TargetDependent:
		for _, z := range c.Targets() {
			if z.Left < 0 || z.Top < 0 || z.Right < z.Left || z.Bottom < z.Top {
				return command.TargetOutOfSheet
			}
		}
	case command.UpdateFigure:
		if _, ok := w.Figure(c.SheetID, c.ID); !ok {
			return command.InvalidFigureID
		}
	case command.DeleteFigure:
		if _, ok := w.Figure(c.SheetID, c.ID); !ok {
			return command.InvalidFigureID
		}
	case command.UpdateChart:
		if _, ok := w.Chart(c.SheetID, c.ID); !ok {
			return command.InvalidFigureID
		}
	}
	return command.Success
}

func (w *Workbook) eachCell(zones []command.Zone, fn func(col, row int)) {
	for _, z := range zones {
		for row := z.Top; row <= z.Bottom; row++ {
			for col := z.Left; col <= z.Right; col++ {
				fn(col, row)
			}
		}
	}
}

// applyStructural shifts every positioned entry of a sheet through an
// insertion or a removal of columns or rows.
func (w *Workbook) applyStructural(sheetID string, cmd command.Command) {
	var dimension command.Dimension
	switch c := cmd.(type) {
	case command.AddColumnsRows:
		dimension = c.Dimension
	case command.RemoveColumnsRows:
		dimension = c.Dimension
	}

	moveCell := func(key string) (string, bool) {
		col, row, ok := parseCellKey(key)
		if !ok {
			return key, true
		}
		if dimension == command.DimensionCol {
			col, ok = ot.TransformIndex(col, dimension, cmd)
		} else {
			row, ok = ot.TransformIndex(row, dimension, cmd)
		}
		return cellKey(col, row), ok
	}
	w.moveKeys(sheetID, moveCell, "cells")
	w.moveKeys(sheetID, moveCell, "formats")
	w.moveKeys(sheetID, func(key string) (string, bool) {
		index, err := strconv.Atoi(key)
		if err != nil {
			return key, true
		}
		index, ok := ot.TransformIndex(index, dimension, cmd)
		return strconv.Itoa(index), ok
	}, "sizes", string(dimension))

	for _, merge := range w.Merges(sheetID) {
		moved, ok := ot.TransformZone(merge, cmd)
		if ok && moved == merge {
			continue
		}
		w.set(sheetID, nil, "merges", merge.String())
		if ok {
			w.set(sheetID, toValue(moved), "merges", moved.String())
		}
	}
}

// sort reorders the rows of the zone by the content of the anchor column.
// Empty cells go last whatever the direction.
func (w *Workbook) sort(c command.SortCells) {
	type line struct {
		key   string
		cells []any
	}
	z := c.Zone
	lines := make([]line, 0, z.Bottom-z.Top+1)
	for row := z.Top; row <= z.Bottom; row++ {
		l := line{key: w.Cell(c.SheetID, c.Col, row)}
		for col := z.Left; col <= z.Right; col++ {
			l.cells = append(l.cells, w.lookup(c.SheetID, "cells", cellKey(col, row)))
		}
		lines = append(lines, l)
	}
	descending := c.SortDirection == "descending"
	slices.SortStableFunc(lines, func(a, b line) int {
		switch {
		case a.key == b.key:
			return 0
		case a.key == "":
			return 1
		case b.key == "":
			return -1
		case descending:
			return compareContent(b.key, a.key)
		default:
			return compareContent(a.key, b.key)
		}
	})
	for i, l := range lines {
		for j, value := range l.cells {
			w.set(c.SheetID, value, "cells", cellKey(z.Left+j, z.Top+i))
		}
	}
}

// compareContent orders numbers before text, numbers by value.
func compareContent(a, b string) int {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
