package ot

import (
	"github.com/zeusync/sheetsync/internal/core/command"
)

var (
	structuralTypes = []command.Type{command.TypeAddColumnsRows, command.TypeRemoveColumnsRows}

	targetTypes = []command.Type{
		command.TypeAddMerge,
		command.TypeRemoveMerge,
		command.TypeSetFormatting,
		command.TypeClearFormatting,
		command.TypeDeleteContent,
		command.TypeSortCells,
	}

	dimensionTypes = []command.Type{
		command.TypeAddColumnsRows,
		command.TypeRemoveColumnsRows,
		command.TypeResizeColumnsRows,
	}

	figureUpdateTypes = []command.Type{
		command.TypeUpdateFigure,
		command.TypeUpdateChart,
		command.TypeDeleteFigure,
	}
)

// NewDefaultRegistry returns a registry holding the spreadsheet transformations.
// Registration order is fixed here and does not depend on package init order.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	for _, executed := range structuralTypes {
		r.Add(executed, targetTypes, transformTarget)
		r.Add(executed, []command.Type{command.TypeUpdateCell}, transformPosition)
		r.Add(executed, []command.Type{command.TypeCreateChart, command.TypeUpdateChart}, transformChart)
	}
	r.Add(command.TypeAddColumnsRows, dimensionTypes, dimensionsAfterAdd)
	r.Add(command.TypeRemoveColumnsRows, dimensionTypes, dimensionsAfterRemove)

	r.Add(command.TypeDeleteSheet, sheetScopedTypes(), dropOnDeletedSheet)
	r.Add(command.TypeDeleteFigure, figureUpdateTypes, dropOnDeletedFigure)

	r.Add(command.TypeAddMerge, []command.Type{command.TypeAddMerge}, subtractMerges)
	r.Add(command.TypeRemoveMerge, []command.Type{command.TypeRemoveMerge}, subtractMerges)
	r.Add(command.TypeAddMerge, []command.Type{command.TypeSortCells}, unmergeBeforeSort)
	r.Add(command.TypeSortCells, []command.Type{command.TypeAddMerge}, mergeAfterSort)

	return r
}

func sheetScopedTypes() []command.Type {
	out := make([]command.Type, 0, len(command.Types))
	for _, t := range command.Types {
		if t != command.TypeCreateSheet {
			out = append(out, t)
		}
	}
	return out
}

func sameSheet(a, b command.Command) bool {
	sa, okA := command.SheetOf(a)
	sb, okB := command.SheetOf(b)
	return okA && okB && sa == sb
}

func transformTarget(toTransform, executed command.Command) []command.Command {
	cmd := toTransform.(command.TargetDependent)
	if !sameSheet(cmd, executed) {
		return keep(toTransform)
	}
	zones := TransformZones(cmd.Targets(), executed)
	if len(zones) == 0 {
		return nil
	}
	return keep(cmd.WithTargets(zones))
}

func transformPosition(toTransform, executed command.Command) []command.Command {
	cmd := toTransform.(command.PositionDependent)
	if !sameSheet(cmd, executed) {
		return keep(toTransform)
	}
	col, row := cmd.Cell()
	col, okCol := TransformIndex(col, command.DimensionCol, executed)
	row, okRow := TransformIndex(row, command.DimensionRow, executed)
	if !okCol || !okRow {
		return nil
	}
	return keep(cmd.AtCell(col, row))
}

func transformChart(toTransform, executed command.Command) []command.Command {
	if !sameSheet(toTransform, executed) {
		return keep(toTransform)
	}
	switch c := toTransform.(type) {
	case command.CreateChart:
		c.Definition = transformDefinition(c.Definition, executed)
		return keep(c)
	case command.UpdateChart:
		c.Definition = transformDefinition(c.Definition, executed)
		return keep(c)
	}
	return keep(toTransform)
}

func transformDefinition(def command.ChartDefinition, executed command.Command) command.ChartDefinition {
	def.DataSets = TransformZones(def.DataSets, executed)
	if def.LabelRange != nil {
		if moved, ok := TransformZone(*def.LabelRange, executed); ok {
			def.LabelRange = &moved
		} else {
			def.LabelRange = nil
		}
	}
	return def
}

func dimensionsAfterAdd(toTransform, executed command.Command) []command.Command {
	add := executed.(command.AddColumnsRows)
	switch c := toTransform.(type) {
	case command.AddColumnsRows:
		if !sameAxis(c.SheetID, c.Dimension, add.SheetID, add.Dimension) {
			return keep(c)
		}
		c.Base, _ = TransformIndex(c.Base, c.Dimension, add)
		return keep(c)
	case command.RemoveColumnsRows:
		if !sameAxis(c.SheetID, c.Dimension, add.SheetID, add.Dimension) {
			return keep(c)
		}
		c.Elements = moveElements(c.Elements, c.Dimension, add)
		return keep(c)
	case command.ResizeColumnsRows:
		if !sameAxis(c.SheetID, c.Dimension, add.SheetID, add.Dimension) {
			return keep(c)
		}
		c.Elements = moveElements(c.Elements, c.Dimension, add)
		return keep(c)
	}
	return keep(toTransform)
}

func dimensionsAfterRemove(toTransform, executed command.Command) []command.Command {
	remove := executed.(command.RemoveColumnsRows)
	switch c := toTransform.(type) {
	case command.AddColumnsRows:
		if !sameAxis(c.SheetID, c.Dimension, remove.SheetID, remove.Dimension) {
			return keep(c)
		}
		return keep(reanchor(c, remove))
	case command.RemoveColumnsRows:
		if !sameAxis(c.SheetID, c.Dimension, remove.SheetID, remove.Dimension) {
			return keep(c)
		}
		c.Elements = moveElements(c.Elements, c.Dimension, remove)
		if len(c.Elements) == 0 {
			return nil
		}
		return keep(c)
	case command.ResizeColumnsRows:
		if !sameAxis(c.SheetID, c.Dimension, remove.SheetID, remove.Dimension) {
			return keep(c)
		}
		c.Elements = moveElements(c.Elements, c.Dimension, remove)
		if len(c.Elements) == 0 {
			return nil
		}
		return keep(c)
	}
	return keep(toTransform)
}

// reanchor moves an insertion whose base element was removed next to the
// closest surviving element before it, or to the very start.
func reanchor(add command.AddColumnsRows, remove command.RemoveColumnsRows) command.AddColumnsRows {
	if base, ok := TransformIndex(add.Base, add.Dimension, remove); ok {
		add.Base = base
		return add
	}
	for candidate := add.Base - 1; candidate >= 0; candidate-- {
		if base, ok := TransformIndex(candidate, add.Dimension, remove); ok {
			add.Base, add.Position = base, command.After
			return add
		}
	}
	add.Base, add.Position = 0, command.Before
	return add
}

func moveElements(elements []int, dimension command.Dimension, executed command.Command) []int {
	out := make([]int, 0, len(elements))
	for _, e := range elements {
		if moved, ok := TransformIndex(e, dimension, executed); ok {
			out = append(out, moved)
		}
	}
	return out
}

func sameAxis(sheetA string, dimA command.Dimension, sheetB string, dimB command.Dimension) bool {
	return sheetA == sheetB && dimA == dimB
}

func dropOnDeletedSheet(toTransform, executed command.Command) []command.Command {
	if sameSheet(toTransform, executed) {
		return nil
	}
	return keep(toTransform)
}

func dropOnDeletedFigure(toTransform, executed command.Command) []command.Command {
	deleted := executed.(command.DeleteFigure)
	var id string
	switch c := toTransform.(type) {
	case command.UpdateFigure:
		id = c.ID
	case command.UpdateChart:
		id = c.ID
	case command.DeleteFigure:
		id = c.ID
	}
	if id == deleted.ID {
		return nil
	}
	return keep(toTransform)
}

// subtractMerges removes from toTransform the zones already covered by a
// concurrent merge or unmerge of the same kind.
func subtractMerges(toTransform, executed command.Command) []command.Command {
	if !sameSheet(toTransform, executed) {
		return keep(toTransform)
	}
	cmd := toTransform.(command.TargetDependent)
	done := executed.(command.TargetDependent).Targets()

	zones := make([]command.Zone, 0, len(cmd.Targets()))
	for _, z := range cmd.Targets() {
		if !overlapsAny(z, done) {
			zones = append(zones, z)
		}
	}
	if len(zones) == 0 {
		return nil
	}
	return keep(cmd.WithTargets(zones))
}

// unmergeBeforeSort lets a sort win over a concurrent merge inside its zone.
func unmergeBeforeSort(toTransform, executed command.Command) []command.Command {
	sort := toTransform.(command.SortCells)
	merge := executed.(command.AddMerge)
	if sort.SheetID != merge.SheetID {
		return keep(sort)
	}
	var conflicting []command.Zone
	for _, z := range merge.Target {
		if z.Overlaps(sort.Zone) {
			conflicting = append(conflicting, z)
		}
	}
	if len(conflicting) == 0 {
		return keep(sort)
	}
	return []command.Command{
		command.RemoveMerge{SheetID: sort.SheetID, Target: conflicting},
		sort,
	}
}

// mergeAfterSort drops merges that would break an already sorted zone.
func mergeAfterSort(toTransform, executed command.Command) []command.Command {
	merge := toTransform.(command.AddMerge)
	sort := executed.(command.SortCells)
	if merge.SheetID != sort.SheetID {
		return keep(merge)
	}
	zones := make([]command.Zone, 0, len(merge.Target))
	for _, z := range merge.Target {
		if !z.Overlaps(sort.Zone) {
			zones = append(zones, z)
		}
	}
	if len(zones) == 0 {
		return nil
	}
	merge.Target = zones
	return keep(merge)
}

func overlapsAny(z command.Zone, zones []command.Zone) bool {
	for _, other := range zones {
		if z.Overlaps(other) {
			return true
		}
	}
	return false
}
