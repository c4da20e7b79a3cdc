package command

import "slices"

// Inverse returns the commands that cancel the structural effect of cmd.
// Commands without a structural effect are their own inverse: transforming
// against them is a no-op in either direction.
func Inverse(cmd Command) []Command {
	switch c := cmd.(type) {
	case AddColumnsRows:
		return []Command{RemoveColumnsRows{
			SheetID:   c.SheetID,
			Dimension: c.Dimension,
			Elements:  c.Inserted(),
		}}
	case RemoveColumnsRows:
		return inverseRemove(c)
	case AddMerge:
		return []Command{RemoveMerge{SheetID: c.SheetID, Target: slices.Clone(c.Target)}}
	case RemoveMerge:
		return []Command{AddMerge{SheetID: c.SheetID, Target: slices.Clone(c.Target)}}
	case CreateSheet:
		return []Command{DeleteSheet{SheetID: c.SheetID}}
	case DeleteSheet:
		return []Command{CreateSheet{SheetID: c.SheetID}}
	case CreateFigure:
		return []Command{DeleteFigure{SheetID: c.SheetID, ID: c.Figure.ID}}
	case CreateChart:
		return []Command{DeleteFigure{SheetID: c.SheetID, ID: c.ID}}
	default:
		return []Command{cmd}
	}
}

// InverseAll inverts a batch. The inverses are returned last command first.
func InverseAll(cmds []Command) []Command {
	out := make([]Command, 0, len(cmds))
	for i := len(cmds) - 1; i >= 0; i-- {
		out = append(out, Inverse(cmds[i])...)
	}
	return out
}

// inverseRemove re-inserts each run of consecutive removed elements, lowest
// run first, so every base is expressed in the coordinates left by the runs
// already re-inserted.
func inverseRemove(c RemoveColumnsRows) []Command {
	var out []Command
	for _, group := range GroupConsecutive(c.Elements) {
		add := AddColumnsRows{
			SheetID:   c.SheetID,
			Dimension: c.Dimension,
			Quantity:  len(group),
			Base:      group[0] - 1,
			Position:  After,
		}
		if group[0] == 0 {
			add.Base, add.Position = 0, Before
		}
		out = append(out, add)
	}
	return out
}

// GroupConsecutive sorts and deduplicates elements and splits them into runs
// of consecutive indexes.
func GroupConsecutive(elements []int) [][]int {
	sorted := slices.Clone(elements)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var groups [][]int
	for _, e := range sorted {
		if n := len(groups); n > 0 {
			last := groups[n-1]
			if last[len(last)-1] == e-1 {
				groups[n-1] = append(last, e)
				continue
			}
		}
		groups = append(groups, []int{e})
	}
	return groups
}
