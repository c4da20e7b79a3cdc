// Package command defines the closed set of spreadsheet commands exchanged
// between collaborating clients.
package command

// Type is the discriminator carried by every command on the wire.
type Type string

const (
	TypeUpdateCell        Type = "UPDATE_CELL"
	TypeAddColumnsRows    Type = "ADD_COLUMNS_ROWS"
	TypeRemoveColumnsRows Type = "REMOVE_COLUMNS_ROWS"
	TypeResizeColumnsRows Type = "RESIZE_COLUMNS_ROWS"
	TypeAddMerge          Type = "ADD_MERGE"
	TypeRemoveMerge       Type = "REMOVE_MERGE"
	TypeSortCells         Type = "SORT_CELLS"
	TypeSetFormatting     Type = "SET_FORMATTING"
	TypeClearFormatting   Type = "CLEAR_FORMATTING"
	TypeDeleteContent     Type = "DELETE_CONTENT"
	TypeCreateSheet       Type = "CREATE_SHEET"
	TypeDeleteSheet       Type = "DELETE_SHEET"
	TypeCreateFigure      Type = "CREATE_FIGURE"
	TypeUpdateFigure      Type = "UPDATE_FIGURE"
	TypeDeleteFigure      Type = "DELETE_FIGURE"
	TypeCreateChart       Type = "CREATE_CHART"
	TypeUpdateChart       Type = "UPDATE_CHART"
)

// Types lists every known command type in a stable order.
var Types = []Type{
	TypeUpdateCell,
	TypeAddColumnsRows,
	TypeRemoveColumnsRows,
	TypeResizeColumnsRows,
	TypeAddMerge,
	TypeRemoveMerge,
	TypeSortCells,
	TypeSetFormatting,
	TypeClearFormatting,
	TypeDeleteContent,
	TypeCreateSheet,
	TypeDeleteSheet,
	TypeCreateFigure,
	TypeUpdateFigure,
	TypeDeleteFigure,
	TypeCreateChart,
	TypeUpdateChart,
}

// Command is implemented by the value types in this package only.
type Command interface {
	Type() Type
	isCommand()
}

// SheetScoped commands act on a single sheet.
type SheetScoped interface {
	Command
	Sheet() string
}

// TargetDependent commands act on a list of zones.
type TargetDependent interface {
	SheetScoped
	Targets() []Zone
	WithTargets(target []Zone) Command
}

// PositionDependent commands act on a single cell.
type PositionDependent interface {
	SheetScoped
	Cell() (col, row int)
	AtCell(col, row int) Command
}

// Dimension selects columns or rows.
type Dimension string

const (
	DimensionCol Dimension = "COL"
	DimensionRow Dimension = "ROW"
)

// InsertPosition says on which side of the base element new elements go.
type InsertPosition string

const (
	Before InsertPosition = "before"
	After  InsertPosition = "after"
)

// SheetOf returns the sheet a command applies to, if any.
func SheetOf(cmd Command) (string, bool) {
	if s, ok := cmd.(SheetScoped); ok {
		return s.Sheet(), true
	}
	return "", false
}
