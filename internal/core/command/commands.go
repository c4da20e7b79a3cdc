package command

type UpdateCell struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
	Content string `json:"content"`
}

func (UpdateCell) Type() Type                      { return TypeUpdateCell }
func (UpdateCell) isCommand()                      {}
func (c UpdateCell) Sheet() string                 { return c.SheetID }
func (c UpdateCell) Cell() (int, int)              { return c.Col, c.Row }
func (c UpdateCell) AtCell(col, row int) Command   { c.Col, c.Row = col, row; return c }

type AddColumnsRows struct {
	SheetID   string         `json:"sheetId"`
	Dimension Dimension      `json:"dimension"`
	Base      int            `json:"base"`
	Quantity  int            `json:"quantity"`
	Position  InsertPosition `json:"position"`
}

func (AddColumnsRows) Type() Type      { return TypeAddColumnsRows }
func (AddColumnsRows) isCommand()      {}
func (c AddColumnsRows) Sheet() string { return c.SheetID }

// InsertAt is the index of the first inserted element.
func (c AddColumnsRows) InsertAt() int {
	if c.Position == Before {
		return c.Base
	}
	return c.Base + 1
}

// Inserted lists the indexes of the new elements.
func (c AddColumnsRows) Inserted() []int {
	start := c.InsertAt()
	out := make([]int, c.Quantity)
	for i := range out {
		out[i] = start + i
	}
	return out
}

type RemoveColumnsRows struct {
	SheetID   string    `json:"sheetId"`
	Dimension Dimension `json:"dimension"`
	Elements  []int     `json:"elements"`
}

func (RemoveColumnsRows) Type() Type      { return TypeRemoveColumnsRows }
func (RemoveColumnsRows) isCommand()      {}
func (c RemoveColumnsRows) Sheet() string { return c.SheetID }

type ResizeColumnsRows struct {
	SheetID   string    `json:"sheetId"`
	Dimension Dimension `json:"dimension"`
	Elements  []int     `json:"elements"`
	Size      float64   `json:"size"`
}

func (ResizeColumnsRows) Type() Type      { return TypeResizeColumnsRows }
func (ResizeColumnsRows) isCommand()      {}
func (c ResizeColumnsRows) Sheet() string { return c.SheetID }

type AddMerge struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
	Force   bool   `json:"force,omitempty"`
}

func (AddMerge) Type() Type                     { return TypeAddMerge }
func (AddMerge) isCommand()                     {}
func (c AddMerge) Sheet() string                { return c.SheetID }
func (c AddMerge) Targets() []Zone              { return c.Target }
func (c AddMerge) WithTargets(t []Zone) Command { c.Target = t; return c }

type RemoveMerge struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
}

func (RemoveMerge) Type() Type                     { return TypeRemoveMerge }
func (RemoveMerge) isCommand()                     {}
func (c RemoveMerge) Sheet() string                { return c.SheetID }
func (c RemoveMerge) Targets() []Zone              { return c.Target }
func (c RemoveMerge) WithTargets(t []Zone) Command { c.Target = t; return c }

// SortCells sorts the rows of Zone by the values found in column Col.
type SortCells struct {
	SheetID       string `json:"sheetId"`
	Col           int    `json:"col"`
	Row           int    `json:"row"`
	Zone          Zone   `json:"zone"`
	SortDirection string `json:"sortDirection"`
}

func (SortCells) Type() Type        { return TypeSortCells }
func (SortCells) isCommand()        {}
func (c SortCells) Sheet() string   { return c.SheetID }
func (c SortCells) Targets() []Zone { return []Zone{c.Zone} }

// WithTargets keeps the anchor column inside the zone when the zone moves.
func (c SortCells) WithTargets(t []Zone) Command {
	if len(t) == 0 {
		return c
	}
	dx, dy := t[0].Left-c.Zone.Left, t[0].Top-c.Zone.Top
	c.Zone = t[0]
	c.Col, c.Row = c.Col+dx, c.Row+dy
	if c.Col > c.Zone.Right {
		c.Col = c.Zone.Right
	}
	if c.Row > c.Zone.Bottom {
		c.Row = c.Zone.Bottom
	}
	return c
}

type SetFormatting struct {
	SheetID string            `json:"sheetId"`
	Target  []Zone            `json:"target"`
	Style   map[string]string `json:"style"`
}

func (SetFormatting) Type() Type                     { return TypeSetFormatting }
func (SetFormatting) isCommand()                     {}
func (c SetFormatting) Sheet() string                { return c.SheetID }
func (c SetFormatting) Targets() []Zone              { return c.Target }
func (c SetFormatting) WithTargets(t []Zone) Command { c.Target = t; return c }

type ClearFormatting struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
}

func (ClearFormatting) Type() Type                     { return TypeClearFormatting }
func (ClearFormatting) isCommand()                     {}
func (c ClearFormatting) Sheet() string                { return c.SheetID }
func (c ClearFormatting) Targets() []Zone              { return c.Target }
func (c ClearFormatting) WithTargets(t []Zone) Command { c.Target = t; return c }

type DeleteContent struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
}

func (DeleteContent) Type() Type                     { return TypeDeleteContent }
func (DeleteContent) isCommand()                     {}
func (c DeleteContent) Sheet() string                { return c.SheetID }
func (c DeleteContent) Targets() []Zone              { return c.Target }
func (c DeleteContent) WithTargets(t []Zone) Command { c.Target = t; return c }

type CreateSheet struct {
	SheetID  string `json:"sheetId"`
	Name     string `json:"name,omitempty"`
	Position int    `json:"position"`
}

func (CreateSheet) Type() Type      { return TypeCreateSheet }
func (CreateSheet) isCommand()      {}
func (c CreateSheet) Sheet() string { return c.SheetID }

type DeleteSheet struct {
	SheetID string `json:"sheetId"`
}

func (DeleteSheet) Type() Type      { return TypeDeleteSheet }
func (DeleteSheet) isCommand()      {}
func (c DeleteSheet) Sheet() string { return c.SheetID }

// Figure is a floating object anchored on a sheet, in pixels.
type Figure struct {
	ID     string `json:"id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tag    string `json:"tag,omitempty"`
}

type CreateFigure struct {
	SheetID string `json:"sheetId"`
	Figure  Figure `json:"figure"`
}

func (CreateFigure) Type() Type      { return TypeCreateFigure }
func (CreateFigure) isCommand()      {}
func (c CreateFigure) Sheet() string { return c.SheetID }

type UpdateFigure struct {
	SheetID string `json:"sheetId"`
	ID      string `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

func (UpdateFigure) Type() Type      { return TypeUpdateFigure }
func (UpdateFigure) isCommand()      {}
func (c UpdateFigure) Sheet() string { return c.SheetID }

type DeleteFigure struct {
	SheetID string `json:"sheetId"`
	ID      string `json:"id"`
}

func (DeleteFigure) Type() Type      { return TypeDeleteFigure }
func (DeleteFigure) isCommand()      {}
func (c DeleteFigure) Sheet() string { return c.SheetID }

// ChartDefinition references its data through zones of the chart's sheet.
type ChartDefinition struct {
	Title      string `json:"title"`
	ChartType  string `json:"type"`
	DataSets   []Zone `json:"dataSets"`
	LabelRange *Zone  `json:"labelRange,omitempty"`
}

type CreateChart struct {
	SheetID    string          `json:"sheetId"`
	ID         string          `json:"id"`
	Position   Figure          `json:"position"`
	Definition ChartDefinition `json:"definition"`
}

func (CreateChart) Type() Type      { return TypeCreateChart }
func (CreateChart) isCommand()      {}
func (c CreateChart) Sheet() string { return c.SheetID }

type UpdateChart struct {
	SheetID    string          `json:"sheetId"`
	ID         string          `json:"id"`
	Definition ChartDefinition `json:"definition"`
}

func (UpdateChart) Type() Type      { return TypeUpdateChart }
func (UpdateChart) isCommand()      {}
func (c UpdateChart) Sheet() string { return c.SheetID }
