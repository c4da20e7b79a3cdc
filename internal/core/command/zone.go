package command

import (
	"strconv"
	"strings"
)

// Zone is an inclusive rectangle of cells, zero-based.
type Zone struct {
	Left   int `json:"left" yaml:"left"`
	Right  int `json:"right" yaml:"right"`
	Top    int `json:"top" yaml:"top"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// CellZone returns the zone covering a single cell.
func CellZone(col, row int) Zone {
	return Zone{Left: col, Right: col, Top: row, Bottom: row}
}

func (z Zone) Overlaps(other Zone) bool {
	return z.Left <= other.Right && other.Left <= z.Right &&
		z.Top <= other.Bottom && other.Top <= z.Bottom
}

func (z Zone) Contains(col, row int) bool {
	return col >= z.Left && col <= z.Right && row >= z.Top && row <= z.Bottom
}

func (z Zone) IsInside(other Zone) bool {
	return z.Left >= other.Left && z.Right <= other.Right &&
		z.Top >= other.Top && z.Bottom <= other.Bottom
}

func (z Zone) Size() int {
	return (z.Right - z.Left + 1) * (z.Bottom - z.Top + 1)
}

// String renders the zone in A1 notation, e.g. "B2:D4" or "C3".
func (z Zone) String() string {
	start := CellRef(z.Left, z.Top)
	if z.Left == z.Right && z.Top == z.Bottom {
		return start
	}
	return start + ":" + CellRef(z.Right, z.Bottom)
}

// CellRef renders a cell position in A1 notation.
func CellRef(col, row int) string {
	return ColumnName(col) + strconv.Itoa(row+1)
}

// ColumnName converts a zero-based column index to letters: 0 -> A, 26 -> AA.
func ColumnName(col int) string {
	var b strings.Builder
	letters := make([]byte, 0, 3)
	for col >= 0 {
		letters = append(letters, byte('A'+col%26))
		col = col/26 - 1
	}
	for i := len(letters) - 1; i >= 0; i-- {
		b.WriteByte(letters[i])
	}
	return b.String()
}
