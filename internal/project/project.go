// Package project maps canonical sheet state to the visible grid and
// back. The canonical store never reorders or drops columns for display
// reasons; hiding a column is a projection concern, so every translation
// between display coordinates and canonical (identity, header) pairs
// lives here.
package project

import (
	"fmt"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// View is the displayable grid derived from a snapshot: the visible
// headers in canonical order and one row of values per canonical row,
// restricted to the visible columns.
type View struct {
	Headers []string
	Rows    [][]string

	// Identities holds the canonical identity of each row in Rows, index
	// aligned. Display code uses it to translate a clicked row back to a
	// canonical row without guessing from cell contents.
	Identities []string

	// columns maps visible column index to canonical header index.
	columns []int
}

// Build projects a snapshot into a View. Hidden columns are elided;
// ordering of both rows and the remaining columns is canonical.
func Build(snap sheet.Snapshot) View {
	v := View{
		Headers:    make([]string, 0, len(snap.Headers)),
		Identities: make([]string, 0, len(snap.Rows)),
		columns:    make([]int, 0, len(snap.Headers)),
	}
	for i, h := range snap.Headers {
		if !h.Visible {
			continue
		}
		v.Headers = append(v.Headers, h.Name)
		v.columns = append(v.columns, i)
	}
	v.Rows = make([][]string, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		cells := make([]string, len(v.columns))
		for j, ci := range v.columns {
			cells[j] = r.Fields[snap.Headers[ci].Name]
		}
		v.Rows = append(v.Rows, cells)
		v.Identities = append(v.Identities, r.Identity)
	}
	return v
}

// Header translates a visible column index to its canonical header
// name.
func (v View) Header(col int) (string, error) {
	if col < 0 || col >= len(v.Headers) {
		return "", &sheet.ValidationError{Message: fmt.Sprintf("column %d out of visible range", col)}
	}
	return v.Headers[col], nil
}

// CanonicalColumn translates a visible column index to the canonical
// header index.
func (v View) CanonicalColumn(col int) (int, error) {
	if col < 0 || col >= len(v.columns) {
		return 0, &sheet.ValidationError{Message: fmt.Sprintf("column %d out of visible range", col)}
	}
	return v.columns[col], nil
}

// Cell translates a visible (row, col) coordinate to the canonical cell
// it displays.
func (v View) Cell(row, col int) (sheet.CellKey, error) {
	if row < 0 || row >= len(v.Identities) {
		return sheet.CellKey{}, &sheet.ValidationError{Message: fmt.Sprintf("row %d out of range", row)}
	}
	header, err := v.Header(col)
	if err != nil {
		return sheet.CellKey{}, err
	}
	return sheet.CellKey{Identity: v.Identities[row], Header: header}, nil
}

// VisibleColumn translates a canonical header index to its visible
// position, or -1 when the column is hidden.
func (v View) VisibleColumn(canonical int) int {
	for j, ci := range v.columns {
		if ci == canonical {
			return j
		}
	}
	return -1
}
