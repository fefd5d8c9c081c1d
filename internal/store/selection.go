package store

import "github.com/gridhouse/sheetsync/internal/sheet"

// Selection and visibility are session-local: they never generate
// persistence calls and other sessions never see them.

// ToggleRowChecked flips the checked flag for a row.
func (s *Store) ToggleRowChecked(identity string) error {
	if s.rowIndex(identity) < 0 {
		return &sheet.NotFoundError{Target: "row", Key: identity}
	}
	if s.selection.CheckedRows[identity] {
		delete(s.selection.CheckedRows, identity)
	} else {
		s.selection.CheckedRows[identity] = true
	}
	return nil
}

// SelectColumn records the canonical index of the column selected for
// deletion; -1 clears the selection.
func (s *Store) SelectColumn(idx int) error {
	if idx == -1 {
		s.selection.SelectedColumn = -1
		return nil
	}
	if idx < 0 || idx >= len(s.headers) {
		return &sheet.ValidationError{Message: "selected column index out of range"}
	}
	s.selection.SelectedColumn = idx
	return nil
}

// SelectedColumnName returns the name of the column currently selected
// for deletion, or "" when nothing is selected.
func (s *Store) SelectedColumnName() string {
	idx := s.selection.SelectedColumn
	if idx < 0 || idx >= len(s.headers) {
		return ""
	}
	return s.headers[idx].Name
}

// ToggleVisibility flips a column's display flag. Hiding never removes
// the field from any row, and toggling never reorders columns.
func (s *Store) ToggleVisibility(name string) error {
	idx := s.headerIndex(name)
	if idx < 0 {
		return &sheet.NotFoundError{Target: "column", Key: name}
	}
	s.headers[idx].Visible = !s.headers[idx].Visible
	return nil
}
