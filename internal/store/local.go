package store

import (
	"fmt"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// ApplyLocal applies a user mutation optimistically and marks the affected
// cell/row/column pending. The caller is expected to have validated user
// input already; structural checks (unknown targets, identity-column
// protection, duplicates) are enforced here regardless.
//
// Every successful ApplyLocal must be followed by exactly one Acknowledge
// or Rollback for the same mutation.
func (s *Store) ApplyLocal(m sheet.Mutation) error {
	switch v := m.(type) {
	case sheet.AddColumn:
		return s.localAddColumn(v)
	case sheet.RemoveColumn:
		return s.localRemoveColumn(v)
	case sheet.AddRow:
		return s.localAddRow(v)
	case sheet.RemoveRows:
		return s.localRemoveRows(v)
	case sheet.SetCell:
		return s.localSetCell(v)
	case sheet.SetStyle:
		return s.localSetStyle(v)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind())
	}
}

func (s *Store) localAddColumn(m sheet.AddColumn) error {
	name := sheet.NormalizeHeader(m.Name)
	if name == "" {
		return &sheet.ValidationError{Message: "column title must not be empty"}
	}
	if s.headerIndex(name) >= 0 {
		return &sheet.InvariantViolation{Message: fmt.Sprintf("column %q already exists", m.Name)}
	}

	s.headers = append(s.headers, sheet.ColumnHeader{Name: name, Visible: true})
	for i := range s.rows {
		s.rows[i].Fields[name] = ""
	}
	s.pendingColumns[name] = true
	return nil
}

func (s *Store) localRemoveColumn(m sheet.RemoveColumn) error {
	idx := s.headerIndex(m.Name)
	if idx < 0 {
		return &sheet.NotFoundError{Target: "column", Key: m.Name}
	}
	if idx == 0 {
		return &sheet.InvariantViolation{Message: "identity column cannot be removed"}
	}

	header := s.headers[idx]
	stash := &removedColumn{
		header:   header,
		index:    idx,
		values:   make(map[string]string, len(s.rows)),
		styles:   make(map[string]sheet.StyleRecord),
		formulas: make(map[string]string),
		selected: s.selection.SelectedColumn == idx,
	}
	for i := range s.rows {
		id := s.rows[i].Identity
		stash.values[id] = s.rows[i].Fields[header.Name]
		key := sheet.CellKey{Identity: id, Header: header.Name}
		if rec, ok := s.styles[key]; ok {
			stash.styles[id] = rec
		}
		if raw, ok := s.formulas[key]; ok {
			stash.formulas[id] = raw
		}
		delete(s.rows[i].Fields, header.Name)
		s.dropCellState(key)
	}
	s.headers = append(s.headers[:idx], s.headers[idx+1:]...)
	s.removedColumns[sheet.NormalizeHeader(header.Name)] = stash

	// The selection referred to this column (or shifted under it).
	if stash.selected {
		s.selection.SelectedColumn = -1
	} else if s.selection.SelectedColumn > idx {
		s.selection.SelectedColumn--
	}
	return nil
}

func (s *Store) localAddRow(m sheet.AddRow) error {
	if m.Identity == "" {
		return &sheet.ValidationError{Message: "row identity must not be empty"}
	}
	if len(s.headers) == 0 {
		return &sheet.ValidationError{Message: "sheet has no columns"}
	}
	if s.rowIndex(m.Identity) >= 0 {
		return &sheet.InvariantViolation{Message: fmt.Sprintf("row identity %q already in use", m.Identity)}
	}

	s.rows = append(s.rows, s.normalizeRow(sheet.RowRecord{Identity: m.Identity}))
	s.pendingRows[m.Identity] = true
	return nil
}

func (s *Store) localRemoveRows(m sheet.RemoveRows) error {
	if len(m.Identities) == 0 {
		return &sheet.ValidationError{Message: "no rows selected"}
	}

	removed := 0
	for _, id := range m.Identities {
		idx := s.rowIndex(id)
		if idx < 0 {
			continue // NotFound is a no-op for batch removal
		}
		stash := &removedRow{
			row:      s.rows[idx].Clone(),
			index:    idx,
			styles:   make(map[string]sheet.StyleRecord),
			formulas: make(map[string]string),
			checked:  s.selection.CheckedRows[id],
		}
		for _, h := range s.headers {
			key := sheet.CellKey{Identity: id, Header: h.Name}
			if rec, ok := s.styles[key]; ok {
				stash.styles[h.Name] = rec
			}
			if raw, ok := s.formulas[key]; ok {
				stash.formulas[h.Name] = raw
			}
		}
		s.rows = append(s.rows[:idx], s.rows[idx+1:]...)
		s.dropRowState(id)
		s.removedRows[id] = stash
		removed++
	}
	if removed == 0 {
		return &sheet.NotFoundError{Target: "row", Key: fmt.Sprintf("%v", m.Identities)}
	}
	return nil
}

func (s *Store) localSetCell(m sheet.SetCell) error {
	hIdx := s.headerIndex(m.Header)
	if hIdx < 0 {
		return &sheet.NotFoundError{Target: "column", Key: m.Header}
	}
	if hIdx == 0 {
		return &sheet.InvariantViolation{Message: "identity column is read-only"}
	}
	rIdx := s.rowIndex(m.Identity)
	if rIdx < 0 {
		return &sheet.NotFoundError{Target: "row", Key: m.Identity}
	}

	key := sheet.CellKey{Identity: m.Identity, Header: s.headers[hIdx].Name}
	if pc, ok := s.pendingCells[key]; ok {
		pc.depth++
	} else {
		raw, hadFormula := s.formulas[key]
		s.pendingCells[key] = &pendingCell{
			prior:        s.rows[rIdx].Fields[key.Header],
			priorFormula: raw,
			hadFormula:   hadFormula,
			depth:        1,
		}
	}
	s.rows[rIdx].Fields[key.Header] = m.Value
	// The cell is a plain value now; a formula commit re-records its raw
	// text via SetFormula right after.
	delete(s.formulas, key)
	return nil
}

func (s *Store) localSetStyle(m sheet.SetStyle) error {
	hIdx := s.headerIndex(m.Header)
	if hIdx < 0 {
		return &sheet.NotFoundError{Target: "column", Key: m.Header}
	}
	if s.rowIndex(m.Identity) < 0 {
		return &sheet.NotFoundError{Target: "row", Key: m.Identity}
	}

	key := sheet.CellKey{Identity: m.Identity, Header: s.headers[hIdx].Name}
	rec := sheet.StyleRecord{
		Identity: m.Identity,
		Header:   key.Header,
		Style:    m.Style,
		Seq:      s.clock.Next(),
	}
	if _, ok := s.pendingStyles[key]; !ok {
		prior, had := s.styles[key]
		s.pendingStyles[key] = &pendingStyle{prior: prior, had: had}
	}
	s.pendingStyles[key].applied = rec.Seq
	s.styles[key] = rec
	return nil
}
