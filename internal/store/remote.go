package store

import (
	"fmt"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// ApplyRemote merges a delta made by another session. Deltas are keyed by
// identity and header, never grid position. Unknown targets return
// NotFoundError, an expected outcome when a delta outruns the local
// session's own add/remove, and leave the store untouched.
//
// A delta never overwrites a cell with an unacknowledged local edit: the
// remote value is cached and applied when the pending edit resolves. A
// delta that confirms a pending local change (our own echo) clears the
// pending marker instead of double-applying.
func (s *Store) ApplyRemote(m sheet.Mutation) error {
	switch v := m.(type) {
	case sheet.AddColumn:
		return s.remoteAddColumn(v)
	case sheet.RemoveColumn:
		return s.remoteRemoveColumn(v)
	case sheet.AddRow:
		return s.remoteAddRow(v)
	case sheet.RemoveRows:
		return s.remoteRemoveRows(v)
	case sheet.SetCell:
		return s.remoteSetCell(v)
	case sheet.SetStyle:
		return s.remoteSetStyle(v)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind())
	}
}

func (s *Store) remoteAddColumn(m sheet.AddColumn) error {
	name := sheet.NormalizeHeader(m.Name)
	if name == "" {
		return &sheet.ValidationError{Message: "empty header name in delta"}
	}

	if s.headerIndex(name) >= 0 {
		// Already present. If it is our own unacknowledged add, the delta
		// is the echo confirming it.
		delete(s.pendingColumns, name)
		return nil
	}

	// Appears even while our own removal of the same name is pending: the
	// delta describes a NEW incarnation created by another session. The
	// removal stash stays; its ack or rollback sorts itself out against
	// the fresh column.
	s.headers = append(s.headers, sheet.ColumnHeader{Name: name, Visible: true})
	for i := range s.rows {
		s.rows[i].Fields[name] = ""
	}
	return nil
}

func (s *Store) remoteRemoveColumn(m sheet.RemoveColumn) error {
	idx := s.headerIndex(m.Name)
	if idx < 0 {
		// Gone already. If our own removal of it is pending, this is the
		// echo: the server deleted it, so the stash must never restore it.
		if _, ok := s.removedColumns[sheet.NormalizeHeader(m.Name)]; ok {
			delete(s.removedColumns, sheet.NormalizeHeader(m.Name))
			return nil
		}
		return &sheet.NotFoundError{Target: "column", Key: m.Name}
	}
	if idx == 0 {
		return &sheet.InvariantViolation{Message: "identity column cannot be removed"}
	}

	name := s.headers[idx].Name
	norm := sheet.NormalizeHeader(name)
	for i := range s.rows {
		key := sheet.CellKey{Identity: s.rows[i].Identity, Header: name}
		delete(s.rows[i].Fields, name)
		s.dropCellState(key)
	}
	s.headers = append(s.headers[:idx], s.headers[idx+1:]...)
	delete(s.pendingColumns, norm)

	// The local session may have had this column selected for deletion;
	// that selection now points at nothing.
	if s.selection.SelectedColumn == idx {
		s.selection.SelectedColumn = -1
	} else if s.selection.SelectedColumn > idx {
		s.selection.SelectedColumn--
	}
	return nil
}

func (s *Store) remoteAddRow(m sheet.AddRow) error {
	if m.Identity == "" {
		return &sheet.ValidationError{Message: "empty row identity in delta"}
	}
	if s.rowIndex(m.Identity) >= 0 {
		return nil // echo of a row we already have
	}
	if len(s.headers) == 0 {
		return &sheet.ValidationError{Message: "sheet has no columns"}
	}
	s.rows = append(s.rows, s.normalizeRow(sheet.RowRecord{Identity: m.Identity}))
	return nil
}

func (s *Store) remoteRemoveRows(m sheet.RemoveRows) error {
	removed := 0
	for _, id := range m.Identities {
		idx := s.rowIndex(id)
		if idx < 0 {
			// Older than our own add/remove; drop silently. Also clear a
			// stale removal stash so a failed local delete cannot
			// resurrect a row the server has since deleted.
			delete(s.removedRows, id)
			continue
		}
		s.rows = append(s.rows[:idx], s.rows[idx+1:]...)
		s.dropRowState(id)
		removed++
	}
	if removed == 0 && len(m.Identities) > 0 {
		return &sheet.NotFoundError{Target: "row", Key: fmt.Sprintf("%v", m.Identities)}
	}
	return nil
}

func (s *Store) remoteSetCell(m sheet.SetCell) error {
	rIdx := s.rowIndex(m.Identity)
	if rIdx < 0 {
		return &sheet.NotFoundError{Target: "row", Key: m.Identity}
	}
	hIdx := s.headerIndex(m.Header)
	if hIdx < 0 {
		return &sheet.NotFoundError{Target: "column", Key: m.Header}
	}
	if hIdx == 0 {
		return &sheet.InvariantViolation{Message: "identity column is read-only"}
	}

	key := sheet.CellKey{Identity: m.Identity, Header: s.headers[hIdx].Name}
	if _, ok := s.pendingCells[key]; ok {
		// Local pending edit wins until acknowledged or rolled back; keep
		// only the most recent remote value for that moment.
		s.deferred[key] = m.Value
		return nil
	}
	s.rows[rIdx].Fields[key.Header] = m.Value
	// Another editor overwrote the cell; any local formula text behind it
	// no longer describes the value.
	delete(s.formulas, key)
	return nil
}

func (s *Store) remoteSetStyle(m sheet.SetStyle) error {
	rIdx := s.rowIndex(m.Identity)
	if rIdx < 0 {
		return &sheet.NotFoundError{Target: "row", Key: m.Identity}
	}
	hIdx := s.headerIndex(m.Header)
	if hIdx < 0 {
		return &sheet.NotFoundError{Target: "column", Key: m.Header}
	}

	key := sheet.CellKey{Identity: m.Identity, Header: s.headers[hIdx].Name}
	s.styles[key] = sheet.StyleRecord{
		Identity: m.Identity,
		Header:   key.Header,
		Style:    m.Style,
		Seq:      s.clock.Next(),
	}
	return nil
}
