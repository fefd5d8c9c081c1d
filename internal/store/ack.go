package store

import (
	"github.com/gridhouse/sheetsync/internal/sheet"
)

// Acknowledge resolves a pending local mutation after the persistence
// layer confirmed it. newIdentity carries authoritative derived data for
// AddRow (the server-generated row key) and is ignored otherwise.
//
// Late acks are tolerated: if the target no longer exists the remaining
// bookkeeping is cleared and nothing else changes.
func (s *Store) Acknowledge(m sheet.Mutation, newIdentity string) error {
	switch v := m.(type) {
	case sheet.AddColumn:
		delete(s.pendingColumns, sheet.NormalizeHeader(v.Name))
		return nil

	case sheet.RemoveColumn:
		delete(s.removedColumns, sheet.NormalizeHeader(v.Name))
		return nil

	case sheet.AddRow:
		delete(s.pendingRows, v.Identity)
		if newIdentity != "" && newIdentity != v.Identity {
			return s.RenameIdentity(v.Identity, newIdentity)
		}
		return nil

	case sheet.RemoveRows:
		for _, id := range v.Identities {
			delete(s.removedRows, id)
		}
		return nil

	case sheet.SetCell:
		key := s.cellKey(v.Identity, v.Header)
		pc, ok := s.pendingCells[key]
		if !ok {
			return nil
		}
		pc.depth--
		if pc.depth > 0 {
			return nil
		}
		delete(s.pendingCells, key)
		s.applyDeferred(key)
		return nil

	case sheet.SetStyle:
		delete(s.pendingStyles, s.cellKey(v.Identity, v.Header))
		return nil
	}
	return nil
}

// Rollback undoes a pending local mutation after the persistence layer
// rejected it, restoring exactly the stashed prior state for the affected
// rows/columns/cells. Remote state observed meanwhile is preserved: a
// column re-added by another session is not clobbered by the stash, and a
// deferred remote cell value is applied once the rollback lands.
func (s *Store) Rollback(m sheet.Mutation) error {
	switch v := m.(type) {
	case sheet.AddColumn:
		return s.rollbackAddColumn(v)
	case sheet.RemoveColumn:
		return s.rollbackRemoveColumn(v)
	case sheet.AddRow:
		return s.rollbackAddRow(v)
	case sheet.RemoveRows:
		return s.rollbackRemoveRows(v)
	case sheet.SetCell:
		return s.rollbackSetCell(v)
	case sheet.SetStyle:
		return s.rollbackSetStyle(v)
	}
	return nil
}

func (s *Store) rollbackAddColumn(m sheet.AddColumn) error {
	name := sheet.NormalizeHeader(m.Name)
	if _, ok := s.pendingColumns[name]; !ok {
		// Already confirmed by a remote echo or acknowledged; the column
		// exists independently of the failed call.
		return nil
	}
	delete(s.pendingColumns, name)

	idx := s.headerIndex(name)
	if idx < 0 {
		return nil
	}
	header := s.headers[idx].Name
	for i := range s.rows {
		key := sheet.CellKey{Identity: s.rows[i].Identity, Header: header}
		delete(s.rows[i].Fields, header)
		s.dropCellState(key)
	}
	s.headers = append(s.headers[:idx], s.headers[idx+1:]...)
	if s.selection.SelectedColumn == idx {
		s.selection.SelectedColumn = -1
	} else if s.selection.SelectedColumn > idx {
		s.selection.SelectedColumn--
	}
	return nil
}

func (s *Store) rollbackRemoveColumn(m sheet.RemoveColumn) error {
	name := sheet.NormalizeHeader(m.Name)
	stash, ok := s.removedColumns[name]
	if !ok {
		return nil
	}
	delete(s.removedColumns, name)

	if s.headerIndex(name) >= 0 {
		// Another session re-added the name meanwhile; the stash belongs
		// to a dead incarnation.
		return nil
	}

	idx := stash.index
	if idx > len(s.headers) {
		idx = len(s.headers)
	}
	s.headers = append(s.headers[:idx], append([]sheet.ColumnHeader{stash.header}, s.headers[idx:]...)...)
	if s.selection.SelectedColumn >= idx {
		s.selection.SelectedColumn++
	}
	for i := range s.rows {
		id := s.rows[i].Identity
		s.rows[i].Fields[stash.header.Name] = stash.values[id]
		key := sheet.CellKey{Identity: id, Header: stash.header.Name}
		if rec, ok := stash.styles[id]; ok {
			s.styles[key] = rec
		}
		if raw, ok := stash.formulas[id]; ok {
			s.formulas[key] = raw
		}
	}
	if stash.selected && s.selection.SelectedColumn == -1 {
		s.selection.SelectedColumn = idx
	}
	return nil
}

func (s *Store) rollbackAddRow(m sheet.AddRow) error {
	if _, ok := s.pendingRows[m.Identity]; !ok {
		return nil
	}
	idx := s.rowIndex(m.Identity)
	if idx >= 0 {
		s.rows = append(s.rows[:idx], s.rows[idx+1:]...)
	}
	s.dropRowState(m.Identity)
	return nil
}

func (s *Store) rollbackRemoveRows(m sheet.RemoveRows) error {
	for _, id := range m.Identities {
		stash, ok := s.removedRows[id]
		if !ok {
			continue
		}
		delete(s.removedRows, id)

		if s.rowIndex(id) >= 0 {
			continue // resurrected by a re-fetch meanwhile
		}

		row := s.normalizeRow(stash.row)
		idx := stash.index
		if idx > len(s.rows) {
			idx = len(s.rows)
		}
		s.rows = append(s.rows[:idx], append([]sheet.RowRecord{row}, s.rows[idx:]...)...)
		for _, h := range s.headers {
			key := sheet.CellKey{Identity: id, Header: h.Name}
			if rec, ok := stash.styles[h.Name]; ok {
				s.styles[key] = rec
			}
			if raw, ok := stash.formulas[h.Name]; ok {
				s.formulas[key] = raw
			}
		}
		if stash.checked {
			s.selection.CheckedRows[id] = true
		}
	}
	return nil
}

func (s *Store) rollbackSetCell(m sheet.SetCell) error {
	key := s.cellKey(m.Identity, m.Header)
	pc, ok := s.pendingCells[key]
	if !ok {
		return nil
	}
	pc.depth--
	if pc.depth > 0 {
		// A newer edit to the same cell is still in flight; its value
		// stays on the grid and the marker stays until it resolves.
		return nil
	}
	delete(s.pendingCells, key)

	rIdx := s.rowIndex(key.Identity)
	if rIdx < 0 || s.headerIndex(key.Header) < 0 {
		delete(s.deferred, key)
		return nil
	}

	if _, hasDeferred := s.deferred[key]; hasDeferred {
		// The most recent remote value supersedes the stashed prior.
		s.applyDeferred(key)
		return nil
	}

	s.rows[rIdx].Fields[key.Header] = pc.prior
	if pc.hadFormula {
		s.formulas[key] = pc.priorFormula
	}
	return nil
}

func (s *Store) rollbackSetStyle(m sheet.SetStyle) error {
	key := s.cellKey(m.Identity, m.Header)
	ps, ok := s.pendingStyles[key]
	if !ok {
		return nil
	}
	delete(s.pendingStyles, key)

	cur, exists := s.styles[key]
	if !exists || cur.Seq != ps.applied {
		return nil // a newer record (remote) won; keep it
	}
	if ps.had {
		s.styles[key] = ps.prior
	} else {
		delete(s.styles, key)
	}
	return nil
}

// applyDeferred writes the cached most-recent remote value for a cell, if
// one arrived while a local edit was pending.
func (s *Store) applyDeferred(key sheet.CellKey) {
	val, ok := s.deferred[key]
	if !ok {
		return
	}
	delete(s.deferred, key)

	rIdx := s.rowIndex(key.Identity)
	if rIdx < 0 || s.headerIndex(key.Header) < 0 {
		return
	}
	s.rows[rIdx].Fields[key.Header] = val
	delete(s.formulas, key)
}

// cellKey resolves the stored header spelling for a (identity, header)
// pair so map keys stay consistent under normalization.
func (s *Store) cellKey(identity, header string) sheet.CellKey {
	if idx := s.headerIndex(header); idx >= 0 {
		header = s.headers[idx].Name
	}
	return sheet.CellKey{Identity: identity, Header: header}
}
