package store

import (
	"github.com/gridhouse/sheetsync/internal/sheet"
)

// RenameIdentity atomically re-keys a row from a placeholder identity to
// the authoritative one the server assigned. Pending cell edits, deferred
// remote values, style records, formulas, and the checked-row selection
// all follow the rename; nothing keyed to the old identity is dropped.
//
// If a row with the new identity already exists (a full re-fetch raced
// ahead of the ack), the placeholder row is merged into it: the
// placeholder's optimistic cell values win for keys with a pending edit.
func (s *Store) RenameIdentity(from, to string) error {
	if from == to || to == "" {
		return nil
	}
	oldIdx := s.rowIndex(from)
	if oldIdx < 0 {
		return &sheet.NotFoundError{Target: "row", Key: from}
	}

	newIdx := s.rowIndex(to)
	if newIdx >= 0 {
		// Merge placeholder into the authoritative row.
		for _, h := range s.headers {
			key := sheet.CellKey{Identity: from, Header: h.Name}
			if _, pending := s.pendingCells[key]; pending {
				s.rows[newIdx].Fields[h.Name] = s.rows[oldIdx].Fields[h.Name]
			}
		}
		s.rows = append(s.rows[:oldIdx], s.rows[oldIdx+1:]...)
	} else {
		s.rows[oldIdx].Identity = to
		if hdr := s.IdentityHeader(); hdr != "" {
			s.rows[oldIdx].Fields[hdr] = to
		}
	}

	rekeyCells(s.styles, from, to, func(rec sheet.StyleRecord, id string) sheet.StyleRecord {
		rec.Identity = id
		return rec
	})
	rekeyCells(s.formulas, from, to, func(v string, _ string) string { return v })
	rekeyCells(s.pendingCells, from, to, func(v *pendingCell, _ string) *pendingCell { return v })
	rekeyCells(s.pendingStyles, from, to, func(v *pendingStyle, _ string) *pendingStyle { return v })
	rekeyCells(s.deferred, from, to, func(v string, _ string) string { return v })

	if s.selection.CheckedRows[from] {
		delete(s.selection.CheckedRows, from)
		s.selection.CheckedRows[to] = true
	}
	if s.pendingRows[from] {
		delete(s.pendingRows, from)
		s.pendingRows[to] = true
	}
	return nil
}

// rekeyCells moves every map entry keyed to the old identity onto the new
// one, giving the update function a chance to rewrite the value's own
// identity field.
func rekeyCells[V any](m map[sheet.CellKey]V, from, to string, update func(V, string) V) {
	for key, val := range m {
		if key.Identity != from {
			continue
		}
		delete(m, key)
		key.Identity = to
		m[key] = update(val, to)
	}
}

// ReplaceRows swaps in a freshly fetched canonical row set (the rowAdded
// full re-fetch path). Local in-flight state survives the swap:
//
//   - rows with a pending removal stay removed (the optimistic delete
//     holds until its ack or rollback);
//   - placeholder rows with a pending add that the fetch does not know
//     about are kept;
//   - cells with a pending edit keep their optimistic value, and the
//     stashed rollback target becomes the fetched value;
//   - overlays and selection are pruned to surviving identities.
func (s *Store) ReplaceRows(fetched []sheet.RowRecord) error {
	// Current optimistic values for pending cells, before the swap.
	optimistic := make(map[sheet.CellKey]string, len(s.pendingCells))
	for key := range s.pendingCells {
		if idx := s.rowIndex(key.Identity); idx >= 0 {
			optimistic[key] = s.rows[idx].Fields[key.Header]
		}
	}

	next := make([]sheet.RowRecord, 0, len(fetched))
	present := make(map[string]bool, len(fetched))
	for _, r := range fetched {
		if r.Identity == "" || present[r.Identity] {
			continue
		}
		if _, pendingRemoval := s.removedRows[r.Identity]; pendingRemoval {
			continue
		}
		present[r.Identity] = true
		next = append(next, s.normalizeRow(r))
	}

	// Keep unacknowledged placeholder rows the server cannot know yet.
	for _, r := range s.rows {
		if s.pendingRows[r.Identity] && !present[r.Identity] {
			present[r.Identity] = true
			next = append(next, r)
		}
	}
	s.rows = next

	// Re-apply pending edits on top and retarget their rollback stash at
	// the authoritative fetched value.
	for key, pc := range s.pendingCells {
		idx := s.rowIndex(key.Identity)
		if idx < 0 || s.headerIndex(key.Header) < 0 {
			delete(s.pendingCells, key)
			delete(s.deferred, key)
			continue
		}
		if val, ok := optimistic[key]; ok {
			pc.prior = s.rows[idx].Fields[key.Header]
			s.rows[idx].Fields[key.Header] = val
		}
	}

	for key := range s.styles {
		if !present[key.Identity] {
			delete(s.styles, key)
		}
	}
	for key := range s.formulas {
		if !present[key.Identity] {
			delete(s.formulas, key)
		}
	}
	for key := range s.deferred {
		if !present[key.Identity] {
			delete(s.deferred, key)
		}
	}
	for key := range s.pendingStyles {
		if !present[key.Identity] {
			delete(s.pendingStyles, key)
		}
	}
	for id := range s.selection.CheckedRows {
		if !present[id] {
			delete(s.selection.CheckedRows, id)
		}
	}
	return nil
}
