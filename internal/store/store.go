package store

import (
	"fmt"

	"github.com/gridhouse/sheetsync/internal/sheet"
)

// Store owns all canonical state for one project view. Created on project
// navigation, seeded by the initial full fetch, mutated only through
// ApplyLocal/ApplyRemote/Acknowledge/Rollback, and discarded when the view
// unmounts.
type Store struct {
	clock *Clock

	headers  []sheet.ColumnHeader
	rows     []sheet.RowRecord
	styles   map[sheet.CellKey]sheet.StyleRecord
	formulas map[sheet.CellKey]string

	selection sheet.SelectionState

	pendingCells   map[sheet.CellKey]*pendingCell
	pendingStyles  map[sheet.CellKey]*pendingStyle
	deferred       map[sheet.CellKey]string
	pendingRows    map[string]bool
	pendingColumns map[string]bool
	removedColumns map[string]*removedColumn
	removedRows    map[string]*removedRow
}

// New creates an empty store with its own logical clock.
func New() *Store {
	return &Store{
		clock:          NewClock(),
		styles:         make(map[sheet.CellKey]sheet.StyleRecord),
		formulas:       make(map[sheet.CellKey]string),
		selection:      sheet.SelectionState{SelectedColumn: -1, CheckedRows: make(map[string]bool)},
		pendingCells:   make(map[sheet.CellKey]*pendingCell),
		pendingStyles:  make(map[sheet.CellKey]*pendingStyle),
		deferred:       make(map[sheet.CellKey]string),
		pendingRows:    make(map[string]bool),
		pendingColumns: make(map[string]bool),
		removedColumns: make(map[string]*removedColumn),
		removedRows:    make(map[string]*removedRow),
	}
}

// Seed resets the store from an initial full fetch. The first header is
// the identity column; every row is normalized to the header set and its
// identity field forced to its identity.
func (s *Store) Seed(headers []string, rows []sheet.RowRecord) error {
	if len(headers) == 0 {
		return &sheet.ValidationError{Message: "sheet has no columns"}
	}

	seen := make(map[string]bool, len(headers))
	s.headers = s.headers[:0]
	for _, name := range headers {
		key := sheet.NormalizeHeader(name)
		if key == "" {
			return &sheet.ValidationError{Message: "empty header name"}
		}
		if seen[key] {
			return &sheet.InvariantViolation{Message: fmt.Sprintf("duplicate header %q", name)}
		}
		seen[key] = true
		s.headers = append(s.headers, sheet.ColumnHeader{Name: name, Visible: true})
	}

	s.rows = s.rows[:0]
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.Identity == "" {
			return &sheet.ValidationError{Message: "row with empty identity"}
		}
		if ids[r.Identity] {
			return &sheet.InvariantViolation{Message: fmt.Sprintf("duplicate row identity %q", r.Identity)}
		}
		ids[r.Identity] = true
		s.rows = append(s.rows, s.normalizeRow(r))
	}

	s.styles = make(map[sheet.CellKey]sheet.StyleRecord)
	s.formulas = make(map[sheet.CellKey]string)
	s.selection = sheet.SelectionState{SelectedColumn: -1, CheckedRows: make(map[string]bool)}
	s.pendingCells = make(map[sheet.CellKey]*pendingCell)
	s.pendingStyles = make(map[sheet.CellKey]*pendingStyle)
	s.deferred = make(map[sheet.CellKey]string)
	s.pendingRows = make(map[string]bool)
	s.pendingColumns = make(map[string]bool)
	s.removedColumns = make(map[string]*removedColumn)
	s.removedRows = make(map[string]*removedRow)

	return nil
}

// Snapshot returns an immutable deep copy of the canonical state.
func (s *Store) Snapshot() sheet.Snapshot {
	snap := sheet.Snapshot{
		Rows:           make([]sheet.RowRecord, len(s.rows)),
		Headers:        make([]sheet.ColumnHeader, len(s.headers)),
		Styles:         make(map[sheet.CellKey]sheet.StyleRecord, len(s.styles)),
		Formulas:       make(map[sheet.CellKey]string, len(s.formulas)),
		Selection:      s.selection.CloneSelection(),
		PendingCells:   make(map[sheet.CellKey]bool, len(s.pendingCells)),
		PendingRows:    make(map[string]bool, len(s.pendingRows)),
		PendingColumns: make(map[string]bool, len(s.pendingColumns)),
	}
	for i, r := range s.rows {
		snap.Rows[i] = r.Clone()
	}
	copy(snap.Headers, s.headers)
	for k, v := range s.styles {
		snap.Styles[k] = v
	}
	for k, v := range s.formulas {
		snap.Formulas[k] = v
	}
	for k := range s.pendingCells {
		snap.PendingCells[k] = true
	}
	for id := range s.pendingRows {
		snap.PendingRows[id] = true
	}
	for name := range s.pendingColumns {
		snap.PendingColumns[name] = true
	}
	return snap
}

// Clock exposes the store's logical clock, mainly for tests.
func (s *Store) Clock() *Clock {
	return s.clock
}

// ResolveStyle returns the winning style record's payload for a cell.
func (s *Store) ResolveStyle(identity, header string) (sheet.StylePayload, bool) {
	rec, ok := s.styles[sheet.CellKey{Identity: identity, Header: header}]
	if !ok {
		return sheet.StylePayload{}, false
	}
	return rec.Style, true
}

// Formula returns the raw formula text behind a cell, if the cell was last
// committed as a formula in this session.
func (s *Store) Formula(identity, header string) (string, bool) {
	raw, ok := s.formulas[sheet.CellKey{Identity: identity, Header: header}]
	return raw, ok
}

// SetFormula records the raw formula text behind a cell. The computed
// value travels separately as a SetCell mutation.
func (s *Store) SetFormula(identity, header, raw string) error {
	if s.rowIndex(identity) < 0 {
		return &sheet.NotFoundError{Target: "row", Key: identity}
	}
	if s.headerIndex(header) < 0 {
		return &sheet.NotFoundError{Target: "column", Key: header}
	}
	s.formulas[sheet.CellKey{Identity: identity, Header: header}] = raw
	return nil
}

// IdentityHeader returns the identity column's name, or "" before Seed.
func (s *Store) IdentityHeader() string {
	if len(s.headers) == 0 {
		return ""
	}
	return s.headers[0].Name
}

// headerIndex returns the canonical index for a header name, or -1.
func (s *Store) headerIndex(name string) int {
	want := sheet.NormalizeHeader(name)
	for i, h := range s.headers {
		if sheet.NormalizeHeader(h.Name) == want {
			return i
		}
	}
	return -1
}

// rowIndex returns the canonical index for a row identity, or -1.
func (s *Store) rowIndex(identity string) int {
	for i, r := range s.rows {
		if r.Identity == identity {
			return i
		}
	}
	return -1
}

// normalizeRow clamps a row's field mapping to the current header set:
// missing headers are backfilled empty, unknown fields are dropped, and
// the identity column mirrors the identity.
func (s *Store) normalizeRow(r sheet.RowRecord) sheet.RowRecord {
	fields := make(map[string]string, len(s.headers))
	for _, h := range s.headers {
		fields[h.Name] = r.Fields[h.Name]
	}
	if len(s.headers) > 0 {
		fields[s.headers[0].Name] = r.Identity
	}
	return sheet.RowRecord{Identity: r.Identity, Fields: fields}
}

// dropCellState removes every overlay and marker for one cell key.
func (s *Store) dropCellState(key sheet.CellKey) {
	delete(s.styles, key)
	delete(s.formulas, key)
	delete(s.pendingCells, key)
	delete(s.pendingStyles, key)
	delete(s.deferred, key)
}

// dropRowState removes every overlay and marker keyed to an identity.
func (s *Store) dropRowState(identity string) {
	for _, h := range s.headers {
		s.dropCellState(sheet.CellKey{Identity: identity, Header: h.Name})
	}
	// Overlays can outlive a header (e.g. a column removed after the row
	// was stashed); sweep by identity to be thorough.
	for k := range s.styles {
		if k.Identity == identity {
			delete(s.styles, k)
		}
	}
	for k := range s.formulas {
		if k.Identity == identity {
			delete(s.formulas, k)
		}
	}
	for k := range s.pendingCells {
		if k.Identity == identity {
			delete(s.pendingCells, k)
		}
	}
	for k := range s.pendingStyles {
		if k.Identity == identity {
			delete(s.pendingStyles, k)
		}
	}
	for k := range s.deferred {
		if k.Identity == identity {
			delete(s.deferred, k)
		}
	}
	delete(s.selection.CheckedRows, identity)
	delete(s.pendingRows, identity)
}
