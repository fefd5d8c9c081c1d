package sheet

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RowRecord is one canonical row. Fields maps header name to cell value.
// Position in any displayed list is derived, never authoritative.
type RowRecord struct {
	Identity string            `json:"identity"`
	Fields   map[string]string `json:"fields"`
}

// Clone returns a deep copy of the row.
func (r RowRecord) Clone() RowRecord {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return RowRecord{Identity: r.Identity, Fields: fields}
}

// ColumnHeader is one canonical column. Headers keep insertion order;
// visibility is a session-local display flag.
type ColumnHeader struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// StylePayload is the per-cell style override. Color is the minimum the
// engine guarantees; the remaining fields ride along on the same record.
type StylePayload struct {
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Bold       bool   `json:"bold,omitempty"`
	Italic     bool   `json:"italic,omitempty"`
}

// Zero reports whether the payload carries no styling at all.
func (p StylePayload) Zero() bool {
	return p == StylePayload{}
}

// StyleRecord is a style payload bound to a canonical cell. Seq is stamped
// from the store's logical clock when the record is applied; resolution is
// always highest-seq-wins, never first-match.
type StyleRecord struct {
	Identity string       `json:"identity"`
	Header   string       `json:"header"`
	Style    StylePayload `json:"style"`
	Seq      int64        `json:"seq"`
}

// CellKey addresses one canonical cell.
type CellKey struct {
	Identity string
	Header   string
}

// SelectionState is the session-local selection: at most one column
// selected for deletion (canonical index, -1 for none) and a checked set
// of rows keyed by identity.
type SelectionState struct {
	SelectedColumn int
	CheckedRows    map[string]bool
}

// CloneSelection returns a deep copy.
func (s SelectionState) CloneSelection() SelectionState {
	checked := make(map[string]bool, len(s.CheckedRows))
	for id, v := range s.CheckedRows {
		checked[id] = v
	}
	return SelectionState{SelectedColumn: s.SelectedColumn, CheckedRows: checked}
}

// Snapshot is an immutable view of the canonical sheet state. The store
// hands out deep copies; holding a snapshot across later mutations is safe.
type Snapshot struct {
	Rows      []RowRecord
	Headers   []ColumnHeader
	Styles    map[CellKey]StyleRecord
	Formulas  map[CellKey]string
	Selection SelectionState

	// Pending markers: keys with a locally applied change not yet
	// acknowledged by the persistence layer.
	PendingCells   map[CellKey]bool
	PendingRows    map[string]bool
	PendingColumns map[string]bool
}

// IdentityHeader returns the name of the identity column (the first
// header). Empty when the sheet has no columns yet.
func (s Snapshot) IdentityHeader() string {
	if len(s.Headers) == 0 {
		return ""
	}
	return s.Headers[0].Name
}

// HeaderIndex returns the canonical index of the named header, or -1.
// Comparison is NFC-normalized.
func (s Snapshot) HeaderIndex(name string) int {
	want := NormalizeHeader(name)
	for i, h := range s.Headers {
		if NormalizeHeader(h.Name) == want {
			return i
		}
	}
	return -1
}

// RowIndex returns the canonical index of the row with the given identity,
// or -1.
func (s Snapshot) RowIndex(identity string) int {
	for i, r := range s.Rows {
		if r.Identity == identity {
			return i
		}
	}
	return -1
}

// Value returns the cell value for (identity, header) and whether the cell
// exists.
func (s Snapshot) Value(identity, header string) (string, bool) {
	i := s.RowIndex(identity)
	if i < 0 || s.HeaderIndex(header) < 0 {
		return "", false
	}
	return s.Rows[i].Fields[header], true
}

// Style resolves the style record for a canonical cell. The second return
// is false when no override exists.
func (s Snapshot) Style(identity, header string) (StylePayload, bool) {
	rec, ok := s.Styles[CellKey{Identity: identity, Header: header}]
	if !ok {
		return StylePayload{}, false
	}
	return rec.Style, true
}

// NormalizeHeader canonicalizes a header name for uniqueness comparison:
// surrounding whitespace is trimmed and the result is NFC normalized, so
// visually identical names cannot coexist as distinct columns.
func NormalizeHeader(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
