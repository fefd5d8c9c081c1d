package store

import "github.com/gridhouse/sheetsync/internal/sheet"

// Pending bookkeeping. Every optimistic local mutation stashes exactly
// what a rollback needs to restore, and nothing more. A pending marker is
// cleared by exactly one of Acknowledge or Rollback; ApplyRemote may also
// clear a marker when a delta confirms the same change (our own echo).

// pendingCell tracks an unacknowledged SetCell. depth counts overlapping
// in-flight edits to the same cell: prior always holds the value before
// the FIRST optimistic edit, so a rollback lands on the last acknowledged
// state.
type pendingCell struct {
	prior        string
	priorFormula string
	hadFormula   bool
	depth        int
}

// pendingStyle tracks an unacknowledged SetStyle. applied is the seq of
// the optimistic record; rollback restores prior only if the current
// record is still ours (a newer remote record wins regardless).
type pendingStyle struct {
	prior   sheet.StyleRecord
	had     bool
	applied int64
}

// removedColumn stashes everything an unacknowledged RemoveColumn took
// out: the header, its canonical position, and the per-row values, style
// records, and formulas that lived under it.
type removedColumn struct {
	header   sheet.ColumnHeader
	index    int
	values   map[string]string            // identity -> cell value
	styles   map[string]sheet.StyleRecord // identity -> record
	formulas map[string]string            // identity -> raw formula
	selected bool                         // column selection pointed here
}

// removedRow stashes one row taken out by an unacknowledged RemoveRows.
type removedRow struct {
	row      sheet.RowRecord
	index    int
	styles   map[string]sheet.StyleRecord // header -> record
	formulas map[string]string            // header -> raw formula
	checked  bool
}
