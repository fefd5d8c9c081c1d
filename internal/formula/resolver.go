package formula

import "github.com/gridhouse/sheetsync/internal/sheet"

// SnapshotResolver resolves references against a store snapshot using
// canonical coordinates: column index into the full header list, row
// index into canonical row order. Hidden columns stay addressable, so a
// formula keeps working when the user hides a column it reads.
func SnapshotResolver(snap sheet.Snapshot) Resolver {
	return ResolverFunc(func(col, row int) (string, bool) {
		if col < 0 || col >= len(snap.Headers) || row < 0 || row >= len(snap.Rows) {
			return "", false
		}
		return snap.Rows[row].Fields[snap.Headers[col].Name], true
	})
}
