package sheet

import "fmt"

// Mutation is an immutable message describing one change to the canonical
// sheet. The same six kinds cover local user actions and remote deltas;
// they carry identities and header names, never grid positions.
//
// The interface is sealed: only the types in this package implement it.
type Mutation interface {
	// Kind returns a stable name for logging and wire mapping.
	Kind() string

	isMutation()
}

// AddColumn appends a header. New columns default to visible and every
// existing row is backfilled with an empty value.
type AddColumn struct {
	Name string
}

// RemoveColumn removes a header and its field from every row. Removing
// the identity column is an invariant violation.
type RemoveColumn struct {
	Name string
}

// AddRow appends a row. Identity is the placeholder (local) or
// authoritative (remote) row key; the identity column's value is set to it.
type AddRow struct {
	Identity string
}

// RemoveRows removes the rows with the given identities.
type RemoveRows struct {
	Identities []string
}

// SetCell overwrites one cell value. The identity column is never a valid
// target.
type SetCell struct {
	Identity string
	Header   string
	Value    string
}

// SetStyle applies a style override to one cell. The applied record is
// stamped with the store's next sequence number.
type SetStyle struct {
	Identity string
	Header   string
	Style    StylePayload
}

func (AddColumn) Kind() string    { return "addColumn" }
func (RemoveColumn) Kind() string { return "removeColumn" }
func (AddRow) Kind() string       { return "addRow" }
func (RemoveRows) Kind() string   { return "removeRows" }
func (SetCell) Kind() string      { return "setCell" }
func (SetStyle) Kind() string     { return "setStyle" }

func (AddColumn) isMutation()    {}
func (RemoveColumn) isMutation() {}
func (AddRow) isMutation()       {}
func (RemoveRows) isMutation()   {}
func (SetCell) isMutation()      {}
func (SetStyle) isMutation()     {}

// Describe renders a short human-readable form for logs.
func Describe(m Mutation) string {
	switch v := m.(type) {
	case AddColumn:
		return fmt.Sprintf("addColumn(%s)", v.Name)
	case RemoveColumn:
		return fmt.Sprintf("removeColumn(%s)", v.Name)
	case AddRow:
		return fmt.Sprintf("addRow(%s)", v.Identity)
	case RemoveRows:
		return fmt.Sprintf("removeRows(%d)", len(v.Identities))
	case SetCell:
		return fmt.Sprintf("setCell(%s/%s)", v.Identity, v.Header)
	case SetStyle:
		return fmt.Sprintf("setStyle(%s/%s)", v.Identity, v.Header)
	default:
		return m.Kind()
	}
}
