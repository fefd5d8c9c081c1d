// Package wire defines the JSON shapes exchanged with the sheet
// service: the remote delta events pushed over the stream and the REST
// request/response bodies.
package wire

// Event kinds carried on the push stream.
const (
	KindColumnAdded   = "columnAdded"
	KindColumnRemoved = "columnRemoved"
	KindRowAdded      = "rowAdded"
	KindRowsRemoved   = "rowsRemoved"
	KindCellsChanged  = "cellsChanged"
	KindStyleChanged  = "styleChanged"
)

// Event is one remote delta. Kind selects which of the optional fields
// are meaningful; Seq is the per-project stream sequence assigned by the
// server.
type Event struct {
	Kind       string       `json:"kind"`
	Seq        int64        `json:"seq"`
	Project    string       `json:"project,omitempty"`
	Column     string       `json:"column,omitempty"`
	Identities []string     `json:"identities,omitempty"`
	Cells      []CellChange `json:"cells,omitempty"`
	Style      *StyleChange `json:"style,omitempty"`
}

// CellChange is one cell transition inside a cellsChanged event.
type CellChange struct {
	Identity string `json:"identity"`
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// StyleChange is the payload of a styleChanged event.
type StyleChange struct {
	Identity   string `json:"identity"`
	Field      string `json:"field"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Bold       bool   `json:"bold,omitempty"`
	Italic     bool   `json:"italic,omitempty"`
}

// Row is a row as the REST surface carries it.
type Row struct {
	Identity string            `json:"identity"`
	Fields   map[string]string `json:"fields"`
}

// Column is a column as the REST surface carries it.
type Column struct {
	Name string `json:"name"`
}

// CellStyle is a style override as the REST surface carries it.
type CellStyle struct {
	Identity   string `json:"identity"`
	Field      string `json:"field"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Bold       bool   `json:"bold,omitempty"`
	Italic     bool   `json:"italic,omitempty"`
}

// AddColumnRequest creates a column.
type AddColumnRequest struct {
	Name string `json:"name"`
}

// AddRowRequest creates a row. Fields may pre-populate cells; the
// server assigns the identity and returns it.
type AddRowRequest struct {
	Fields map[string]string `json:"fields,omitempty"`
}

// AddRowResponse carries the server-assigned identity of a created row.
type AddRowResponse struct {
	Identity string `json:"identity"`
}

// RemoveRowsRequest deletes the listed rows.
type RemoveRowsRequest struct {
	Identities []string `json:"identities"`
}

// SetCellRequest updates one cell.
type SetCellRequest struct {
	Identity string `json:"identity"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

// SetStyleRequest replaces the style override of one cell.
type SetStyleRequest struct {
	Identity   string `json:"identity"`
	Field      string `json:"field"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Bold       bool   `json:"bold,omitempty"`
	Italic     bool   `json:"italic,omitempty"`
}

// ErrorResponse is the error body returned by the REST surface.
type ErrorResponse struct {
	Error string `json:"error"`
}
